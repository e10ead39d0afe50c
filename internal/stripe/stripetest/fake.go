// Package stripetest содержит in-memory реализацию stripe.Client для тестов.
package stripetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/internal/stripe"
)

// FakeClient хранит клиентов, подписки и сессии в памяти.
// Ключи идемпотентности ведут себя как в Stripe: повтор с тем же ключом возвращает тот же объект.
type FakeClient struct {
	mu sync.Mutex

	customers     map[string]*stripe.Customer
	subscriptions map[string]*stripe.Subscription
	sessions      map[string]*stripe.CheckoutSession
	idempotency   map[string]string
	seq           int

	// Настройки поведения
	ClientSecret string        // Пустая строка -> подписка без client secret
	CreateDelay  time.Duration // Задержка CreateCustomer, чтобы поймать гонки
	Errors       map[string]error

	// Журнал вызовов
	Calls   map[string]int
	Updates []stripe.BillingDetails
}

// NewFakeClient создает пустой фейк с client secret по умолчанию.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		customers:     make(map[string]*stripe.Customer),
		subscriptions: make(map[string]*stripe.Subscription),
		sessions:      make(map[string]*stripe.CheckoutSession),
		idempotency:   make(map[string]string),
		ClientSecret:  "pi_secret_test",
		Errors:        make(map[string]error),
		Calls:         make(map[string]int),
	}
}

// AddCustomer кладет готового клиента.
func (f *FakeClient) AddCustomer(c stripe.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[c.ID] = &c
}

// DeleteCustomer помечает клиента удаленным.
func (f *FakeClient) DeleteCustomer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.customers[id]; ok {
		c.Deleted = true
	}
}

// AddSubscription кладет готовую подписку.
func (f *FakeClient) AddSubscription(s stripe.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[s.ID] = &s
}

// AddCheckoutSession кладет готовую сессию.
func (f *FakeClient) AddCheckoutSession(s stripe.CheckoutSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = &s
}

// CustomerCount - число созданных или добавленных клиентов.
func (f *FakeClient) CustomerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.customers)
}

// CallCount возвращает число вызовов метода.
func (f *FakeClient) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

// Customer возвращает копию клиента или nil.
func (f *FakeClient) Customer(id string) *stripe.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// Subscription возвращает копию подписки или nil.
func (f *FakeClient) Subscription(id string) *stripe.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// CheckoutSession возвращает копию сессии или nil.
func (f *FakeClient) CheckoutSession(id string) *stripe.CheckoutSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// begin регистрирует вызов и возвращает настроенную ошибку. Вызывать под mutex.
func (f *FakeClient) begin(method string) error {
	f.Calls[method]++
	return f.Errors[method]
}

func (f *FakeClient) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *FakeClient) CreateCustomer(ctx context.Context, p stripe.CreateCustomerParams) (*stripe.Customer, error) {
	if f.CreateDelay > 0 {
		select {
		case <-time.After(f.CreateDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateCustomer"); err != nil {
		return nil, err
	}

	if id, ok := f.idempotency[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		cp := *f.customers[id]
		return &cp, nil
	}

	c := &stripe.Customer{
		ID:       f.nextID("cus"),
		Email:    p.Email,
		Metadata: map[string]string{stripe.MetadataUserIDKey: p.UserID},
	}
	f.customers[c.ID] = c
	if p.IdempotencyKey != "" {
		f.idempotency[p.IdempotencyKey] = c.ID
	}
	cp := *c
	return &cp, nil
}

func (f *FakeClient) GetCustomer(ctx context.Context, customerID string) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetCustomer"); err != nil {
		return nil, err
	}

	c, ok := f.customers[customerID]
	if !ok {
		return nil, stripe.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *FakeClient) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FindCustomerByEmail"); err != nil {
		return nil, err
	}

	// Как и List API: самый новый клиент первым
	var found *stripe.Customer
	for _, c := range f.customers {
		if c.Deleted || !strings.EqualFold(c.Email, email) {
			continue
		}
		if found == nil || c.ID > found.ID {
			found = c
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (f *FakeClient) UpdateCustomer(ctx context.Context, customerID string, d stripe.BillingDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateCustomer"); err != nil {
		return err
	}

	c, ok := f.customers[customerID]
	if !ok {
		return stripe.ErrNotFound
	}
	if d.Name != "" {
		c.Name = d.Name
	}
	if d.Email != "" {
		c.Email = d.Email
	}
	f.Updates = append(f.Updates, d)
	return nil
}

func (f *FakeClient) CreateSubscription(ctx context.Context, p stripe.CreateSubscriptionParams) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateSubscription"); err != nil {
		return nil, err
	}

	if id, ok := f.idempotency[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		cp := *f.subscriptions[id]
		return &cp, nil
	}
	if _, ok := f.customers[p.CustomerID]; !ok {
		return nil, stripe.ErrNotFound
	}

	start := time.Unix(1700000000, 0).UTC()
	end := start.AddDate(0, 1, 0)
	s := &stripe.Subscription{
		ID:                 f.nextID("sub"),
		CustomerID:         p.CustomerID,
		Status:             "incomplete",
		PriceID:            p.PriceID,
		ClientSecret:       f.ClientSecret,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
	f.subscriptions[s.ID] = s
	if p.IdempotencyKey != "" {
		f.idempotency[p.IdempotencyKey] = s.ID
	}
	cp := *s
	return &cp, nil
}

func (f *FakeClient) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetSubscription"); err != nil {
		return nil, err
	}

	s, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, stripe.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *FakeClient) CreateCheckoutSession(ctx context.Context, p stripe.CreateCheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateCheckoutSession"); err != nil {
		return nil, err
	}

	id := f.nextID("cs")
	s := &stripe.CheckoutSession{
		ID:         id,
		URL:        "https://checkout.stripe.test/c/pay/" + id,
		CustomerID: p.CustomerID,
		Metadata:   p.Metadata,
	}
	if c, ok := f.customers[p.CustomerID]; ok {
		s.CustomerEmail = c.Email
	}
	f.sessions[id] = s
	cp := *s
	return &cp, nil
}

func (f *FakeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetCheckoutSession"); err != nil {
		return nil, err
	}

	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, stripe.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

var _ stripe.Client = (*FakeClient)(nil)
