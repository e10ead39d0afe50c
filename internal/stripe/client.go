package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ErrNotFound - объект отсутствует в Stripe (resource_missing).
var ErrNotFound = errors.New("stripe: resource not found")

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// CreateCustomer создает клиента с метаданными user_id.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// GetCustomer возвращает ErrNotFound, если клиента нет. Удаленный клиент возвращается с Deleted=true.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// FindCustomerByEmail возвращает первого не удаленного клиента с таким email или nil.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// UpdateCustomer обновляет биллинговые данные. Пустые поля не отправляются.
	UpdateCustomer(ctx context.Context, customerID string, details BillingDetails) error

	// CreateSubscription создает подписку в статусе incomplete с раскрытым latest_invoice.payment_intent.
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client  *client.API // Клиент Stripe SDK
	log     *logger.Logger
	metrics metrics.CheckoutMetrics
	retry   RetryPolicy
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey string, retry RetryPolicy, m metrics.CheckoutMetrics, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil) // Инициализируем клиент Stripe с API ключом
	return newStripeClient(sc, retry, m, log)
}

func newStripeClient(sc *client.API, retry RetryPolicy, m metrics.CheckoutMetrics, log *logger.Logger) *stripeClient {
	return &stripeClient{
		client:  sc,
		log:     log,
		metrics: m,
		retry:   retry,
	}
}

// CreateCustomer создает нового клиента в Stripe.
func (sc *stripeClient) CreateCustomer(ctx context.Context, p CreateCustomerParams) (*Customer, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			MetadataUserIDKey: p.UserID,
		},
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}

	var cus *stripe.Customer
	err := sc.call(ctx, "CreateCustomer", func() error {
		var err error
		cus, err = sc.client.Customers.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", p.UserID)
	return customerFromStripe(cus), nil
}

// GetCustomer получает клиента по ID.
func (sc *stripeClient) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	var cus *stripe.Customer
	err := sc.call(ctx, "GetCustomer", func() error {
		var err error
		cus, err = sc.client.Customers.Get(customerID, params)
		return err
	})
	if err != nil {
		if isResourceMissing(err) {
			sc.log.Warnw("Stripe customer not found", "stripeCustomerID", customerID)
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stripe: failed to get customer: %w", err)
	}

	return customerFromStripe(cus), nil
}

// FindCustomerByEmail ищет клиента по email через List API.
func (sc *stripeClient) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	if email == "" {
		return nil, nil
	}

	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	var found *stripe.Customer
	err := sc.call(ctx, "ListCustomers", func() error {
		found = nil
		iter := sc.client.Customers.List(params)
		for iter.Next() {
			c := iter.Customer()
			if c != nil && !c.Deleted {
				found = c
				return nil
			}
		}
		return iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to list customers: %w", err)
	}

	if found == nil {
		sc.log.Debugw("No Stripe customer found by email")
		return nil, nil
	}
	sc.log.Infow("Found existing Stripe customer by email", "stripeCustomerID", found.ID)
	return customerFromStripe(found), nil
}

// UpdateCustomer обновляет имя, email, телефон и адрес клиента.
func (sc *stripeClient) UpdateCustomer(ctx context.Context, customerID string, d BillingDetails) error {
	if d.IsZero() {
		return nil
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	if d.Name != "" {
		params.Name = stripe.String(d.Name)
	}
	if d.Email != "" {
		params.Email = stripe.String(d.Email)
	}
	if d.Phone != "" {
		params.Phone = stripe.String(d.Phone)
	}
	if !d.Address.IsZero() {
		params.Address = &stripe.AddressParams{
			Line1:      optional(d.Address.Line1),
			Line2:      optional(d.Address.Line2),
			City:       optional(d.Address.City),
			State:      optional(d.Address.State),
			PostalCode: optional(d.Address.PostalCode),
			Country:    optional(d.Address.Country),
		}
	}

	err := sc.call(ctx, "UpdateCustomer", func() error {
		_, err := sc.client.Customers.Update(customerID, params)
		return err
	})
	if err != nil {
		return fmt.Errorf("stripe: failed to update customer: %w", err)
	}

	sc.log.Infow("Stripe customer updated", "stripeCustomerID", customerID)
	return nil
}

// CreateSubscription создает подписку в Stripe для указанного клиента и цены.
func (sc *stripeClient) CreateSubscription(ctx context.Context, p CreateSubscriptionParams) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(p.PriceID),
			},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
		Params: stripe.Params{
			Context: ctx,
		},
	}
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}
	// Используем AddExpand для получения PaymentIntent
	params.AddExpand("latest_invoice.payment_intent")

	var subscription *stripe.Subscription
	err := sc.call(ctx, "CreateSubscription", func() error {
		var err error
		subscription, err = sc.client.Subscriptions.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to create subscription: %w", err)
	}

	sc.log.Infow("Stripe subscription created", "stripeSubscriptionID", subscription.ID, "status", string(subscription.Status))

	out := SubscriptionFromStripe(subscription)
	if out.ClientSecret == "" {
		sc.log.Warnw("No payment intent or client secret found in created subscription", "stripeSubscriptionID", subscription.ID, "status", string(subscription.Status))
	}
	return out, nil
}

// GetSubscription получает подписку по ID.
func (sc *stripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	var subscription *stripe.Subscription
	err := sc.call(ctx, "GetSubscription", func() error {
		var err error
		subscription, err = sc.client.Subscriptions.Get(subscriptionID, params)
		return err
	})
	if err != nil {
		if isResourceMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}

	return SubscriptionFromStripe(subscription), nil
}

// CreateCheckoutSession создает hosted checkout в режиме подписки.
func (sc *stripeClient) CreateCheckoutSession(ctx context.Context, p CreateCheckoutSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
		Metadata:            p.Metadata,
	}
	params.Context = ctx

	var session *stripe.CheckoutSession
	err := sc.call(ctx, "CreateCheckoutSession", func() error {
		var err error
		session, err = sc.client.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	sc.log.Infow("Stripe checkout session created", "sessionID", session.ID, "stripeCustomerID", p.CustomerID)
	return checkoutSessionFromStripe(session), nil
}

// GetCheckoutSession получает checkout-сессию по ID.
func (sc *stripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	var session *stripe.CheckoutSession
	err := sc.call(ctx, "GetCheckoutSession", func() error {
		var err error
		session, err = sc.client.CheckoutSessions.Get(sessionID, params)
		return err
	})
	if err != nil {
		if isResourceMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stripe: failed to get checkout session: %w", err)
	}

	return checkoutSessionFromStripe(session), nil
}

// call выполняет запрос с ретраями, метриками и логированием ошибок.
func (sc *stripeClient) call(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := sc.retry.Do(ctx, sc.log.With("operation", operation), fn)
	if sc.metrics != nil {
		sc.metrics.ObserveStripeCall(operation, time.Since(start), err)
	}
	if err != nil && !isResourceMissing(err) {
		logStripeError(sc.log, operation, err)
	}
	return err
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
