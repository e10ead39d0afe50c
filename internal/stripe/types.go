package stripe

import (
	"time"

	"github.com/stripe/stripe-go/v78"
)

// Ключи метаданных для связи Stripe Customer с пользователем
const (
	MetadataUserIDKey       = "user_id"
	MetadataLegacyUserIDKey = "supabaseUserId"
	MetadataPlanNameKey     = "planName"
)

// Customer - то, что сервису нужно знать о Stripe Customer.
type Customer struct {
	ID       string
	Email    string
	Name     string
	Deleted  bool
	Metadata map[string]string
}

// UserID достает id пользователя из метаданных (новый ключ, затем старый).
func (c *Customer) UserID() string {
	if c == nil {
		return ""
	}
	if id := c.Metadata[MetadataUserIDKey]; id != "" {
		return id
	}
	return c.Metadata[MetadataLegacyUserIDKey]
}

// Subscription - плоское представление Stripe Subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	ClientSecret       string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}

// CheckoutSession - плоское представление Stripe Checkout Session.
type CheckoutSession struct {
	ID             string
	URL            string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	Metadata       map[string]string
}

// Address - адрес для биллинга.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// IsZero сообщает, что адрес не заполнен.
func (a *Address) IsZero() bool {
	return a == nil || *a == (Address{})
}

// BillingDetails - поля Customer, которые обновляются перед созданием подписки.
type BillingDetails struct {
	Name    string
	Email   string
	Phone   string
	Address *Address
}

// IsZero сообщает, что обновлять нечего.
func (b BillingDetails) IsZero() bool {
	return b.Name == "" && b.Email == "" && b.Phone == "" && b.Address.IsZero()
}

// CreateCustomerParams параметры создания клиента.
type CreateCustomerParams struct {
	UserID         string
	Email          string
	IdempotencyKey string
}

// CreateSubscriptionParams параметры создания подписки в статусе incomplete.
type CreateSubscriptionParams struct {
	CustomerID     string
	PriceID        string
	IdempotencyKey string
}

// CreateCheckoutSessionParams параметры hosted checkout.
type CreateCheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

func customerFromStripe(c *stripe.Customer) *Customer {
	if c == nil {
		return nil
	}
	return &Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Deleted:  c.Deleted,
		Metadata: c.Metadata,
	}
}

// SubscriptionFromStripe конвертирует объект SDK (ответ API или payload события).
func SubscriptionFromStripe(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}

	out := &Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		out.PriceID = s.Items.Data[0].Price.ID
	}
	if s.LatestInvoice != nil && s.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = s.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out
}

func checkoutSessionFromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	if s == nil {
		return nil
	}

	out := &CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
