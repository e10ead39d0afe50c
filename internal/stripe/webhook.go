package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Типы событий, которые обрабатывает сервис
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventCheckoutSessionComplete = "checkout.session.completed"
)

// ErrInvalidSignature - подпись webhook не прошла проверку.
var ErrInvalidSignature = errors.New("stripe: invalid webhook signature")

// Event - проверенное событие Stripe.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
}

// ParseWebhookEvent проверяет подпись и разбирает событие.
// Несовпадение версии API игнорируется: нужны только поля, стабильные между версиями.
func ParseWebhookEvent(payload []byte, signatureHeader, secret string) (*Event, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing Stripe-Signature header", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Created > 0 {
		out.Created = time.Unix(event.Created, 0).UTC()
	}
	if event.Data != nil {
		out.Object = event.Data.Raw
	}
	return out, nil
}

// DecodeSubscription разбирает data.object события customer.subscription.*
func (e *Event) DecodeSubscription() (*Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(e.Object, &sub); err != nil {
		return nil, fmt.Errorf("stripe: failed to decode subscription from event %s: %w", e.ID, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("stripe: event %s carries no subscription id", e.ID)
	}
	return SubscriptionFromStripe(&sub), nil
}

// DecodeCheckoutSession разбирает data.object события checkout.session.*
func (e *Event) DecodeCheckoutSession() (*CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(e.Object, &session); err != nil {
		return nil, fmt.Errorf("stripe: failed to decode checkout session from event %s: %w", e.ID, err)
	}
	return checkoutSessionFromStripe(&session), nil
}
