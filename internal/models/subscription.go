package models

import "time"

// SubscriptionStatus зеркалит статусы подписки Stripe. Источник истины - Stripe.
type SubscriptionStatus string

const (
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// UserSubscription - строка таблицы user_subscriptions. Ровно одна на пользователя.
type UserSubscription struct {
	UserID               string             `db:"user_id" json:"user_id"`
	StripeCustomerID     string             `db:"stripe_customer_id" json:"stripe_customer_id"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	PlanID               string             `db:"plan_id" json:"plan_id,omitempty"`
	Status               SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	CurrentPeriodStart   *time.Time         `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end" json:"current_period_end,omitempty"`
	LastEventAt          *time.Time         `db:"last_event_at" json:"last_event_at,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// SubscriptionState - изменения подписки, пришедшие из Stripe (ответ API или webhook).
// Пустые строки/nil означают "не менять".
type SubscriptionState struct {
	UserID               string
	StripeCustomerID     string
	StripeSubscriptionID string
	PlanID               string
	Status               SubscriptionStatus
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	// EventAt - время события Stripe. Если задано, более старые события не перезаписывают строку.
	EventAt *time.Time
}

// StatusChange публикуется в Kafka после применения изменения.
type StatusChange struct {
	UserID               string             `json:"user_id"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	PlanID               string             `json:"plan_id"`
	Status               SubscriptionStatus `json:"status"`
	Source               string             `json:"source"` // "api" | "webhook"
	EventID              string             `json:"event_id,omitempty"`
	OccurredAt           time.Time          `json:"occurred_at"`
}
