package models

import "time"

// WebhookEvent - запись журнала обработанных событий Stripe (по evt_ id).
type WebhookEvent struct {
	EventID     string    `json:"event_id" db:"event_id"`
	Type        string    `json:"type" db:"type"`
	Outcome     string    `json:"outcome" db:"outcome"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}
