package services

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/internal/kafka"
	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
)

// Источники изменений подписки
const (
	SourceAPI     = "api"
	SourceWebhook = "webhook"
)

// EventPublisher асинхронно публикует изменения подписок в Kafka.
// Публикация best effort: ошибки логируются и не влияют на ответ клиенту.
type EventPublisher struct {
	producer kafka.Producer // Может быть nil, если Kafka не настроена
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewEventPublisher создает публикатор. producer может быть nil.
func NewEventPublisher(producer kafka.Producer, log *logger.Logger) *EventPublisher {
	if producer == nil {
		log.Warnw("Kafka producer is nil, event publishing will be skipped.")
	}
	return &EventPublisher{producer: producer, log: log}
}

// Publish отправляет событие в фоне, не блокируя запрос.
func (p *EventPublisher) Publish(ctx context.Context, change models.StatusChange) {
	if p == nil || p.producer == nil {
		return
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		// Контекст запроса отменится после ответа, поэтому отвязываемся от него
		kafkaCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := p.producer.PublishStatusChange(kafkaCtx, change); err != nil {
			p.log.Errorw("Failed to publish subscription status change", "error", err, "userID", change.UserID, "status", string(change.Status))
		}
	}()
}

// Wait дожидается отправки событий в полете.
func (p *EventPublisher) Wait() {
	if p != nil {
		p.wg.Wait()
	}
}
