package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/jmoiron/sqlx"
)

// WebhookEventRepository - журнал обработанных событий вебхука.
// Stripe доставляет события "at least once", повтор не должен публиковать изменение второй раз.
type WebhookEventRepository interface {
	// Exists сообщает, было ли событие уже обработано.
	Exists(ctx context.Context, eventID string) (bool, error)

	// Record сохраняет событие. Повторная запись того же id не ошибка.
	Record(ctx context.Context, event models.WebhookEvent) error
}

type postgresWebhookEventRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresWebhookEventRepository создает журнал событий в PostgreSQL.
func NewPostgresWebhookEventRepository(db *sqlx.DB, log *logger.Logger) WebhookEventRepository {
	return &postgresWebhookEventRepo{db: db, log: log}
}

func (r *postgresWebhookEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID)
	if err != nil {
		r.log.Errorw("Failed to look up webhook event", "error", err, "eventID", eventID)
		return false, fmt.Errorf("db: webhook event lookup: %w", err)
	}
	return exists, nil
}

func (r *postgresWebhookEventRepo) Record(ctx context.Context, event models.WebhookEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO webhook_events (event_id, type, outcome, processed_at)
		VALUES (:event_id, :type, :outcome, :processed_at)
		ON CONFLICT (event_id) DO NOTHING`

	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		r.log.Errorw("Failed to record webhook event", "error", err, "eventID", event.EventID)
		return fmt.Errorf("db: record webhook event: %w", err)
	}
	return nil
}

// InMemoryWebhookEventRepository - журнал событий в памяти.
type InMemoryWebhookEventRepository struct {
	events map[string]models.WebhookEvent
	mutex  sync.RWMutex
}

func NewInMemoryWebhookEventRepository() *InMemoryWebhookEventRepository {
	return &InMemoryWebhookEventRepository{events: make(map[string]models.WebhookEvent)}
}

func (r *InMemoryWebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.events[eventID]
	return ok, nil
}

func (r *InMemoryWebhookEventRepository) Record(ctx context.Context, event models.WebhookEvent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.events[event.EventID]; ok {
		return nil
	}
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	r.events[event.EventID] = event
	return nil
}

// Get возвращает запись журнала (для тестов и отладки).
func (r *InMemoryWebhookEventRepository) Get(eventID string) (models.WebhookEvent, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	e, ok := r.events[eventID]
	return e, ok
}
