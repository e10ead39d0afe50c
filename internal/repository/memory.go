package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
)

// InMemorySubscriptionRepository реализация репозитория в памяти.
// Семантика совпадает с PostgreSQL-реализацией; используется в тестах и при database.dsn=memory.
type InMemorySubscriptionRepository struct {
	rows  map[string]models.UserSubscription
	mutex sync.RWMutex
	log   *logger.Logger
	now   func() time.Time
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		rows: make(map[string]models.UserSubscription),
		log:  log,
		now:  time.Now,
	}
}

func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.UserSubscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	row, exists := r.rows[userID]
	if !exists {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (r *InMemorySubscriptionRepository) GetByCustomerID(ctx context.Context, stripeCustomerID string) (*models.UserSubscription, error) {
	if stripeCustomerID == "" {
		return nil, ErrNotFound
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, row := range r.rows {
		if row.StripeCustomerID == stripeCustomerID {
			found := row
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemorySubscriptionRepository) ClaimCustomerID(ctx context.Context, userID, stripeCustomerID string) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	row, exists := r.rows[userID]
	if exists && row.StripeCustomerID != "" {
		return row.StripeCustomerID, nil
	}
	if err := r.checkCustomerUnique(userID, stripeCustomerID); err != nil {
		return "", err
	}

	now := r.now().UTC()
	if !exists {
		row = models.UserSubscription{UserID: userID, Status: models.StatusIncomplete, CreatedAt: now}
	}
	row.StripeCustomerID = stripeCustomerID
	row.UpdatedAt = now
	r.rows[userID] = row

	return stripeCustomerID, nil
}

func (r *InMemorySubscriptionRepository) ReplaceCustomerID(ctx context.Context, userID, stripeCustomerID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.checkCustomerUnique(userID, stripeCustomerID); err != nil {
		return err
	}

	now := r.now().UTC()
	row, exists := r.rows[userID]
	if !exists {
		row = models.UserSubscription{UserID: userID, Status: models.StatusIncomplete, CreatedAt: now}
	}
	row.StripeCustomerID = stripeCustomerID
	row.UpdatedAt = now
	r.rows[userID] = row

	return nil
}

func (r *InMemorySubscriptionRepository) ApplyState(ctx context.Context, state models.SubscriptionState) (bool, error) {
	if state.UserID == "" {
		return false, fmt.Errorf("%w: user id is empty", ErrInvalidData)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.checkCustomerUnique(state.UserID, state.StripeCustomerID); err != nil {
		return false, err
	}

	now := r.now().UTC()
	row, exists := r.rows[state.UserID]
	if !exists {
		row = models.UserSubscription{UserID: state.UserID, Status: models.StatusIncomplete, CreatedAt: now}
	}

	if exists && row.LastEventAt != nil && isStale(row, state) {
		r.log.Debugw("Skipping stale subscription state", "userID", state.UserID, "eventAt", state.EventAt, "lastEventAt", row.LastEventAt)
		return false, nil
	}

	if state.StripeCustomerID != "" {
		row.StripeCustomerID = state.StripeCustomerID
	}
	if state.StripeSubscriptionID != "" {
		row.StripeSubscriptionID = state.StripeSubscriptionID
	}
	if state.PlanID != "" {
		row.PlanID = state.PlanID
	}
	if state.Status != "" {
		row.Status = state.Status
	}
	if state.CurrentPeriodStart != nil {
		row.CurrentPeriodStart = utcPtr(state.CurrentPeriodStart)
	}
	if state.CurrentPeriodEnd != nil {
		row.CurrentPeriodEnd = utcPtr(state.CurrentPeriodEnd)
	}
	if state.EventAt != nil && (row.LastEventAt == nil || state.EventAt.After(*row.LastEventAt)) {
		row.LastEventAt = utcPtr(state.EventAt)
	}
	row.UpdatedAt = now
	r.rows[state.UserID] = row

	return true, nil
}

func (r *InMemorySubscriptionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.rows[userID]; !exists {
		return ErrNotFound
	}
	delete(r.rows, userID)
	return nil
}

// isStale повторяет WHERE из PostgreSQL-реализации. row.LastEventAt != nil.
func isStale(row models.UserSubscription, state models.SubscriptionState) bool {
	if state.EventAt == nil {
		return row.StripeSubscriptionID == state.StripeSubscriptionID
	}
	return row.LastEventAt.After(*state.EventAt)
}

// checkCustomerUnique эмулирует частичный уникальный индекс по stripe_customer_id. Вызывать под mutex.
func (r *InMemorySubscriptionRepository) checkCustomerUnique(userID, stripeCustomerID string) error {
	if stripeCustomerID == "" {
		return nil
	}
	for id, row := range r.rows {
		if id != userID && row.StripeCustomerID == stripeCustomerID {
			return fmt.Errorf("%w: stripe customer %s already mapped", ErrDuplicate, stripeCustomerID)
		}
	}
	return nil
}

// InMemoryProfileRepository реализация репозитория профилей в памяти
type InMemoryProfileRepository struct {
	profiles map[string]models.Profile
	mutex    sync.RWMutex
}

// NewInMemoryProfileRepository создает новый репозиторий профилей в памяти
func NewInMemoryProfileRepository() *InMemoryProfileRepository {
	return &InMemoryProfileRepository{profiles: make(map[string]models.Profile)}
}

func (r *InMemoryProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, exists := r.profiles[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *InMemoryProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: profile id is empty", ErrInvalidData)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	p := r.profiles[profile.ID]
	p.ID = profile.ID
	if profile.FullName != "" {
		p.FullName = profile.FullName
	}
	if profile.PhoneNumber != "" {
		p.PhoneNumber = profile.PhoneNumber
	}
	if profile.CompanyName != "" {
		p.CompanyName = profile.CompanyName
	}
	if profile.Email != "" {
		p.Email = profile.Email
	}
	p.UpdatedAt = time.Now().UTC()
	r.profiles[profile.ID] = p

	return nil
}

func (r *InMemoryProfileRepository) Delete(ctx context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.profiles[id]; !exists {
		return ErrNotFound
	}
	delete(r.profiles, id)
	return nil
}
