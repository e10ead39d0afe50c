package repository

import (
	"context"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
)

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием.
// Источник истины - repo; ошибки кеша только логируются.
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache SubscriptionCache
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(
	repo SubscriptionRepository,
	cache SubscriptionCache,
	log *logger.Logger,
) SubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetByUserID получает строку (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.UserSubscription, error) {
	cached, err := r.cache.GetSubscription(ctx, userID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "userID", userID)
	}
	if cached != nil {
		r.log.Debugw("Subscription found in cache", "userID", userID)
		return cached, nil
	}

	sub, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.store(ctx, sub)
	return sub, nil
}

// GetByCustomerID использует обратный индекс кеша, при промахе идет в БД
func (r *CachedSubscriptionRepository) GetByCustomerID(ctx context.Context, stripeCustomerID string) (*models.UserSubscription, error) {
	userID, err := r.cache.GetUserIDByCustomer(ctx, stripeCustomerID)
	if err != nil {
		r.log.Warnw("Error getting customer mapping from cache", "error", err, "stripeCustomerID", stripeCustomerID)
	}
	if userID != "" {
		sub, err := r.GetByUserID(ctx, userID)
		// Индекс мог устареть после смены customer id
		if err == nil && sub.StripeCustomerID == stripeCustomerID {
			return sub, nil
		}
	}

	sub, err := r.repo.GetByCustomerID(ctx, stripeCustomerID)
	if err != nil {
		return nil, err
	}

	r.store(ctx, sub)
	return sub, nil
}

func (r *CachedSubscriptionRepository) ClaimCustomerID(ctx context.Context, userID, stripeCustomerID string) (string, error) {
	stored, err := r.repo.ClaimCustomerID(ctx, userID, stripeCustomerID)
	if err != nil {
		return "", err
	}
	r.invalidate(ctx, userID)
	return stored, nil
}

func (r *CachedSubscriptionRepository) ReplaceCustomerID(ctx context.Context, userID, stripeCustomerID string) error {
	previous, _ := r.cache.GetSubscription(ctx, userID)

	if err := r.repo.ReplaceCustomerID(ctx, userID, stripeCustomerID); err != nil {
		return err
	}

	if previous != nil {
		r.invalidate(ctx, userID, previous.StripeCustomerID)
	} else {
		r.invalidate(ctx, userID)
	}
	return nil
}

func (r *CachedSubscriptionRepository) ApplyState(ctx context.Context, state models.SubscriptionState) (bool, error) {
	applied, err := r.repo.ApplyState(ctx, state)
	if err != nil {
		return false, err
	}
	if applied {
		r.invalidate(ctx, state.UserID)
	}
	return applied, nil
}

func (r *CachedSubscriptionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	previous, _ := r.cache.GetSubscription(ctx, userID)

	if err := r.repo.DeleteByUserID(ctx, userID); err != nil {
		return err
	}

	if previous != nil {
		r.invalidate(ctx, userID, previous.StripeCustomerID)
	} else {
		r.invalidate(ctx, userID)
	}
	return nil
}

func (r *CachedSubscriptionRepository) store(ctx context.Context, sub *models.UserSubscription) {
	if sub == nil {
		return
	}
	if err := r.cache.SetSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "userID", sub.UserID)
	}
}

func (r *CachedSubscriptionRepository) invalidate(ctx context.Context, userID string, stripeCustomerIDs ...string) {
	if err := r.cache.Invalidate(ctx, userID, stripeCustomerIDs...); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "userID", userID)
	}
}
