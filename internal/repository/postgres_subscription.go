package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `
	user_id, stripe_customer_id, stripe_subscription_id, plan_id, subscription_status,
	current_period_start, current_period_end, last_event_at, created_at, updated_at`

// postgresSubscriptionRepo реализует SubscriptionRepository для PostgreSQL.
type postgresSubscriptionRepo struct {
	db  *sqlx.DB
	log *logger.Logger
	now func() time.Time
}

// NewPostgresSubscriptionRepository создает новый экземпляр репозитория для PostgreSQL.
func NewPostgresSubscriptionRepository(db *sqlx.DB, log *logger.Logger) SubscriptionRepository {
	return &postgresSubscriptionRepo{
		db:  db,
		log: log,
		now: time.Now,
	}
}

func (r *postgresSubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*models.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE user_id = $1`

	var sub models.UserSubscription
	if err := r.db.GetContext(ctx, &sub, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get user subscription", "error", err, "userID", userID)
		return nil, fmt.Errorf("db: get user subscription: %w", err)
	}
	return &sub, nil
}

func (r *postgresSubscriptionRepo) GetByCustomerID(ctx context.Context, stripeCustomerID string) (*models.UserSubscription, error) {
	if stripeCustomerID == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE stripe_customer_id = $1`

	var sub models.UserSubscription
	if err := r.db.GetContext(ctx, &sub, query, stripeCustomerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get user subscription by customer", "error", err, "stripeCustomerID", stripeCustomerID)
		return nil, fmt.Errorf("db: get user subscription by customer: %w", err)
	}
	return &sub, nil
}

func (r *postgresSubscriptionRepo) ClaimCustomerID(ctx context.Context, userID, stripeCustomerID string) (string, error) {
	// Существующий непустой customer id побеждает: конкурентные вызовы сходятся на одном значении.
	query := `
		INSERT INTO user_subscriptions (user_id, stripe_customer_id, subscription_status, created_at, updated_at)
		VALUES ($1, $2, 'incomplete', $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = COALESCE(NULLIF(user_subscriptions.stripe_customer_id, ''), EXCLUDED.stripe_customer_id),
			updated_at = EXCLUDED.updated_at
		RETURNING stripe_customer_id`

	var stored string
	if err := r.db.QueryRowxContext(ctx, query, userID, stripeCustomerID, r.now().UTC()).Scan(&stored); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: stripe customer %s already mapped", ErrDuplicate, stripeCustomerID)
		}
		r.log.Errorw("Failed to claim stripe customer id", "error", err, "userID", userID, "stripeCustomerID", stripeCustomerID)
		return "", fmt.Errorf("db: claim customer id: %w", err)
	}
	return stored, nil
}

func (r *postgresSubscriptionRepo) ReplaceCustomerID(ctx context.Context, userID, stripeCustomerID string) error {
	query := `
		INSERT INTO user_subscriptions (user_id, stripe_customer_id, subscription_status, created_at, updated_at)
		VALUES ($1, $2, 'incomplete', $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, userID, stripeCustomerID, r.now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: stripe customer %s already mapped", ErrDuplicate, stripeCustomerID)
		}
		r.log.Errorw("Failed to replace stripe customer id", "error", err, "userID", userID, "stripeCustomerID", stripeCustomerID)
		return fmt.Errorf("db: replace customer id: %w", err)
	}
	return nil
}

func (r *postgresSubscriptionRepo) ApplyState(ctx context.Context, state models.SubscriptionState) (bool, error) {
	if state.UserID == "" {
		return false, fmt.Errorf("%w: user id is empty", ErrInvalidData)
	}

	// WHERE отсекает устаревшие события: строка меняется, только если событие не старше last_event_at.
	// Состояние без времени события (ответ API) не перетирает подписку, по которой уже пришел webhook.
	query := `
		INSERT INTO user_subscriptions (
			user_id, stripe_customer_id, stripe_subscription_id, plan_id, subscription_status,
			current_period_start, current_period_end, last_event_at, created_at, updated_at
		) VALUES (
			:user_id, :stripe_customer_id, :stripe_subscription_id, :plan_id,
			COALESCE(NULLIF(:subscription_status, ''), 'incomplete'),
			:current_period_start, :current_period_end, :last_event_at, :now, :now
		)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id     = COALESCE(NULLIF(EXCLUDED.stripe_customer_id, ''), user_subscriptions.stripe_customer_id),
			stripe_subscription_id = COALESCE(NULLIF(EXCLUDED.stripe_subscription_id, ''), user_subscriptions.stripe_subscription_id),
			plan_id                = COALESCE(NULLIF(EXCLUDED.plan_id, ''), user_subscriptions.plan_id),
			subscription_status    = CASE WHEN :subscription_status = '' THEN user_subscriptions.subscription_status ELSE EXCLUDED.subscription_status END,
			current_period_start   = COALESCE(EXCLUDED.current_period_start, user_subscriptions.current_period_start),
			current_period_end     = COALESCE(EXCLUDED.current_period_end, user_subscriptions.current_period_end),
			last_event_at          = GREATEST(EXCLUDED.last_event_at, user_subscriptions.last_event_at),
			updated_at             = EXCLUDED.updated_at
		WHERE user_subscriptions.last_event_at IS NULL
			OR (EXCLUDED.last_event_at IS NULL
				AND user_subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id)
			OR user_subscriptions.last_event_at <= EXCLUDED.last_event_at`

	args := map[string]interface{}{
		"user_id":                state.UserID,
		"stripe_customer_id":     state.StripeCustomerID,
		"stripe_subscription_id": state.StripeSubscriptionID,
		"plan_id":                state.PlanID,
		"subscription_status":    string(state.Status),
		"current_period_start":   utcPtr(state.CurrentPeriodStart),
		"current_period_end":     utcPtr(state.CurrentPeriodEnd),
		"last_event_at":          utcPtr(state.EventAt),
		"now":                    r.now().UTC(),
	}

	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: stripe customer %s already mapped", ErrDuplicate, state.StripeCustomerID)
		}
		r.log.Errorw("Failed to upsert user subscription", "error", err, "userID", state.UserID, "stripeSubscriptionID", state.StripeSubscriptionID)
		return false, fmt.Errorf("db: upsert user subscription: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db: rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *postgresSubscriptionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		r.log.Errorw("Failed to delete user subscription", "error", err, "userID", userID)
		return fmt.Errorf("db: delete user subscription: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
