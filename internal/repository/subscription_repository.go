package repository

import (
	"context"

	"github.com/Dhoini/checkout-service/internal/models"
)

// SubscriptionRepository - хранилище user_subscriptions. Не более одной строки на user_id.
type SubscriptionRepository interface {
	// GetByUserID возвращает ErrNotFound, если строки нет.
	GetByUserID(ctx context.Context, userID string) (*models.UserSubscription, error)

	// GetByCustomerID - обратный поиск stripe_customer_id -> строка. ErrNotFound, если маппинга нет.
	GetByCustomerID(ctx context.Context, stripeCustomerID string) (*models.UserSubscription, error)

	// ClaimCustomerID сохраняет маппинг только если у пользователя еще нет customer id
	// (insert-if-absent). Возвращает действующий id: либо переданный, либо уже сохраненный ранее.
	ClaimCustomerID(ctx context.Context, userID, stripeCustomerID string) (string, error)

	// ReplaceCustomerID безусловно перезаписывает маппинг. Используется, когда
	// сохраненный customer удален или потерян на стороне Stripe.
	ReplaceCustomerID(ctx context.Context, userID, stripeCustomerID string) error

	// ApplyState - upsert по user_id. Пустые поля state не затирают сохраненные значения.
	// Возвращает false, если state.EventAt старше последнего примененного события,
	// или если state без EventAt относится к подписке, по которой уже применено событие.
	ApplyState(ctx context.Context, state models.SubscriptionState) (bool, error)

	// DeleteByUserID удаляет строку (только при удалении аккаунта).
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository - хранилище profiles.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	// Upsert обновляет только непустые поля.
	Upsert(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
}
