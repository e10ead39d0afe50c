package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	userSubscriptionKeyPrefix = "user_subscription:"
	customerKeyPrefix         = "stripe_customer:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// SubscriptionCache - кеш строк user_subscriptions и обратного индекса customer -> user.
// Промах кеша возвращает (nil, nil) / ("", nil).
type SubscriptionCache interface {
	GetSubscription(ctx context.Context, userID string) (*models.UserSubscription, error)
	SetSubscription(ctx context.Context, sub *models.UserSubscription) error
	GetUserIDByCustomer(ctx context.Context, stripeCustomerID string) (string, error)
	Invalidate(ctx context.Context, userID string, stripeCustomerIDs ...string) error
}

// RedisCacheRepository реализует SubscriptionCache с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, ttl time.Duration, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr, "ttl", ttl)
	return &RedisCacheRepository{
		client: client,
		ttl:    ttl,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// PingContext используется health-check'ами.
func (r *RedisCacheRepository) PingContext(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetSubscription кеширует строку подписки и обратный индекс по customer id
func (r *RedisCacheRepository) SetSubscription(ctx context.Context, sub *models.UserSubscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		r.log.Errorw("Failed to marshal subscription for caching", "error", err, "userID", sub.UserID)
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, userSubscriptionKeyPrefix+sub.UserID, data, r.ttl)
	if sub.StripeCustomerID != "" {
		pipe.Set(ctx, customerKeyPrefix+sub.StripeCustomerID, sub.UserID, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Errorw("Failed to cache subscription in Redis", "error", err, "userID", sub.UserID)
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached successfully", "userID", sub.UserID)
	return nil
}

// GetSubscription получает строку подписки из кеша
func (r *RedisCacheRepository) GetSubscription(ctx context.Context, userID string) (*models.UserSubscription, error) {
	data, err := r.client.Get(ctx, userSubscriptionKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Subscription not found in cache", "userID", userID)
			return nil, nil
		}
		r.log.Errorw("Error getting subscription from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub models.UserSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Errorw("Failed to unmarshal cached subscription", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	return &sub, nil
}

// GetUserIDByCustomer возвращает user_id по stripe_customer_id из обратного индекса
func (r *RedisCacheRepository) GetUserIDByCustomer(ctx context.Context, stripeCustomerID string) (string, error) {
	userID, err := r.client.Get(ctx, customerKeyPrefix+stripeCustomerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		r.log.Errorw("Error getting customer mapping from Redis", "error", err, "stripeCustomerID", stripeCustomerID)
		return "", fmt.Errorf("failed to get customer mapping from cache: %w", err)
	}
	return userID, nil
}

// Invalidate удаляет строку пользователя и указанные записи обратного индекса
func (r *RedisCacheRepository) Invalidate(ctx context.Context, userID string, stripeCustomerIDs ...string) error {
	keys := []string{userSubscriptionKeyPrefix + userID}
	for _, id := range stripeCustomerIDs {
		if id != "" {
			keys = append(keys, customerKeyPrefix+id)
		}
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Errorw("Failed to invalidate subscription cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}

	r.log.Debugw("Subscription cache invalidated", "userID", userID, "keys", len(keys))
	return nil
}
