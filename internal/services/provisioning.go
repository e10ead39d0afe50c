package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/internal/repository"
	"github.com/Dhoini/checkout-service/internal/stripe"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// ProvisioningService находит или создает Stripe Customer для пользователя
// и хранит маппинг user_id -> stripe_customer_id.
type ProvisioningService struct {
	subs    repository.SubscriptionRepository
	stripe  stripe.Client
	metrics metrics.CheckoutMetrics
	log     *logger.Logger

	// Схлопывает параллельные вызовы для одного пользователя внутри процесса.
	// Между процессами дубликаты отсекают ключ идемпотентности и условный upsert.
	group singleflight.Group
}

// NewProvisioningService конструктор сервиса
func NewProvisioningService(
	subs repository.SubscriptionRepository,
	stripeClient stripe.Client,
	m metrics.CheckoutMetrics,
	log *logger.Logger,
) *ProvisioningService {
	return &ProvisioningService{
		subs:    subs,
		stripe:  stripeClient,
		metrics: m,
		log:     log,
	}
}

// ProvisionCustomer возвращает сохраненный customer id или создает нового клиента.
// Повторные вызовы для одного пользователя возвращают один и тот же id.
func (s *ProvisioningService) ProvisionCustomer(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}

	v, shared, err := s.do(ctx, "provision:"+userID, func(ctx context.Context) (string, error) {
		return s.provision(ctx, userID, email)
	})
	if err != nil {
		s.metrics.IncCustomerProvisioned(metrics.OutcomeError)
		return "", err
	}
	if shared {
		s.log.Debugw("Customer provisioning call was shared", "userID", userID)
	}
	return v, nil
}

// do выполняет fn один раз на ключ. Общий вызов не зависит от отмены ctx
// отдельного вызывающего: тот, чей ctx отменен, получает ctx.Err(), остальные ждут результат.
func (s *ProvisioningService) do(ctx context.Context, key string, fn func(ctx context.Context) (string, error)) (string, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Shared, res.Err
		}
		return res.Val.(string), res.Shared, nil
	}
}

func (s *ProvisioningService) provision(ctx context.Context, userID, email string) (string, error) {
	row, err := s.subs.GetByUserID(ctx, userID)
	switch {
	case err == nil && row.StripeCustomerID != "":
		s.log.Debugw("Stripe customer already provisioned", "userID", userID, "stripeCustomerID", row.StripeCustomerID)
		s.metrics.IncCustomerProvisioned(metrics.OutcomeExisting)
		return row.StripeCustomerID, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		s.log.Errorw("Failed to load user subscription", "error", err, "userID", userID)
		return "", fmt.Errorf("%w: failed to load customer mapping: %v", ErrInternalServer, err)
	}

	customerID, err := s.createCustomer(ctx, userID, email, "")
	if err != nil {
		return "", err
	}
	s.metrics.IncCustomerProvisioned(metrics.OutcomeCreated)
	return customerID, nil
}

// ResolveCustomer - единая стратегия поиска клиента: сначала сохраненный id,
// затем поиск по email, затем создание. Сохраненный id, удаленный или потерянный
// в Stripe, заменяется найденным или новым.
func (s *ProvisioningService) ResolveCustomer(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}

	v, _, err := s.do(ctx, "resolve:"+userID, func(ctx context.Context) (string, error) {
		return s.resolve(ctx, userID, email)
	})
	if err != nil {
		s.metrics.IncCustomerProvisioned(metrics.OutcomeError)
		return "", err
	}
	return v, nil
}

func (s *ProvisioningService) resolve(ctx context.Context, userID, email string) (string, error) {
	var stale string

	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Errorw("Failed to load user subscription", "error", err, "userID", userID)
		return "", fmt.Errorf("%w: failed to load customer mapping: %v", ErrInternalServer, err)
	}

	// 1. Сохраненный id
	if row != nil && row.StripeCustomerID != "" {
		cus, err := s.stripe.GetCustomer(ctx, row.StripeCustomerID)
		switch {
		case err == nil && !cus.Deleted:
			s.metrics.IncCustomerProvisioned(metrics.OutcomeExisting)
			return row.StripeCustomerID, nil
		case err != nil && !errors.Is(err, stripe.ErrNotFound):
			return "", fmt.Errorf("%w: failed to verify customer: %v", ErrStripeClient, err)
		}
		s.log.Warnw("Stored Stripe customer is missing or deleted, falling back", "userID", userID, "stripeCustomerID", row.StripeCustomerID)
		stale = row.StripeCustomerID
	}

	// 2. Поиск по email
	if email != "" {
		cus, err := s.stripe.FindCustomerByEmail(ctx, email)
		if err != nil {
			return "", fmt.Errorf("%w: failed to search customer: %v", ErrStripeClient, err)
		}
		if cus != nil && cus.ID != stale {
			customerID, err := s.persist(ctx, userID, cus.ID, stale)
			switch {
			case err == nil:
				s.log.Infow("Linked existing Stripe customer found by email", "userID", userID, "stripeCustomerID", customerID)
				s.metrics.IncCustomerProvisioned(metrics.OutcomeExisting)
				return customerID, nil
			case errors.Is(err, repository.ErrDuplicate):
				// Клиент с этим email уже привязан к другому пользователю
				s.log.Warnw("Stripe customer found by email belongs to another user", "userID", userID, "stripeCustomerID", cus.ID)
			default:
				return "", err
			}
		}
	}

	// 3. Создание
	customerID, err := s.createCustomer(ctx, userID, email, stale)
	if err != nil {
		return "", err
	}
	s.metrics.IncCustomerProvisioned(metrics.OutcomeCreated)
	return customerID, nil
}

// createCustomer создает клиента в Stripe и сохраняет маппинг.
func (s *ProvisioningService) createCustomer(ctx context.Context, userID, email, stale string) (string, error) {
	cus, err := s.stripe.CreateCustomer(ctx, stripe.CreateCustomerParams{
		UserID:         userID,
		Email:          email,
		IdempotencyKey: customerIdempotencyKey(userID, stale),
	})
	if err != nil {
		s.log.Errorw("Failed to create Stripe customer", "error", err, "userID", userID)
		return "", fmt.Errorf("%w: failed to create customer: %v", ErrStripeClient, err)
	}

	customerID, err := s.persist(ctx, userID, cus.ID, stale)
	if err != nil {
		return "", err
	}
	if customerID != cus.ID {
		// Параллельный запрос успел сохранить свой id раньше
		s.log.Warnw("Customer mapping already claimed, discarding new Stripe customer",
			"userID", userID,
			"storedCustomerID", customerID,
			"orphanCustomerID", cus.ID,
		)
	}
	return customerID, nil
}

// persist сохраняет маппинг. При stale != "" сохраненный id перезаписывается,
// иначе действует insert-if-absent и возвращается победивший id.
func (s *ProvisioningService) persist(ctx context.Context, userID, customerID, stale string) (string, error) {
	if stale != "" {
		if err := s.subs.ReplaceCustomerID(ctx, userID, customerID); err != nil {
			return "", wrapRepoError("failed to replace customer mapping", err)
		}
		s.log.Infow("Stripe customer mapping replaced", "userID", userID, "stripeCustomerID", customerID, "previous", stale)
		return customerID, nil
	}

	stored, err := s.subs.ClaimCustomerID(ctx, userID, customerID)
	if err != nil {
		return "", wrapRepoError("failed to persist customer mapping", err)
	}
	s.log.Infow("Stripe customer mapping stored", "userID", userID, "stripeCustomerID", stored)
	return stored, nil
}

// customerIdempotencyKey детерминирован: повторные попытки создать клиента
// в окне идемпотентности Stripe получают того же клиента.
func customerIdempotencyKey(userID, replaces string) string {
	if replaces == "" {
		return "customer-" + userID
	}
	return "customer-" + userID + "-replaces-" + replaces
}

func wrapRepoError(msg string, err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrInternalServer, msg, err)
}
