package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/internal/repository"
	"github.com/Dhoini/checkout-service/internal/stripe"
	"github.com/Dhoini/checkout-service/pkg/logger"
)

// WebhookService сверяет строки user_subscriptions с событиями Stripe.
type WebhookService struct {
	stripe    stripe.Client
	subs      repository.SubscriptionRepository
	events    repository.WebhookEventRepository
	publisher *EventPublisher
	metrics   metrics.CheckoutMetrics
	secret    string
	log       *logger.Logger
}

// NewWebhookService создает новый сервис для работы с вебхуками.
// events может быть nil, тогда повторные доставки не отсекаются.
func NewWebhookService(
	stripeClient stripe.Client,
	subs repository.SubscriptionRepository,
	events repository.WebhookEventRepository,
	publisher *EventPublisher,
	m metrics.CheckoutMetrics,
	webhookSecret string,
	log *logger.Logger,
) *WebhookService {
	return &WebhookService{
		stripe:    stripeClient,
		subs:      subs,
		events:    events,
		publisher: publisher,
		metrics:   m,
		secret:    webhookSecret,
		log:       log,
	}
}

// Handle проверяет подпись и обрабатывает событие.
// ErrInvalidSignature -> 400 без обращения к БД, ErrInternalServer/ErrStripeClient -> 500 (Stripe повторит),
// nil -> событие принято (в том числе проигнорированное, устаревшее или без пользователя).
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := stripe.ParseWebhookEvent(payload, signature, s.secret)
	if err != nil {
		s.log.Warnw("Webhook signature verification failed", "error", err)
		s.metrics.IncWebhookEvent("unknown", metrics.OutcomeError)
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := s.log.With("eventID", event.ID, "eventType", event.Type)
	log.Infow("Received Stripe webhook event")

	if s.events != nil && event.ID != "" {
		seen, err := s.events.Exists(ctx, event.ID)
		if err != nil {
			// Журнал недоступен: обрабатываем, ApplyState все равно упорядочен по времени события
			log.Warnw("Failed to check webhook event journal", "error", err)
		} else if seen {
			log.Infow("Duplicate webhook delivery, acknowledging")
			s.metrics.IncWebhookEvent(event.Type, metrics.OutcomeDuplicate)
			return nil
		}
	}

	var outcome string
	switch event.Type {
	case stripe.EventSubscriptionCreated, stripe.EventSubscriptionUpdated, stripe.EventSubscriptionDeleted:
		outcome, err = s.handleSubscriptionEvent(ctx, log, event)
	case stripe.EventCheckoutSessionComplete:
		outcome, err = s.handleCheckoutCompleted(ctx, log, event)
	default:
		log.Debugw("Unhandled webhook event type, acknowledging")
		outcome = metrics.OutcomeIgnored
	}

	if err != nil {
		log.Errorw("Failed to process webhook event", "error", err)
		s.metrics.IncWebhookEvent(event.Type, metrics.OutcomeError)
		return err
	}

	s.metrics.IncWebhookEvent(event.Type, outcome)
	log.Infow("Webhook event processed", "outcome", outcome)

	if s.events != nil && event.ID != "" {
		record := models.WebhookEvent{EventID: event.ID, Type: event.Type, Outcome: outcome}
		if err := s.events.Record(ctx, record); err != nil {
			log.Warnw("Failed to record webhook event", "error", err)
		}
	}
	return nil
}

func (s *WebhookService) handleSubscriptionEvent(ctx context.Context, log *logger.Logger, event *stripe.Event) (string, error) {
	sub, err := event.DecodeSubscription()
	if err != nil {
		// Повтор того же payload не поможет
		log.Errorw("Malformed subscription payload, acknowledging", "error", err)
		return metrics.OutcomeIgnored, nil
	}
	if event.Type == stripe.EventSubscriptionDeleted {
		sub.Status = string(models.StatusCanceled)
	}
	return s.reconcile(ctx, log, event, sub, event.Type == stripe.EventSubscriptionCreated)
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, log *logger.Logger, event *stripe.Event) (string, error) {
	session, err := event.DecodeCheckoutSession()
	if err != nil {
		log.Errorw("Malformed checkout session payload, acknowledging", "error", err)
		return metrics.OutcomeIgnored, nil
	}
	if session.SubscriptionID == "" {
		log.Debugw("Checkout session has no subscription, acknowledging", "sessionID", session.ID)
		return metrics.OutcomeIgnored, nil
	}

	sub, err := s.stripe.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		if errors.Is(err, stripe.ErrNotFound) {
			log.Warnw("Subscription from checkout session not found in Stripe", "stripeSubscriptionID", session.SubscriptionID)
			return metrics.OutcomeIgnored, nil
		}
		return "", fmt.Errorf("%w: failed to retrieve subscription: %v", ErrStripeClient, err)
	}
	if sub.CustomerID == "" {
		sub.CustomerID = session.CustomerID
	}
	return s.reconcile(ctx, log, event, sub, true)
}

// reconcile применяет состояние подписки к строке пользователя-владельца.
// replaces - событие о новой подписке (created, checkout), которое может сменить текущую.
func (s *WebhookService) reconcile(ctx context.Context, log *logger.Logger, event *stripe.Event, sub *stripe.Subscription, replaces bool) (string, error) {
	log = log.With("stripeSubscriptionID", sub.ID, "stripeCustomerID", sub.CustomerID)

	row, err := s.findOwner(ctx, log, sub.CustomerID)
	if err != nil {
		return "", err
	}
	if row == nil {
		log.Warnw("No user mapped to Stripe customer, acknowledging")
		return metrics.OutcomeUnmapped, nil
	}
	log = log.With("userID", row.UserID)

	// Событие по старой подписке не должно затирать статус текущей
	if row.StripeSubscriptionID != "" && row.StripeSubscriptionID != sub.ID {
		if isTerminalStatus(sub.Status) {
			log.Infow("Ignoring terminal event for superseded subscription", "currentSubscriptionID", row.StripeSubscriptionID)
			return metrics.OutcomeIgnored, nil
		}
		if !replaces && isLiveStatus(row.Status) {
			log.Infow("Ignoring event for subscription other than the live one",
				"currentSubscriptionID", row.StripeSubscriptionID,
				"currentStatus", row.Status,
			)
			return metrics.OutcomeIgnored, nil
		}
	}

	eventAt := event.Created
	state := models.SubscriptionState{
		UserID:               row.UserID,
		StripeCustomerID:     sub.CustomerID,
		StripeSubscriptionID: sub.ID,
		PlanID:               sub.PriceID,
		Status:               models.SubscriptionStatus(sub.Status),
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
	}
	if !eventAt.IsZero() {
		state.EventAt = &eventAt
	}

	applied, err := s.subs.ApplyState(ctx, state)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			log.Warnw("Stripe customer is mapped to another user, acknowledging", "error", err)
			return metrics.OutcomeUnmapped, nil
		}
		return "", fmt.Errorf("%w: failed to apply subscription state: %v", ErrInternalServer, err)
	}
	if !applied {
		log.Infow("Skipped stale webhook event", "eventCreated", eventAt)
		return metrics.OutcomeStale, nil
	}

	log.Infow("Subscription state applied", "status", sub.Status, "planID", sub.PriceID)
	s.publisher.Publish(ctx, models.StatusChange{
		UserID:               row.UserID,
		StripeCustomerID:     sub.CustomerID,
		StripeSubscriptionID: sub.ID,
		PlanID:               sub.PriceID,
		Status:               state.Status,
		Source:               SourceWebhook,
		EventID:              event.ID,
		OccurredAt:           eventAt,
	})
	return metrics.OutcomeApplied, nil
}

// findOwner ищет строку пользователя по customer id, затем по метаданным клиента в Stripe.
// Возвращает nil, nil, если пользователь не найден.
func (s *WebhookService) findOwner(ctx context.Context, log *logger.Logger, customerID string) (*models.UserSubscription, error) {
	if customerID == "" {
		return nil, nil
	}

	row, err := s.subs.GetByCustomerID(ctx, customerID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: failed to look up customer mapping: %v", ErrInternalServer, err)
	}

	cus, err := s.stripe.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, stripe.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to retrieve customer: %v", ErrStripeClient, err)
	}
	userID := cus.UserID()
	if userID == "" {
		return nil, nil
	}

	row, err = s.subs.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Строки нет (например, аккаунт удален): событие не должно ее создавать
		log.Warnw("User from customer metadata has no subscription row", "userID", userID)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: failed to load user subscription: %v", ErrInternalServer, err)
	case row.StripeCustomerID != "" && row.StripeCustomerID != customerID:
		// Маппинг стабилен: у пользователя уже другой клиент
		log.Warnw("User from customer metadata is mapped to a different Stripe customer",
			"userID", userID,
			"storedCustomerID", row.StripeCustomerID,
		)
		return nil, nil
	}
	log.Infow("Resolved user from Stripe customer metadata", "userID", userID)
	return row, nil
}

// isLiveStatus - подписка, которую может сменить только событие о новой подписке.
func isLiveStatus(status models.SubscriptionStatus) bool {
	switch status {
	case models.StatusTrialing, models.StatusActive, models.StatusPastDue, models.StatusUnpaid, models.StatusPaused:
		return true
	}
	return false
}

func isTerminalStatus(status string) bool {
	switch models.SubscriptionStatus(status) {
	case models.StatusCanceled, models.StatusIncompleteExpired:
		return true
	}
	return false
}
