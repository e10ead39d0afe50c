package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/internal/repository"
	"github.com/Dhoini/checkout-service/internal/stripe"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/google/uuid"
)

type CreateSubscriptionInput struct {
	UserID         string
	PriceID        string
	Name           string
	Email          string
	Phone          string
	Address        *stripe.Address
	IdempotencyKey string // Пустой -> генерируется
}

type CreateSubscriptionOutput struct {
	ClientSecret   string `json:"clientSecret"`
	SubscriptionID string `json:"subscriptionId"`
}

// SubscriptionService создает подписки в статусе incomplete.
type SubscriptionService struct {
	provisioning *ProvisioningService
	stripe       stripe.Client
	subs         repository.SubscriptionRepository
	profiles     repository.ProfileRepository
	catalog      *Catalog
	publisher    *EventPublisher
	metrics      metrics.CheckoutMetrics
	log          *logger.Logger
}

// NewSubscriptionService конструктор сервиса
func NewSubscriptionService(
	provisioning *ProvisioningService,
	stripeClient stripe.Client,
	subs repository.SubscriptionRepository,
	profiles repository.ProfileRepository,
	catalog *Catalog,
	publisher *EventPublisher,
	m metrics.CheckoutMetrics,
	log *logger.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		provisioning: provisioning,
		stripe:       stripeClient,
		subs:         subs,
		profiles:     profiles,
		catalog:      catalog,
		publisher:    publisher,
		metrics:      m,
		log:          log,
	}
}

// CreateSubscription создает подписку и возвращает client secret для подтверждения оплаты.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*CreateSubscriptionOutput, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if err := s.catalog.ValidatePrice(input.PriceID); err != nil {
		s.log.Warnw("CreateSubscription called with invalid price", "userID", input.UserID, "priceID", input.PriceID, "error", err)
		return nil, err
	}

	s.log.Infow("Starting CreateSubscription process", "userID", input.UserID, "priceID", input.PriceID)
	startTime := time.Now()

	customerID, err := s.provisioning.ResolveCustomer(ctx, input.UserID, input.Email)
	if err != nil {
		s.log.Errorw("Failed to resolve Stripe customer", "userID", input.UserID, "error", err)
		return nil, err
	}

	details := stripe.BillingDetails{
		Name:    input.Name,
		Email:   input.Email,
		Phone:   input.Phone,
		Address: input.Address,
	}
	if err := s.stripe.UpdateCustomer(ctx, customerID, details); err != nil {
		return nil, fmt.Errorf("%w: failed to update customer: %v", ErrStripeClient, err)
	}

	if input.Name != "" || input.Phone != "" {
		profile := &models.Profile{
			ID:          input.UserID,
			FullName:    input.Name,
			PhoneNumber: input.Phone,
			Email:       input.Email,
		}
		if err := s.profiles.Upsert(ctx, profile); err != nil {
			s.log.Errorw("Failed to upsert profile", "userID", input.UserID, "error", err)
			return nil, fmt.Errorf("%w: failed to save profile: %v", ErrInternalServer, err)
		}
	}

	idempotencyKey := input.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	sub, err := s.stripe.CreateSubscription(ctx, stripe.CreateSubscriptionParams{
		CustomerID:     customerID,
		PriceID:        input.PriceID,
		IdempotencyKey: "subscription-" + input.UserID + "-" + idempotencyKey,
	})
	if err != nil {
		s.log.Errorw("Failed to create Stripe subscription", "userID", input.UserID, "error", err)
		return nil, fmt.Errorf("%w: failed to create subscription: %v", ErrStripeClient, err)
	}

	// Без EventAt: ответ API не должен перетирать уже примененные webhook-события
	state := models.SubscriptionState{
		UserID:               input.UserID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: sub.ID,
		PlanID:               input.PriceID,
		Status:               models.SubscriptionStatus(sub.Status),
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
	}
	applied, err := s.subs.ApplyState(ctx, state)
	if err != nil {
		s.log.Errorw("Failed to save subscription locally", "userID", input.UserID, "stripeSubscriptionID", sub.ID, "error", err)
		return nil, fmt.Errorf("%w: failed to save subscription: %v", ErrInternalServer, err)
	}

	s.metrics.IncSubscriptionCreated(sub.Status)
	if applied {
		s.publisher.Publish(ctx, models.StatusChange{
			UserID:               input.UserID,
			StripeCustomerID:     customerID,
			StripeSubscriptionID: sub.ID,
			PlanID:               input.PriceID,
			Status:               state.Status,
			Source:               SourceAPI,
		})
	} else {
		s.log.Infow("Webhook state already recorded for subscription", "userID", input.UserID, "stripeSubscriptionID", sub.ID)
	}

	if sub.ClientSecret == "" {
		s.log.Errorw("Could not retrieve client_secret from subscription", "userID", input.UserID, "stripeSubscriptionID", sub.ID, "status", sub.Status)
		return nil, ErrClientSecretMissing
	}

	s.log.Infow("Subscription created",
		"userID", input.UserID,
		"stripeSubscriptionID", sub.ID,
		"status", sub.Status,
		"duration", time.Since(startTime),
	)
	return &CreateSubscriptionOutput{
		ClientSecret:   sub.ClientSecret,
		SubscriptionID: sub.ID,
	}, nil
}
