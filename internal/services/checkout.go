package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/internal/stripe"
	"github.com/Dhoini/checkout-service/pkg/logger"
)

const checkoutSuccessPath = "/post-payment-info?status=success&session_id={CHECKOUT_SESSION_ID}"

type CreateCheckoutSessionInput struct {
	UserID   string
	Email    string
	PriceID  string
	PlanName string
	Origin   string // Origin запроса; пустой -> app.site_url
}

type CheckoutSessionOutput struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type CheckoutSessionInfo struct {
	PlanName      string `json:"planName"`
	CustomerEmail string `json:"customerEmail"`
}

// CheckoutService работает с hosted checkout Stripe.
type CheckoutService struct {
	provisioning *ProvisioningService
	stripe       stripe.Client
	catalog      *Catalog
	siteURL      string
	metrics      metrics.CheckoutMetrics
	log          *logger.Logger
}

// NewCheckoutService конструктор сервиса
func NewCheckoutService(
	provisioning *ProvisioningService,
	stripeClient stripe.Client,
	catalog *Catalog,
	siteURL string,
	m metrics.CheckoutMetrics,
	log *logger.Logger,
) *CheckoutService {
	return &CheckoutService{
		provisioning: provisioning,
		stripe:       stripeClient,
		catalog:      catalog,
		siteURL:      siteURL,
		metrics:      m,
		log:          log,
	}
}

// CreateCheckoutSession создает checkout-сессию в режиме подписки для пользователя.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, input CreateCheckoutSessionInput) (*CheckoutSessionOutput, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if err := s.catalog.ValidatePrice(input.PriceID); err != nil {
		return nil, err
	}

	origin := strings.TrimRight(input.Origin, "/")
	if origin == "" {
		origin = strings.TrimRight(s.siteURL, "/")
	}
	if origin == "" {
		return nil, fmt.Errorf("%w: cannot build redirect urls without origin", ErrInvalidInput)
	}

	planName := input.PlanName
	if planName == "" {
		planName = s.catalog.PlanName(input.PriceID)
	}

	customerID, err := s.provisioning.ProvisionCustomer(ctx, input.UserID, input.Email)
	if err != nil {
		return nil, err
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, stripe.CreateCheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    input.PriceID,
		SuccessURL: origin + checkoutSuccessPath,
		CancelURL:  origin + "/",
		Metadata: map[string]string{
			stripe.MetadataPlanNameKey: planName,
			stripe.MetadataUserIDKey:   input.UserID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout session: %v", ErrStripeClient, err)
	}

	s.metrics.IncCheckoutSessionCreated()
	s.log.Infow("Checkout session created", "userID", input.UserID, "sessionID", session.ID, "priceID", input.PriceID)
	return &CheckoutSessionOutput{SessionID: session.ID, URL: session.URL}, nil
}

// GetCheckoutSession возвращает данные для страницы после оплаты.
func (s *CheckoutService) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionInfo, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	session, err := s.stripe.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, stripe.ErrNotFound) {
			return nil, fmt.Errorf("%w: checkout session %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: failed to retrieve checkout session: %v", ErrStripeClient, err)
	}

	return &CheckoutSessionInfo{
		PlanName:      session.Metadata[stripe.MetadataPlanNameKey],
		CustomerEmail: session.CustomerEmail,
	}, nil
}
