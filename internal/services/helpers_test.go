package services

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/internal/config"
	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/internal/repository"
	"github.com/Dhoini/checkout-service/internal/stripe/stripetest"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testPriceMonthly  = "price_growth_monthly"
	testPriceAnnual   = "price_growth_annual"
)

var testPlans = []config.Plan{
	{
		Name:           "Growth",
		MonthlyPrice:   49,
		AnnualPrice:    470,
		PriceIDMonthly: testPriceMonthly,
		PriceIDAnnual:  testPriceAnnual,
	},
}

// recordingProducer запоминает опубликованные события.
type recordingProducer struct {
	mu     sync.Mutex
	events []models.StatusChange
}

func (p *recordingProducer) PublishStatusChange(ctx context.Context, change models.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, change)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) Events() []models.StatusChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.StatusChange, len(p.events))
	copy(out, p.events)
	return out
}

type testEnv struct {
	log          *logger.Logger
	stripe       *stripetest.FakeClient
	subs         *repository.InMemorySubscriptionRepository
	profiles     *repository.InMemoryProfileRepository
	events       *repository.InMemoryWebhookEventRepository
	producer     *recordingProducer
	publisher    *EventPublisher
	metrics      metrics.CheckoutMetrics
	catalog      *Catalog
	provisioning *ProvisioningService
}

func newTestEnv() *testEnv {
	log := logger.Nop()
	env := &testEnv{
		log:      log,
		stripe:   stripetest.NewFakeClient(),
		subs:     repository.NewInMemorySubscriptionRepository(log),
		profiles: repository.NewInMemoryProfileRepository(),
		events:   repository.NewInMemoryWebhookEventRepository(),
		producer: &recordingProducer{},
		metrics:  metrics.NewCheckoutMetrics(prometheus.NewRegistry(), log),
		catalog:  NewCatalog(testPlans),
	}
	env.publisher = NewEventPublisher(env.producer, log)
	env.provisioning = NewProvisioningService(env.subs, env.stripe, env.metrics, log)
	return env
}

func (e *testEnv) subscriptionService() *SubscriptionService {
	return NewSubscriptionService(e.provisioning, e.stripe, e.subs, e.profiles, e.catalog, e.publisher, e.metrics, e.log)
}

func (e *testEnv) webhookService() *WebhookService {
	return NewWebhookService(e.stripe, e.subs, e.events, e.publisher, e.metrics, testWebhookSecret, e.log)
}

func (e *testEnv) checkoutService(siteURL string) *CheckoutService {
	return NewCheckoutService(e.provisioning, e.stripe, e.catalog, siteURL, e.metrics, e.log)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
