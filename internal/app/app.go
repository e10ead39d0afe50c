package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/internal/config"
	"github.com/Dhoini/checkout-service/internal/db"
	grpcserver "github.com/Dhoini/checkout-service/internal/grpc"
	"github.com/Dhoini/checkout-service/internal/http/handlers"
	"github.com/Dhoini/checkout-service/internal/http/routes"
	"github.com/Dhoini/checkout-service/internal/identity"
	"github.com/Dhoini/checkout-service/internal/kafka"
	"github.com/Dhoini/checkout-service/internal/leads"
	"github.com/Dhoini/checkout-service/internal/metrics"
	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/internal/repository"
	"github.com/Dhoini/checkout-service/internal/services"
	"github.com/Dhoini/checkout-service/internal/stripe"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// MemoryDSN - значение database.dsn, при котором данные хранятся в памяти процесса.
const MemoryDSN = "memory"

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *prometheus.Registry
	Router    *gin.Engine
	Validator middleware.TokenValidator
	Checks    map[string]handlers.HealthChecker

	publisher *services.EventPublisher
	producer  kafka.Producer
	leads     *leads.Forwarder
	closers   []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Clients - внешние клиенты. Nil-поля создаются из конфигурации.
type Clients struct {
	Stripe   stripe.Client
	Identity identity.Client
}

// New создает и инициализирует новый экземпляр приложения
func New(ctx context.Context, cfg *config.Config, clients Clients, log *logger.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: metrics.NewRegistry(),
		Checks:   make(map[string]handlers.HealthChecker),
	}
	m := metrics.NewCheckoutMetrics(a.Registry, log)

	subs, profiles, events, err := a.initRepositories(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	// Внешние клиенты
	stripeClient := clients.Stripe
	if stripeClient == nil {
		stripeClient = stripe.NewStripeClient(cfg.Stripe.APIKey, stripe.DefaultRetryPolicy(cfg.Stripe.RetryMaxElapsed), m, log)
	}
	identityClient := clients.Identity
	if identityClient == nil {
		identityClient = identity.NewClient(identity.Config{
			URL:            cfg.Identity.URL,
			AnonKey:        cfg.Identity.AnonKey,
			ServiceRoleKey: cfg.Identity.ServiceRoleKey,
			Timeout:        cfg.Identity.Timeout,
		}, log)
	}

	a.producer = a.initKafka(ctx)
	a.publisher = services.NewEventPublisher(a.producer, log)
	a.leads = leads.NewForwarder(cfg.Leads.WebhookURL, cfg.Leads.Source, cfg.Leads.Timeout, log)

	// Service layer
	catalog := services.NewCatalog(cfg.Plans)
	provisioning := services.NewProvisioningService(subs, stripeClient, m, log)
	subscriptions := services.NewSubscriptionService(provisioning, stripeClient, subs, profiles, catalog, a.publisher, m, log)
	webhooks := services.NewWebhookService(stripeClient, subs, events, a.publisher, m, cfg.Stripe.WebhookSecret, log)
	checkout := services.NewCheckoutService(provisioning, stripeClient, catalog, cfg.App.SiteURL, m, log)
	accounts := services.NewAccountService(identityClient, profiles, subs, a.leads, log)

	// Access-токены Supabase: локально по секрету, иначе через identity API
	if cfg.Auth.JWTSecret != "" {
		a.Validator = &middleware.DefaultTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)}
	} else {
		log.Warnw("JWT secret is not set, access tokens will be validated via identity API")
		a.Validator = &middleware.IdentityTokenValidator{Client: identityClient}
	}

	a.Router = gin.New()
	routes.SetupRoutes(a.Router, routes.Handlers{
		Customer:     handlers.NewCustomerHandler(provisioning, log),
		Subscription: handlers.NewSubscriptionHandler(subscriptions, log),
		Webhook:      handlers.NewWebhookHandler(webhooks, log),
		Checkout:     handlers.NewCheckoutHandler(checkout, catalog, log),
		Account:      handlers.NewAccountHandler(accounts, log),
		Health:       handlers.NewHealthHandler(a.Checks),
	},
		middleware.NewJWTMiddleware(log, a.Validator),
		middleware.RequestLogger(log, m),
		a.Registry,
		log,
	)

	return a, nil
}

func (a *App) initRepositories(ctx context.Context) (
	repository.SubscriptionRepository,
	repository.ProfileRepository,
	repository.WebhookEventRepository,
	error,
) {
	cfg, log := a.Config, a.Logger

	if cfg.Database.DSN == MemoryDSN {
		log.Warnw("Using in-memory repositories, data will not survive a restart")
		return repository.NewInMemorySubscriptionRepository(log),
			repository.NewInMemoryProfileRepository(),
			repository.NewInMemoryWebhookEventRepository(),
			nil
	}

	dbClient, err := db.NewDBClient(ctx, cfg.Database.DSN, db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("app: database: %w", err)
	}
	a.closers = append(a.closers, namedCloser{"database", dbClient.Close})
	a.Checks["database"] = dbClient
	log.Infow("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := dbClient.Migrate(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("app: migrations: %w", err)
		}
	}

	var subs repository.SubscriptionRepository = repository.NewPostgresSubscriptionRepository(dbClient.DB(), log)
	profiles := repository.NewPostgresProfileRepository(dbClient.DB(), log)
	events := repository.NewPostgresWebhookEventRepository(dbClient.DB(), log)

	if cfg.Redis.Addr == "" {
		log.Infow("Using non-cached subscription repository")
		return subs, profiles, events, nil
	}
	redisCache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, log)
	if err != nil {
		// Не фатально, но предупреждаем
		log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		return subs, profiles, events, nil
	}
	a.closers = append(a.closers, namedCloser{"redis", redisCache.Close})
	a.Checks["redis"] = redisCache
	log.Infow("Using cached subscription repository")
	return repository.NewCachedSubscriptionRepository(subs, redisCache, log), profiles, events, nil
}

// initKafka возвращает nil, если Kafka не настроена или недоступна: события тогда не публикуются.
func (a *App) initKafka(ctx context.Context) kafka.Producer {
	cfg, log := a.Config, a.Logger
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kafka.EnsureKafkaTopics(setupCtx, cfg.Kafka.Brokers, kafka.TopicConfigs(cfg.Kafka.Topic), log); err != nil {
		log.Warnw("Failed to ensure Kafka topics", "error", err)
	}

	producer, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	if err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		return nil
	}
	log.Infow("Kafka producer initialized")
	return producer
}

// GRPCServer создает gRPC health-сервер, проверяющий те же зависимости, что и /health.
func (a *App) GRPCServer() *grpcserver.Server {
	checks := make(map[string]grpcserver.Pinger, len(a.Checks))
	for name, c := range a.Checks {
		checks[name] = c
	}
	return grpcserver.NewServer(a.Logger, a.Validator, checks)
}

// Close дожидается фоновых отправок и закрывает соединения в обратном порядке.
func (a *App) Close() error {
	var errs []error
	a.publisher.Wait()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.leads.Wait()

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.Errorw("Error closing connection", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
