package routes

import (
	"github.com/Dhoini/checkout-service/internal/http/handlers"
	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers - все HTTP-обработчики сервиса.
type Handlers struct {
	Customer     *handlers.CustomerHandler
	Subscription *handlers.SubscriptionHandler
	Webhook      *handlers.WebhookHandler
	Checkout     *handlers.CheckoutHandler
	Account      *handlers.AccountHandler
	Health       *handlers.HealthHandler
}

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(
	router *gin.Engine,
	h Handlers,
	auth *middleware.JWTMiddleware,
	requestLogger gin.HandlerFunc,
	registry *prometheus.Registry,
	log *logger.Logger,
) {
	// Промежуточное ПО для всех запросов
	router.Use(requestLogger)
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	router.GET("/health", h.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		// Публичные маршруты (без аутентификации)
		api.POST("/webhooks/stripe", h.Webhook.HandleStripeWebhook)
		api.GET("/plans", h.Checkout.ListPlans)
		api.GET("/checkout/sessions/:session_id", h.Checkout.GetCheckoutSession)
		api.POST("/auth/signup", h.Account.SignUp)
		api.POST("/auth/signin", h.Account.SignIn)

		// Защищенные маршруты (требуют аутентификации)
		protected := api.Group("")
		protected.Use(auth.RequireAuth())
		{
			protected.POST("/customers", h.Customer.CreateCustomer)
			protected.POST("/subscriptions", h.Subscription.CreateSubscription)
			protected.POST("/checkout/sessions", h.Checkout.CreateCheckoutSession)
			protected.POST("/auth/signout", h.Account.SignOut)
			protected.GET("/auth/session", h.Account.Session)
			protected.DELETE("/account", h.Account.DeleteAccount)
		}
	}

	log.Infow("API routes successfully configured")
}
