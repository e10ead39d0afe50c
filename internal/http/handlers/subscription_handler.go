package handlers

import (
	"net/http"

	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/internal/services"
	"github.com/Dhoini/checkout-service/internal/stripe"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/Dhoini/checkout-service/pkg/req"
	"github.com/Dhoini/checkout-service/pkg/res"

	"github.com/gin-gonic/gin"
)

// SubscriptionHandler обрабатывает HTTP запросы, связанные с подписками.
type SubscriptionHandler struct {
	service *services.SubscriptionService
	log     *logger.Logger
}

// NewSubscriptionHandler создает новый экземпляр SubscriptionHandler.
func NewSubscriptionHandler(service *services.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, log: log}
}

type CreateSubscriptionRequest struct {
	UserID  string          `json:"userId" validate:"required"`
	PriceID string          `json:"priceId" validate:"required"`
	Name    string          `json:"name"`
	Email   string          `json:"email" validate:"omitempty,email"`
	Phone   string          `json:"phone"`
	Address *stripe.Address `json:"address"`
}

// CreateSubscription обрабатывает POST /subscriptions
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	body, err := req.HandleBody[CreateSubscriptionRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}
	userID, ok := requireSameUser(c, h.log, body.UserID)
	if !ok {
		return
	}

	email := body.Email
	if email == "" {
		email = middleware.UserEmail(c)
	}

	output, err := h.service.CreateSubscription(c.Request.Context(), services.CreateSubscriptionInput{
		UserID:         userID,
		PriceID:        body.PriceID,
		Name:           body.Name,
		Email:          email,
		Phone:          body.Phone,
		Address:        body.Address,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	res.JsonResponse(c.Writer, output, http.StatusOK)
}
