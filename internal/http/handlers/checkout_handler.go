package handlers

import (
	"net/http"

	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/internal/services"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/Dhoini/checkout-service/pkg/req"
	"github.com/Dhoini/checkout-service/pkg/res"

	"github.com/gin-gonic/gin"
)

// CheckoutHandler - hosted checkout и каталог тарифов.
type CheckoutHandler struct {
	service *services.CheckoutService
	catalog *services.Catalog
	log     *logger.Logger
}

// NewCheckoutHandler создает новый экземпляр CheckoutHandler.
func NewCheckoutHandler(service *services.CheckoutService, catalog *services.Catalog, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, catalog: catalog, log: log}
}

type CreateCheckoutSessionRequest struct {
	PriceID  string `json:"priceId" validate:"required"`
	PlanName string `json:"planName"`
}

// CreateCheckoutSession обрабатывает POST /checkout/sessions
func (h *CheckoutHandler) CreateCheckoutSession(c *gin.Context) {
	body, err := req.HandleBody[CreateCheckoutSessionRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}
	userID, ok := requireSameUser(c, h.log, "")
	if !ok {
		return
	}

	output, err := h.service.CreateCheckoutSession(c.Request.Context(), services.CreateCheckoutSessionInput{
		UserID:   userID,
		Email:    middleware.UserEmail(c),
		PriceID:  body.PriceID,
		PlanName: body.PlanName,
		Origin:   c.GetHeader("Origin"),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	res.JsonResponse(c.Writer, output, http.StatusOK)
}

// GetCheckoutSession обрабатывает GET /checkout/sessions/:session_id
func (h *CheckoutHandler) GetCheckoutSession(c *gin.Context) {
	info, err := h.service.GetCheckoutSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, info, http.StatusOK)
}

// ListPlans обрабатывает GET /plans
func (h *CheckoutHandler) ListPlans(c *gin.Context) {
	res.JsonResponse(c.Writer, h.catalog.Plans(), http.StatusOK)
}
