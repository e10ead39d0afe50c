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

// CustomerHandler обрабатывает создание Stripe Customer.
type CustomerHandler struct {
	provisioning *services.ProvisioningService
	log          *logger.Logger
}

// NewCustomerHandler создает новый экземпляр CustomerHandler.
func NewCustomerHandler(provisioning *services.ProvisioningService, log *logger.Logger) *CustomerHandler {
	return &CustomerHandler{provisioning: provisioning, log: log}
}

type CreateCustomerRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type CreateCustomerResponse struct {
	StripeCustomerID string `json:"stripeCustomerId"`
}

// CreateCustomer обрабатывает POST /customers
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	body, err := req.HandleBody[CreateCustomerRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}
	userID, ok := requireSameUser(c, h.log, body.UserID)
	if !ok {
		return
	}

	customerID, err := h.provisioning.ProvisionCustomer(c.Request.Context(), userID, middleware.UserEmail(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	res.JsonResponse(c.Writer, CreateCustomerResponse{StripeCustomerID: customerID}, http.StatusOK)
}
