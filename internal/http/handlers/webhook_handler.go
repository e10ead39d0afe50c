package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/checkout-service/internal/services"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/Dhoini/checkout-service/pkg/res"

	"github.com/gin-gonic/gin"
)

const (
	// Ограничение на размер тела запроса вебхука (Stripe рекомендует ~65kb)
	maxRequestBodySize = int64(65536)
)

// WebhookHandler обрабатывает входящие вебхуки от Stripe.
type WebhookHandler struct {
	service *services.WebhookService
	log     *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(service *services.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, log: log}
}

// HandleStripeWebhook - обработчик для Gin, принимающий вебхуки Stripe.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Тело читается один раз: подпись считается по сырым байтам
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()

	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Request body too large"}, http.StatusRequestEntityTooLarge, h.log)
		} else {
			res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Cannot read request body"}, http.StatusBadRequest, h.log)
		}
		c.Abort()
		return
	}

	if err := h.service.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, h.log, err)
		return
	}

	res.JsonResponse(c.Writer, gin.H{"received": true}, http.StatusOK)
}
