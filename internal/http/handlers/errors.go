package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/internal/services"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/Dhoini/checkout-service/pkg/res"

	"github.com/gin-gonic/gin"
)

// statusFor сопоставляет ошибки сервисного слоя HTTP-кодам и публичным сообщениям.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, services.ErrInvalidSignature):
		return http.StatusBadRequest, "Webhook signature verification failed"
	case errors.Is(err, services.ErrUnknownPrice):
		return http.StatusBadRequest, "Unknown price"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, services.ErrClientSecretMissing):
		return http.StatusInternalServerError, "Could not retrieve client_secret from subscription"
	case errors.Is(err, services.ErrStripeClient):
		return http.StatusInternalServerError, "Payment provider error"
	case errors.Is(err, services.ErrIdentity):
		return http.StatusInternalServerError, "Identity provider error"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError пишет JSON-ошибку и прерывает цепочку gin.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	status, message := statusFor(err)
	_ = c.Error(err)
	res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: message}, status, log)
	c.Abort()
}

// requireSameUser проверяет, что userId из тела совпадает с пользователем токена.
func requireSameUser(c *gin.Context, log *logger.Logger, bodyUserID string) (string, bool) {
	tokenUserID := middleware.UserID(c)
	if tokenUserID == "" {
		respondError(c, log, services.ErrUnauthenticated)
		return "", false
	}
	if bodyUserID != "" && bodyUserID != tokenUserID {
		log.Warnw("User id in body does not match token", "tokenUserID", tokenUserID, "bodyUserID", bodyUserID)
		respondError(c, log, services.ErrForbidden)
		return "", false
	}
	return tokenUserID, true
}
