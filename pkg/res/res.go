package res

import (
	"encoding/json"
	"net/http"

	"github.com/Dhoini/checkout-service/pkg/logger"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Error     string `json:"error"`                // Сообщение об ошибке (для пользователя)
	ErrorCode int    `json:"error_code,omitempty"` // Код ошибки (для программной обработки)
	Details   any    `json:"details,omitempty"`    // Детали ошибки (например, ошибки валидации)
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse отправляет JSON ответ ошибки и логирует его.
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *logger.Logger) {
	if errResponse.ErrorCode == 0 {
		errResponse.ErrorCode = status
	}
	JsonResponse(w, errResponse, status)
	if status >= http.StatusInternalServerError {
		log.Errorw("Error response sent", "status", status, "error", errResponse.Error)
		return
	}
	log.Warnw("Error response sent", "status", status, "error", errResponse.Error)
}
