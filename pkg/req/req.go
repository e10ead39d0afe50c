package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/Dhoini/checkout-service/pkg/res"
	"github.com/go-playground/validator/v10"
)

// validate кешируется: validator.New() строит кеш структур и дорог при каждом вызове.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode декодирует JSON из io.ReadCloser в структуру типа T.
func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	if body == nil {
		return payload, errors.New("empty request body")
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// IsValid валидирует структуру типа T.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// HandleBody декодирует, валидирует и обрабатывает тело запроса.
// При ошибке сам пишет 400 в ответ и возвращает ошибку.
func HandleBody[T any](w http.ResponseWriter, r *http.Request, log *logger.Logger) (*T, error) {
	body, err := Decode[T](r.Body)
	if err != nil {
		log.Warnw("Failed to decode request body", "error", err, "path", r.URL.Path)
		res.JsonResponse(w, res.ErrorResponse{Error: "Invalid request body", ErrorCode: http.StatusBadRequest}, http.StatusBadRequest)
		return nil, err
	}

	if err := IsValid(body); err != nil {
		log.Warnw("Request body validation failed", "error", err, "path", r.URL.Path)
		res.JsonResponse(w, res.ErrorResponse{
			Error:     "Invalid request data",
			ErrorCode: http.StatusBadRequest,
			Details:   validationDetails(err),
		}, http.StatusBadRequest)
		return nil, err
	}
	return &body, nil
}

// validationDetails превращает ошибки validator в map поле -> правило.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
