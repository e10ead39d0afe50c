package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dhoini/checkout-service/pkg/res"

	"github.com/gin-gonic/gin"
)

// HealthChecker - зависимость, состояние которой попадает в /health.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler отдает состояние сервиса.
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler создает обработчик. checks может быть пустым.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health обрабатывает GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.PingContext(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{"status": status, "time": time.Now().UTC().Format(time.RFC3339)}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	res.JsonResponse(c.Writer, body, code)
}
