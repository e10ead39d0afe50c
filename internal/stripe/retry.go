package stripe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v78"
)

// RetryPolicy - экспоненциальные повторы временных ошибок Stripe.
// MaxElapsed == 0 отключает повторы.
type RetryPolicy struct {
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy возвращает политику с заданным общим лимитом времени.
func DefaultRetryPolicy(maxElapsed time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxElapsed:      maxElapsed,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
	}
}

// Do выполняет operation, повторяя ее при retryable ошибках.
// Ключ идемпотентности лежит в параметрах запроса, поэтому повтор безопасен.
func (p RetryPolicy) Do(ctx context.Context, log *logger.Logger, operation func() error) error {
	if p.MaxElapsed <= 0 {
		return operation()
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = p.MaxElapsed
	bo.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := operation()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		log.Warnw("Retryable Stripe error occurred, retrying", "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(bo, ctx))
}

// IsRetryable проверяет, является ли ошибка подходящей для повторной попытки
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		// Rate Limit
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		// Конфликт идемпотентности: параллельный запрос с тем же ключом еще выполняется
		if stripeErr.HTTPStatusCode == http.StatusConflict && stripeErr.Type == stripe.ErrorTypeIdempotency {
			return true
		}
		// 5xx временные, кроме 501
		return stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented
	}

	// Ошибки соединения
	var netErr net.Error
	return errors.As(err, &netErr)
}
