package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Dhoini/checkout-service/internal/services"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.ErrUnauthenticated, http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: bad", services.ErrInvalidSignature), http.StatusBadRequest},
		{fmt.Errorf("%w: price_x", services.ErrUnknownPrice), http.StatusBadRequest},
		{fmt.Errorf("%w: priceId is required", services.ErrInvalidInput), http.StatusBadRequest},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrClientSecretMissing, http.StatusInternalServerError},
		{fmt.Errorf("%w: timeout", services.ErrStripeClient), http.StatusInternalServerError},
		{services.ErrIdentity, http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestStatusForHidesInternalDetails(t *testing.T) {
	_, msg := statusFor(fmt.Errorf("%w: pq: connection refused", services.ErrInternalServer))
	assert.Equal(t, "Internal server error", msg)
}
