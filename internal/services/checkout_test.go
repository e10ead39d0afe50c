package services

import (
	"context"
	"testing"

	"github.com/Dhoini/checkout-service/internal/stripe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSession(t *testing.T) {
	env := newTestEnv()
	svc := env.checkoutService("https://site.example")
	ctx := context.Background()

	out, err := svc.CreateCheckoutSession(ctx, CreateCheckoutSessionInput{
		UserID:  "user-1",
		Email:   "ada@example.com",
		PriceID: testPriceMonthly,
		Origin:  "https://app.example/",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.SessionID)
	assert.NotEmpty(t, out.URL)

	session := env.stripe.CheckoutSession(out.SessionID)
	require.NotNil(t, session)
	assert.Equal(t, "Growth", session.Metadata[stripe.MetadataPlanNameKey])
	assert.Equal(t, "user-1", session.Metadata[stripe.MetadataUserIDKey])

	row, err := env.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.CustomerID, row.StripeCustomerID)
}

func TestCreateCheckoutSession_FallsBackToSiteURL(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.checkoutService("").CreateCheckoutSession(ctx, CreateCheckoutSessionInput{UserID: "user-1", PriceID: testPriceMonthly})
	assert.ErrorIs(t, err, ErrInvalidInput)

	out, err := env.checkoutService("https://site.example").CreateCheckoutSession(ctx, CreateCheckoutSessionInput{
		UserID:   "user-1",
		PriceID:  testPriceMonthly,
		PlanName: "Custom",
	})
	require.NoError(t, err)
	assert.Equal(t, "Custom", env.stripe.CheckoutSession(out.SessionID).Metadata[stripe.MetadataPlanNameKey])
}

func TestCreateCheckoutSession_RejectsUnknownPrice(t *testing.T) {
	env := newTestEnv()

	_, err := env.checkoutService("https://site.example").CreateCheckoutSession(context.Background(), CreateCheckoutSessionInput{
		UserID:  "user-1",
		PriceID: "price_unknown",
	})
	assert.ErrorIs(t, err, ErrUnknownPrice)
	assert.Zero(t, env.stripe.CallCount("CreateCheckoutSession"))
}

func TestGetCheckoutSession(t *testing.T) {
	env := newTestEnv()
	svc := env.checkoutService("https://site.example")
	env.stripe.AddCheckoutSession(stripe.CheckoutSession{
		ID:            "cs_1",
		CustomerEmail: "ada@example.com",
		Metadata:      map[string]string{stripe.MetadataPlanNameKey: "Growth"},
	})

	info, err := svc.GetCheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "Growth", info.PlanName)
	assert.Equal(t, "ada@example.com", info.CustomerEmail)

	_, err = svc.GetCheckoutSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
