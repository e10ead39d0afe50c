package stripe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

const subscriptionEvent = `{
	"id":"evt_1","object":"event","type":"customer.subscription.updated","created":1700000500,
	"api_version":"2020-08-27",
	"data":{"object":{
		"id":"sub_1","object":"subscription","status":"active","customer":"cus_1",
		"current_period_start":1700000000,"current_period_end":1702592000,
		"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_pro"}}]}
	}}
}`

func TestParseWebhookEvent(t *testing.T) {
	header, payload := signed(t, subscriptionEvent)

	event, err := ParseWebhookEvent(payload, header, testWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventSubscriptionUpdated, event.Type)
	assert.Equal(t, int64(1700000500), event.Created.Unix())

	sub, err := event.DecodeSubscription()
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "price_pro", sub.PriceID)
	assert.Equal(t, int64(1700000000), sub.CurrentPeriodStart.Unix())
}

func TestParseWebhookEventRejectsBadSignature(t *testing.T) {
	header, payload := signed(t, subscriptionEvent)

	_, err := ParseWebhookEvent(payload, header, "whsec_other")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ParseWebhookEvent(payload, "", testWebhookSecret)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	_, err = ParseWebhookEvent(tampered, header, testWebhookSecret)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeCheckoutSession(t *testing.T) {
	header, payload := signed(t, `{
		"id":"evt_2","object":"event","type":"checkout.session.completed","created":1700000600,
		"data":{"object":{"id":"cs_1","object":"checkout.session","customer":"cus_1","subscription":"sub_9",
			"customer_details":{"email":"ada@example.com"},"metadata":{"planName":"Growth"}}}
	}`)

	event, err := ParseWebhookEvent(payload, header, testWebhookSecret)
	require.NoError(t, err)

	session, err := event.DecodeCheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "cus_1", session.CustomerID)
	assert.Equal(t, "sub_9", session.SubscriptionID)
	assert.Equal(t, "ada@example.com", session.CustomerEmail)
	assert.Equal(t, "Growth", session.Metadata[MetadataPlanNameKey])
}

func TestCustomerUserIDFallsBackToLegacyKey(t *testing.T) {
	c := &Customer{Metadata: map[string]string{MetadataLegacyUserIDKey: "user-legacy"}}
	assert.Equal(t, "user-legacy", c.UserID())

	var nilCustomer *Customer
	assert.Empty(t, nilCustomer.UserID())
}
