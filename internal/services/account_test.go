package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/checkout-service/internal/identity/identitytest"
	"github.com/Dhoini/checkout-service/internal/leads"
	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/internal/repository"
	"github.com/Dhoini/checkout-service/internal/stripe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUpCreatesProfileAndForwardsLead(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	var (
		mu       sync.Mutex
		received []map[string]interface{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		received = append(received, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	forwarder := leads.NewForwarder(server.URL, "landing", time.Second, env.log)
	svc := NewAccountService(identitytest.NewFakeClient(), env.profiles, env.subs, forwarder, env.log)

	result, err := svc.SignUp(ctx, SignUpInput{
		Email:       "ada@example.com",
		Password:    "s3cret-pass",
		FullName:    "Ada Lovelace",
		CompanyName: "Analytical Engines",
		PhoneNumber: "+15550100",
		PlanName:    "Growth",
		PriceID:     testPriceMonthly,
	})
	require.NoError(t, err)
	require.NotNil(t, result.User)

	profile, err := env.profiles.GetByID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", profile.FullName)
	assert.Equal(t, "Analytical Engines", profile.CompanyName)
	assert.Equal(t, "ada@example.com", profile.Email)

	forwarder.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "Growth", received[0]["planName"])
	assert.Equal(t, "web", received[0]["platform"])
	assert.NotContains(t, received[0], "password")
}

func TestSignUpSucceedsWhenLeadForwardingFails(t *testing.T) {
	env := newTestEnv()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	forwarder := leads.NewForwarder(server.URL, "landing", time.Second, env.log)
	svc := NewAccountService(identitytest.NewFakeClient(), env.profiles, env.subs, forwarder, env.log)

	_, err := svc.SignUp(context.Background(), SignUpInput{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	forwarder.Wait()
}

func TestSignUpErrors(t *testing.T) {
	env := newTestEnv()
	idp := identitytest.NewFakeClient()
	idp.AddUser("user-1", "ada@example.com", "pw")
	svc := NewAccountService(idp, env.profiles, env.subs, nil, env.log)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "ada@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidInput, "already registered is a client error")

	idp.Err = errors.New("connection refused")
	_, err = svc.SignUp(ctx, SignUpInput{Email: "bob@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrIdentity)
}

func TestSignInAndSession(t *testing.T) {
	env := newTestEnv()
	idp := identitytest.NewFakeClient()
	idp.AddUser("user-1", "ada@example.com", "pw")
	svc := NewAccountService(idp, env.profiles, env.subs, nil, env.log)
	ctx := context.Background()

	_, err := svc.SignIn(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	session, err := svc.SignIn(ctx, "ada@example.com", "pw")
	require.NoError(t, err)

	user, err := svc.CurrentUser(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Nil(t, user.Profile)

	require.NoError(t, env.profiles.Upsert(ctx, &models.Profile{ID: "user-1", FullName: "Ada Lovelace", Email: "ada@example.com"}))
	user, err = svc.CurrentUser(ctx, session.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, user.Profile)
	assert.Equal(t, "Ada Lovelace", user.Profile.FullName)

	body, err := json.Marshal(user)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"id":"user-1"`)
	assert.Contains(t, string(body), `"full_name":"Ada Lovelace"`)

	require.NoError(t, svc.SignOut(ctx, session.AccessToken))
	_, err = svc.CurrentUser(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv()
	idp := identitytest.NewFakeClient()
	idp.AddUser("user-1", "ada@example.com", "pw")
	svc := NewAccountService(idp, env.profiles, env.subs, nil, env.log)
	ctx := context.Background()

	_, err := env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(ctx, "user-1"))
	assert.Equal(t, []string{"user-1"}, idp.Deleted)

	_, err = env.subs.GetByUserID(ctx, "user-1")
	assert.Error(t, err)

	// Профиля не было: это не ошибка
	idp.AddUser("user-2", "bob@example.com", "pw")
	require.NoError(t, svc.DeleteAccount(ctx, "user-2"))
}

func TestDeleteAccount_LateWebhookDoesNotRecreateRow(t *testing.T) {
	env := newTestEnv()
	idp := identitytest.NewFakeClient()
	idp.AddUser("user-1", "ada@example.com", "pw")
	svc := NewAccountService(idp, env.profiles, env.subs, nil, env.log)
	webhooks := env.webhookService()
	ctx := context.Background()

	customerID, err := env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAccount(ctx, "user-1"))

	// Клиент в Stripe остается и по-прежнему несет user_id в метаданных
	payload, sig := signedEvent(t, subscriptionEvent("evt_late", stripe.EventSubscriptionUpdated, 1700000100, "sub_1", customerID, "active"))
	require.NoError(t, webhooks.Handle(ctx, payload, sig))

	_, err = env.subs.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = env.subs.GetByCustomerID(ctx, customerID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
