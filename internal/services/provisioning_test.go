package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/checkout-service/internal/stripe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionCustomer_CreatesAndPersists(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	customerID, err := env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, customerID)

	cus := env.stripe.Customer(customerID)
	require.NotNil(t, cus)
	assert.Equal(t, "user-1", cus.Metadata[stripe.MetadataUserIDKey])

	row, err := env.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, customerID, row.StripeCustomerID)
	assert.Equal(t, "incomplete", string(row.Status))
}

func TestProvisionCustomer_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	second, err := env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.stripe.CallCount("CreateCustomer"))
}

func TestProvisionCustomer_ConcurrentCallsYieldOneCustomer(t *testing.T) {
	env := newTestEnv()
	env.stripe.CreateDelay = 20 * time.Millisecond
	ctx := context.Background()

	const callers = 10
	ids := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, env.stripe.CustomerCount())

	row, err := env.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ids[0], row.StripeCustomerID)
}

func TestProvisionCustomer_CanceledCallerDoesNotFailSharedCall(t *testing.T) {
	env := newTestEnv()
	env.stripe.CreateDelay = 200 * time.Millisecond

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := env.provisioning.ProvisionCustomer(firstCtx, "user-1", "ada@example.com")
		firstErr <- err
	}()

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	time.Sleep(20 * time.Millisecond)
	go func() {
		id, err := env.provisioning.ProvisionCustomer(context.Background(), "user-1", "ada@example.com")
		second <- result{id, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	res := <-second
	require.NoError(t, res.err)
	require.NotEmpty(t, res.id)
	assert.Equal(t, 1, env.stripe.CustomerCount())

	row, err := env.subs.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, res.id, row.StripeCustomerID)
}

func TestProvisionCustomer_DoesNotOverwriteExistingMapping(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.subs.ClaimCustomerID(ctx, "user-1", "cus_existing")
	require.NoError(t, err)

	customerID, err := env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", customerID)
	assert.Zero(t, env.stripe.CallCount("CreateCustomer"))
}

func TestProvisionCustomer_Errors(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.provisioning.ProvisionCustomer(ctx, "", "ada@example.com")
	assert.ErrorIs(t, err, ErrInvalidInput)

	env.stripe.Errors["CreateCustomer"] = errors.New("boom")
	_, err = env.provisioning.ProvisionCustomer(ctx, "user-1", "ada@example.com")
	assert.ErrorIs(t, err, ErrStripeClient)

	_, err = env.subs.GetByUserID(ctx, "user-1")
	assert.Error(t, err, "no mapping must be stored after a failed create")
}

func TestResolveCustomer_UsesStoredCustomer(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stripe.AddCustomer(stripe.Customer{ID: "cus_stored", Email: "ada@example.com"})
	_, err := env.subs.ClaimCustomerID(ctx, "user-1", "cus_stored")
	require.NoError(t, err)

	customerID, err := env.provisioning.ResolveCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_stored", customerID)
	assert.Zero(t, env.stripe.CallCount("FindCustomerByEmail"))
}

func TestResolveCustomer_FallsBackToEmail(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stripe.AddCustomer(stripe.Customer{ID: "cus_by_email", Email: "ada@example.com"})

	customerID, err := env.provisioning.ResolveCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_by_email", customerID)
	assert.Zero(t, env.stripe.CallCount("CreateCustomer"))

	row, err := env.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_by_email", row.StripeCustomerID)
}

func TestResolveCustomer_ReplacesDeletedCustomer(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stripe.AddCustomer(stripe.Customer{ID: "cus_deleted", Email: "ada@example.com"})
	env.stripe.AddCustomer(stripe.Customer{ID: "cus_live", Email: "ada@example.com"})
	env.stripe.DeleteCustomer("cus_deleted")
	_, err := env.subs.ClaimCustomerID(ctx, "user-1", "cus_deleted")
	require.NoError(t, err)

	customerID, err := env.provisioning.ResolveCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_live", customerID)

	row, err := env.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_live", row.StripeCustomerID)
}

func TestResolveCustomer_ReplacesMissingCustomerWithNewOne(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	_, err := env.subs.ClaimCustomerID(ctx, "user-1", "cus_gone")
	require.NoError(t, err)

	customerID, err := env.provisioning.ResolveCustomer(ctx, "user-1", "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "cus_gone", customerID)
	assert.Equal(t, 1, env.stripe.CallCount("CreateCustomer"))

	row, err := env.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, customerID, row.StripeCustomerID)
}

func TestResolveCustomer_EmailMatchOwnedByAnotherUser(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stripe.AddCustomer(stripe.Customer{ID: "cus_other", Email: "shared@example.com"})
	_, err := env.subs.ClaimCustomerID(ctx, "user-2", "cus_other")
	require.NoError(t, err)

	customerID, err := env.provisioning.ResolveCustomer(ctx, "user-1", "shared@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "cus_other", customerID)

	other, err := env.subs.GetByUserID(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "cus_other", other.StripeCustomerID)
}

func TestResolveCustomer_StripeFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.stripe.Errors["FindCustomerByEmail"] = errors.New("stripe down")

	_, err := env.provisioning.ResolveCustomer(ctx, "user-1", "ada@example.com")
	assert.ErrorIs(t, err, ErrStripeClient)
}
