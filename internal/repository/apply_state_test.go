package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Dhoini/checkout-service/internal/db"
	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Один и тот же набор сценариев ApplyState прогоняется на памяти и на PostgreSQL,
// чтобы WHERE в SQL и isStale не разошлись.

type applyStep struct {
	state   models.SubscriptionState
	applied bool
}

type wantRow struct {
	customerID     string
	subscriptionID string
	planID         string
	status         models.SubscriptionStatus
	periodEnd      *time.Time
	lastEventAt    *time.Time
}

var applyStateCases = []struct {
	name  string
	steps []applyStep
	want  wantRow
}{
	{
		name: "insert defaults to incomplete",
		steps: []applyStep{
			{state: models.SubscriptionState{StripeCustomerID: "cus_1"}, applied: true},
		},
		want: wantRow{customerID: "cus_1", status: models.StatusIncomplete},
	},
	{
		name: "empty fields keep stored values",
		steps: []applyStep{
			{state: models.SubscriptionState{
				StripeCustomerID:     "cus_1",
				StripeSubscriptionID: "sub_1",
				PlanID:               "price_basic",
				Status:               models.StatusIncomplete,
				CurrentPeriodStart:   ts(100),
				CurrentPeriodEnd:     ts(200),
			}, applied: true},
			{state: models.SubscriptionState{Status: models.StatusActive}, applied: true},
		},
		want: wantRow{customerID: "cus_1", subscriptionID: "sub_1", planID: "price_basic", status: models.StatusActive, periodEnd: ts(200)},
	},
	{
		name: "newer event applies",
		steps: []applyStep{
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusActive, EventAt: ts(1000)}, applied: true},
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusPastDue, EventAt: ts(2000)}, applied: true},
		},
		want: wantRow{subscriptionID: "sub_1", status: models.StatusPastDue, lastEventAt: ts(2000)},
	},
	{
		name: "older event is skipped",
		steps: []applyStep{
			{state: models.SubscriptionState{Status: models.StatusActive, EventAt: ts(2000)}, applied: true},
			{state: models.SubscriptionState{Status: models.StatusIncomplete, EventAt: ts(1000)}, applied: false},
		},
		want: wantRow{status: models.StatusActive, lastEventAt: ts(2000)},
	},
	{
		name: "equal event time applies",
		steps: []applyStep{
			{state: models.SubscriptionState{Status: models.StatusActive, EventAt: ts(2000)}, applied: true},
			{state: models.SubscriptionState{Status: models.StatusPastDue, EventAt: ts(2000)}, applied: true},
		},
		want: wantRow{status: models.StatusPastDue, lastEventAt: ts(2000)},
	},
	{
		name: "no event time before any webhook applies",
		steps: []applyStep{
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusIncomplete}, applied: true},
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusActive}, applied: true},
		},
		want: wantRow{subscriptionID: "sub_1", status: models.StatusActive},
	},
	{
		name: "no event time for same subscription after webhook is skipped",
		steps: []applyStep{
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusActive, EventAt: ts(50)}, applied: true},
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusIncomplete}, applied: false},
		},
		want: wantRow{subscriptionID: "sub_1", status: models.StatusActive, lastEventAt: ts(50)},
	},
	{
		name: "no event time for other subscription applies and keeps last event time",
		steps: []applyStep{
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusActive, EventAt: ts(50)}, applied: true},
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_2", PlanID: "price_pro"}, applied: true},
		},
		want: wantRow{subscriptionID: "sub_2", planID: "price_pro", status: models.StatusActive, lastEventAt: ts(50)},
	},
	{
		name: "no event time without subscription id applies",
		steps: []applyStep{
			{state: models.SubscriptionState{StripeSubscriptionID: "sub_1", Status: models.StatusActive, EventAt: ts(50)}, applied: true},
			{state: models.SubscriptionState{PlanID: "price_pro"}, applied: true},
		},
		want: wantRow{subscriptionID: "sub_1", planID: "price_pro", status: models.StatusActive, lastEventAt: ts(50)},
	},
}

func assertSameTime(t *testing.T, want, got *time.Time, field string) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, field)
		return
	}
	if assert.NotNil(t, got, field) {
		assert.True(t, want.Equal(*got), "%s: want %s, got %s", field, want, got)
	}
}

func runApplyStateCases(t *testing.T, newRepo func(t *testing.T) SubscriptionRepository) {
	for _, tc := range applyStateCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			for i, step := range tc.steps {
				state := step.state
				state.UserID = "user-1"
				applied, err := repo.ApplyState(ctx, state)
				require.NoError(t, err, "step %d", i)
				assert.Equal(t, step.applied, applied, "step %d", i)
			}

			row, err := repo.GetByUserID(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want.customerID, row.StripeCustomerID)
			assert.Equal(t, tc.want.subscriptionID, row.StripeSubscriptionID)
			assert.Equal(t, tc.want.planID, row.PlanID)
			assert.Equal(t, tc.want.status, row.Status)
			assertSameTime(t, tc.want.periodEnd, row.CurrentPeriodEnd, "current_period_end")
			assertSameTime(t, tc.want.lastEventAt, row.LastEventAt, "last_event_at")
		})
	}

	t.Run("customer mapped to another user", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		_, err := repo.ClaimCustomerID(ctx, "user-1", "cus_shared")
		require.NoError(t, err)

		_, err = repo.ApplyState(ctx, models.SubscriptionState{UserID: "user-2", StripeCustomerID: "cus_shared", Status: models.StatusActive})
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestApplyState_InMemory(t *testing.T) {
	runApplyStateCases(t, func(*testing.T) SubscriptionRepository {
		return NewInMemorySubscriptionRepository(logger.Nop())
	})
}

// Нужна живая база: CHECKOUT_TEST_DATABASE_DSN=postgres://... go test ./internal/repository/
func TestApplyState_Postgres(t *testing.T) {
	dsn := os.Getenv("CHECKOUT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("CHECKOUT_TEST_DATABASE_DSN is not set")
	}

	ctx := context.Background()
	client, err := db.NewDBClient(ctx, dsn, db.Options{}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(ctx))

	runApplyStateCases(t, func(t *testing.T) SubscriptionRepository {
		_, err := client.DB().ExecContext(ctx, `TRUNCATE user_subscriptions`)
		require.NoError(t, err)
		return NewPostgresSubscriptionRepository(client.DB(), logger.Nop())
	})
}
