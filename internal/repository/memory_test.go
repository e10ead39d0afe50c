package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

func TestClaimCustomerIDKeepsFirstWriter(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.Nop())

	got, err := repo.ClaimCustomerID(ctx, "user-1", "cus_first")
	require.NoError(t, err)
	assert.Equal(t, "cus_first", got)

	got, err = repo.ClaimCustomerID(ctx, "user-1", "cus_second")
	require.NoError(t, err)
	assert.Equal(t, "cus_first", got)

	row, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_first", row.StripeCustomerID)
	assert.Equal(t, models.StatusIncomplete, row.Status)
}

func TestClaimCustomerIDConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.Nop())

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := repo.ClaimCustomerID(ctx, "user-1", fmt.Sprintf("cus_%d", i))
			assert.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}
}

func TestCustomerIDIsUniqueAcrossUsers(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.Nop())

	_, err := repo.ClaimCustomerID(ctx, "user-1", "cus_shared")
	require.NoError(t, err)

	_, err = repo.ClaimCustomerID(ctx, "user-2", "cus_shared")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestReplaceCustomerID(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.Nop())

	_, err := repo.ClaimCustomerID(ctx, "user-1", "cus_old")
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceCustomerID(ctx, "user-1", "cus_new"))

	row, err := repo.GetByCustomerID(ctx, "cus_new")
	require.NoError(t, err)
	assert.Equal(t, "user-1", row.UserID)

	_, err = repo.GetByCustomerID(ctx, "cus_old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyStateRequiresUserID(t *testing.T) {
	repo := NewInMemorySubscriptionRepository(logger.Nop())

	_, err := repo.ApplyState(context.Background(), models.SubscriptionState{Status: models.StatusActive})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDeleteByUserID(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.Nop())

	_, err := repo.ClaimCustomerID(ctx, "user-1", "cus_1")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByUserID(ctx, "user-1"))
	assert.ErrorIs(t, repo.DeleteByUserID(ctx, "user-1"), ErrNotFound)

	_, err = repo.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileUpsertKeepsExistingFields(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryProfileRepository()

	require.NoError(t, repo.Upsert(ctx, &models.Profile{ID: "user-1", FullName: "Ada", CompanyName: "Acme"}))
	require.NoError(t, repo.Upsert(ctx, &models.Profile{ID: "user-1", PhoneNumber: "+100"}))

	p, err := repo.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.FullName)
	assert.Equal(t, "Acme", p.CompanyName)
	assert.Equal(t, "+100", p.PhoneNumber)

	require.NoError(t, repo.Delete(ctx, "user-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "user-1"), ErrNotFound)
}
