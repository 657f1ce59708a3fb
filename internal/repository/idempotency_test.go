package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/banking-transfers/internal/repository"
	"github.com/josh-kwaku/banking-transfers/internal/testutil"
)

func TestIdempotencyRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	user := testutil.SeedTestUser(t, db, "ada@example.com", "Ada")
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := repo.Get(ctx, "k1", user.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := &repository.StoredResponse{
		Key: "k1", UserID: user.ID, RequestHash: "h1", StatusCode: 201,
		ResponseBody: []byte(`{"success":true}`), CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, repo.Save(ctx, first))

	second := *first
	second.RequestHash = "h2"
	require.NoError(t, repo.Save(ctx, &second))

	got, err = repo.Get(ctx, "k1", user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h1", got.RequestHash, "a live entry is never overwritten")
	assert.Equal(t, []byte(`{"success":true}`), got.ResponseBody)

	expired := &repository.StoredResponse{
		Key: "old", UserID: user.ID, RequestHash: "h", StatusCode: 201,
		ResponseBody: []byte(`{}`), CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, repo.Save(ctx, expired))

	got, err = repo.Get(ctx, "old", user.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
