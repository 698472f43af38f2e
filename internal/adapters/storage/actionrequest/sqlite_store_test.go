package actionrequest_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/adapters/storage/actionrequest"
	"studio/internal/adapters/storage/storagetest"
	domain "studio/internal/domain/actionrequest"
	"studio/internal/domain/approval"
)

var now = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T) *actionrequest.SQLiteStore {
	t.Helper()
	store := actionrequest.NewSQLiteStore(storagetest.Open(t))
	md := approval.Metadata{HasAthlete: true, AthleteName: "Sam Lee", RequesterID: "coach-1"}
	r := domain.New("R1", "coach-1", approval.ActionDeleteSession, "", "B1", "double booked", md, now)
	require.NoError(t, r.Validate())
	require.NoError(t, store.Create(context.Background(), r))
	return store
}

func TestCreateAndGet(t *testing.T) {
	store := seed(t)
	got, err := store.GetByID(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "booking", got.TargetTable)
	assert.Equal(t, "Sam Lee", got.Metadata.AthleteName)
	assert.True(t, got.IsPending())
	assert.Nil(t, got.ReviewedAt)

	pending, err := store.List(context.Background(), domain.StatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestReviewOnce(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	got, err := store.Review(ctx, "R1", domain.StatusApproved, "admin-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	assert.Equal(t, "admin-1", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	_, err = store.Review(ctx, "R1", domain.StatusDenied, "admin-2", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)

	again, err := store.GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, again.Status)
	assert.Equal(t, "admin-1", again.ReviewedBy)

	_, err = store.Review(ctx, "missing", domain.StatusApproved, "admin-1", now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentReviewsOneWins(t *testing.T) {
	store := seed(t)

	var won, lost atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Review(context.Background(), "R1", domain.StatusApproved, "admin-1", now)
			if err == nil {
				won.Add(1)
			} else if errors.Is(err, domain.ErrAlreadyReviewed) {
				lost.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(5), lost.Load())
}
