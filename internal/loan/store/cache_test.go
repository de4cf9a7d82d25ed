// internal/loan/store/cache_test.go
package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/lifecycle"
	"loan-workers/internal/models"
)

// countingStore tracks how often the backing store is read.
type countingStore struct {
	mu   sync.Mutex
	apps map[string]*models.LoanApplication
	gets int
}

func newCountingStore() *countingStore {
	return &countingStore{apps: make(map[string]*models.LoanApplication)}
}

func (s *countingStore) Create(_ context.Context, app *models.LoanApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *app
	s.apps[app.ApplicationID] = &copied
	return nil
}

func (s *countingStore) Get(_ context.Context, applicationID string) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	app, ok := s.apps[applicationID]
	if !ok {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	copied := *app
	return &copied, nil
}

func (s *countingStore) List(_ context.Context) ([]models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LoanApplication, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, *app)
	}
	return out, nil
}

func (s *countingStore) CompleteProcessing(_ context.Context, applicationID string, extractedIncome *float64, to lifecycle.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[applicationID].Status = string(to)
	s.apps[applicationID].ExtractedIncome = extractedIncome
	return nil
}

func (s *countingStore) Approve(_ context.Context, applicationID string, contractRef, scheduleRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[applicationID].Status = string(lifecycle.StatusApproved)
	s.apps[applicationID].ContractRef = contractRef
	s.apps[applicationID].ScheduleRef = scheduleRef
	return nil
}

func (s *countingStore) Reject(_ context.Context, applicationID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[applicationID].Status = string(lifecycle.StatusRejected)
	s.apps[applicationID].RejectReason = reason
	return nil
}

func (s *countingStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func setupCache(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := newCountingStore()
	return NewCachedStore(inner, client, 5*time.Minute, logger.NewTestLogger(t)), inner
}

func cachedApplication() *models.LoanApplication {
	now := time.Now().UTC()
	return &models.LoanApplication{
		ApplicationID:  "app-cache-1",
		Principal:      12000,
		TermMonths:     12,
		DeclaredIncome: 4000,
		Status:         string(lifecycle.StatusSubmitted),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCachedStore_SecondReadServedFromCache(t *testing.T) {
	cache, inner := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Create(ctx, cachedApplication()))

	first, err := cache.Get(ctx, "app-cache-1")
	require.NoError(t, err)
	second, err := cache.Get(ctx, "app-cache-1")
	require.NoError(t, err)

	assert.Equal(t, first.ApplicationID, second.ApplicationID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, inner.getCount())
}

func TestCachedStore_TransitionInvalidatesCachedRecord(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Create(ctx, cachedApplication()))
	_, err := cache.Get(ctx, "app-cache-1")
	require.NoError(t, err)

	income := 4500.0
	require.NoError(t, cache.CompleteProcessing(ctx, "app-cache-1", &income, lifecycle.StatusPreApproved))

	app, err := cache.Get(ctx, "app-cache-1")
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatusPreApproved), app.Status)
	require.NotNil(t, app.ExtractedIncome)
	assert.Equal(t, 4500.0, *app.ExtractedIncome)
}

func TestCachedStore_ApproveAndRejectInvalidate(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Create(ctx, cachedApplication()))
	_, err := cache.Get(ctx, "app-cache-1")
	require.NoError(t, err)

	require.NoError(t, cache.Approve(ctx, "app-cache-1", "contract-1", "schedule-1"))
	app, err := cache.Get(ctx, "app-cache-1")
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatusApproved), app.Status)
	assert.Equal(t, "contract-1", app.ContractRef)

	other := cachedApplication()
	other.ApplicationID = "app-cache-2"
	require.NoError(t, cache.Create(ctx, other))
	_, err = cache.Get(ctx, "app-cache-2")
	require.NoError(t, err)

	require.NoError(t, cache.Reject(ctx, "app-cache-2", "withdrawn"))
	rejected, err := cache.Get(ctx, "app-cache-2")
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatusRejected), rejected.Status)
	assert.Equal(t, "withdrawn", rejected.RejectReason)
}

func TestCachedStore_RedisDownFallsBackToDatabase(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := newCountingStore()
	cache := NewCachedStore(inner, client, 5*time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	require.NoError(t, cache.Create(ctx, cachedApplication()))
	mr.Close()

	app, err := cache.Get(ctx, "app-cache-1")
	require.NoError(t, err)
	assert.Equal(t, "app-cache-1", app.ApplicationID)
}

func TestCachedStore_NotFoundPassesThrough(t *testing.T) {
	cache, _ := setupCache(t)

	_, err := cache.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationNotFound))
}
