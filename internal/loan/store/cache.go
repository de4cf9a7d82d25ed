// internal/loan/store/cache.go

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/lifecycle"
	"loan-workers/internal/models"
)

const cacheKeyPrefix = "loan:application:"

// CachedStore is a read-through cache over a lifecycle.Store. Single-record
// reads are served from Redis when possible; every write invalidates the
// cached record so readers never observe a stale status. Cache failures are
// logged and absorbed, the database stays the source of truth.
type CachedStore struct {
	inner  lifecycle.Store
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedStore wraps inner with a Redis cache. Records expire after ttl.
func NewCachedStore(inner lifecycle.Store, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedStore {
	return &CachedStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "store_cache"}),
	}
}

func (c *CachedStore) Create(ctx context.Context, app *models.LoanApplication) error {
	if err := c.inner.Create(ctx, app); err != nil {
		return err
	}
	c.invalidate(ctx, app.ApplicationID)
	return nil
}

func (c *CachedStore) Get(ctx context.Context, applicationID string) (*models.LoanApplication, error) {
	key := cacheKeyPrefix + applicationID

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var app models.LoanApplication
		if err := json.Unmarshal(payload, &app); err == nil {
			return &app, nil
		}
		// Unreadable entry, drop it and fall through to the database.
		c.invalidate(ctx, applicationID)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Cache read failed, falling back to database", map[string]interface{}{
			"error": err.Error(),
		})
	}

	app, err := c.inner.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(app); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("Cache write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return app, nil
}

// List always hits the database. The listing is an operator surface, not a
// hot path, and caching it would complicate invalidation for no gain.
func (c *CachedStore) List(ctx context.Context) ([]models.LoanApplication, error) {
	return c.inner.List(ctx)
}

func (c *CachedStore) CompleteProcessing(ctx context.Context, applicationID string, extractedIncome *float64, to lifecycle.Status) error {
	if err := c.inner.CompleteProcessing(ctx, applicationID, extractedIncome, to); err != nil {
		return err
	}
	c.invalidate(ctx, applicationID)
	return nil
}

func (c *CachedStore) Approve(ctx context.Context, applicationID string, contractRef, scheduleRef string) error {
	if err := c.inner.Approve(ctx, applicationID, contractRef, scheduleRef); err != nil {
		return err
	}
	c.invalidate(ctx, applicationID)
	return nil
}

func (c *CachedStore) Reject(ctx context.Context, applicationID string, reason string) error {
	if err := c.inner.Reject(ctx, applicationID, reason); err != nil {
		return err
	}
	c.invalidate(ctx, applicationID)
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context, applicationID string) {
	if err := c.client.Del(ctx, cacheKeyPrefix+applicationID).Err(); err != nil {
		c.logger.Warn("Cache invalidation failed", map[string]interface{}{
			"error":          err.Error(),
			"application_id": applicationID,
		})
	}
}
