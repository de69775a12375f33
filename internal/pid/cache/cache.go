// Package cache decorates a pid.Provider with a Redis read-through cache.
// Provider reads are rate-limited upstream; caching them keeps reconcile
// jobs from hammering the registration authority.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"curator/internal/pid"
	"curator/internal/record/models"
)

// DefaultTTL bounds staleness of cached provider reads. Registration state
// changes flow through this process, which invalidates on every mutation.
const DefaultTTL = 5 * time.Minute

// ReadCache wraps a provider, caching Read results and invalidating on any
// mutating call. Cache failures degrade to direct provider calls. The scheme
// is fixed at construction because each registry binding is per scheme.
type ReadCache struct {
	inner  pid.Provider
	scheme string
	rdb    *redis.Client
	ttl    time.Duration
}

func New(inner pid.Provider, scheme string, rdb *redis.Client, ttl time.Duration) *ReadCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReadCache{inner: inner, scheme: scheme, rdb: rdb, ttl: ttl}
}

func (c *ReadCache) Name() string {
	return c.inner.Name()
}

func (c *ReadCache) Create(ctx context.Context, rec *models.Record) (models.PID, error) {
	return c.inner.Create(ctx, rec)
}

func (c *ReadCache) Reserve(ctx context.Context, p models.PID) error {
	if err := c.inner.Reserve(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.Scheme, p.Identifier)
	return nil
}

func (c *ReadCache) Register(ctx context.Context, req pid.RegistrationRequest) error {
	if err := c.inner.Register(ctx, req); err != nil {
		return err
	}
	c.invalidate(ctx, req.Scheme, req.PID.Identifier)
	return nil
}

func (c *ReadCache) Update(ctx context.Context, req pid.RegistrationRequest) error {
	if err := c.inner.Update(ctx, req); err != nil {
		return err
	}
	c.invalidate(ctx, req.Scheme, req.PID.Identifier)
	return nil
}

func (c *ReadCache) Read(ctx context.Context, scheme, identifier string) (models.PID, error) {
	key := cacheKey(scheme, identifier)
	cached, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var p models.PID
		if err := json.Unmarshal(cached, &p); err == nil {
			return p, nil
		}
		// Corrupt entry: fall through to the provider and overwrite.
	} else if !errors.Is(err, redis.Nil) {
		// Redis down: serve directly from the provider.
		return c.inner.Read(ctx, scheme, identifier)
	}

	p, err := c.inner.Read(ctx, scheme, identifier)
	if err != nil {
		return models.PID{}, err
	}
	if data, err := json.Marshal(p); err == nil {
		_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
	}
	return p, nil
}

func (c *ReadCache) Discard(ctx context.Context, scheme, identifier string) error {
	if err := c.inner.Discard(ctx, scheme, identifier); err != nil {
		return err
	}
	c.invalidate(ctx, scheme, identifier)
	return nil
}

func (c *ReadCache) Hide(ctx context.Context, identifier string) error {
	if err := c.inner.Hide(ctx, identifier); err != nil {
		return err
	}
	c.invalidate(ctx, c.scheme, identifier)
	return nil
}

func (c *ReadCache) invalidate(ctx context.Context, scheme, identifier string) {
	_ = c.rdb.Del(ctx, cacheKey(scheme, identifier)).Err()
}

func cacheKey(scheme, identifier string) string {
	return "pid:" + scheme + ":" + identifier
}
