package pid

import (
	"context"
	"log/slog"
	"sync/atomic"

	"curator/internal/record/models"
	"curator/pkg/platform/circuit"
)

// BreakerProvider wraps a provider with a circuit breaker. Only
// infrastructure failures (timeouts, outages, rate limits) trip the
// breaker; rejections like bad payloads mean the authority is up and count
// as successes. While open, a single probe call is let through at a time
// and everything else fails fast with a retryable outage, so the job
// runner requeues instead of piling onto a struggling authority.
type BreakerProvider struct {
	inner   Provider
	breaker *circuit.Breaker
	logger  *slog.Logger
	probing atomic.Bool
}

func WithBreaker(inner Provider, breaker *circuit.Breaker, logger *slog.Logger) *BreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerProvider{inner: inner, breaker: breaker, logger: logger}
}

func (b *BreakerProvider) Name() string {
	return b.inner.Name()
}

func (b *BreakerProvider) Create(ctx context.Context, rec *models.Record) (models.PID, error) {
	var p models.PID
	err := b.call(ctx, "create", "", "", func() error {
		var err error
		p, err = b.inner.Create(ctx, rec)
		return err
	})
	return p, err
}

func (b *BreakerProvider) Reserve(ctx context.Context, p models.PID) error {
	return b.call(ctx, "reserve", p.Scheme, p.Identifier, func() error {
		return b.inner.Reserve(ctx, p)
	})
}

func (b *BreakerProvider) Register(ctx context.Context, req RegistrationRequest) error {
	return b.call(ctx, "register", req.Scheme, req.PID.Identifier, func() error {
		return b.inner.Register(ctx, req)
	})
}

func (b *BreakerProvider) Update(ctx context.Context, req RegistrationRequest) error {
	return b.call(ctx, "update", req.Scheme, req.PID.Identifier, func() error {
		return b.inner.Update(ctx, req)
	})
}

func (b *BreakerProvider) Read(ctx context.Context, scheme, identifier string) (models.PID, error) {
	var p models.PID
	err := b.call(ctx, "read", scheme, identifier, func() error {
		var err error
		p, err = b.inner.Read(ctx, scheme, identifier)
		return err
	})
	return p, err
}

func (b *BreakerProvider) Discard(ctx context.Context, scheme, identifier string) error {
	return b.call(ctx, "discard", scheme, identifier, func() error {
		return b.inner.Discard(ctx, scheme, identifier)
	})
}

func (b *BreakerProvider) Hide(ctx context.Context, identifier string) error {
	return b.call(ctx, "hide", "", identifier, func() error {
		return b.inner.Hide(ctx, identifier)
	})
}

func (b *BreakerProvider) call(ctx context.Context, op, scheme, identifier string, fn func() error) error {
	if b.breaker.IsOpen() {
		// One probe at a time while open; the rest fail fast.
		if !b.probing.CompareAndSwap(false, true) {
			return NewProviderError(ErrorOutage, b.inner.Name(), scheme, identifier,
				"circuit open", nil)
		}
		defer b.probing.Store(false)
	}

	err := fn()
	b.observe(ctx, op, err)
	return err
}

func (b *BreakerProvider) observe(ctx context.Context, op string, err error) {
	if err != nil && IsRetryable(err) {
		if _, change := b.breaker.RecordFailure(); change.Opened {
			b.logger.WarnContext(ctx, "provider circuit opened",
				"provider", b.inner.Name(), "breaker", b.breaker.Name(), "op", op)
		}
		return
	}
	if _, change := b.breaker.RecordSuccess(); change.Closed {
		b.logger.InfoContext(ctx, "provider circuit closed",
			"provider", b.inner.Name(), "breaker", b.breaker.Name(), "op", op)
	}
}
