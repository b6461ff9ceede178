// Package ratelimit throttles requests with fixed-window counters kept in a
// domain.Cache, so the same limits hold across replicas sharing Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/metrics"
)

const keyPrefix = "ratelimit:"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int64
	Limit     int64
	Remaining int64
	Window    time.Duration
}

// Limiter counts requests per tenant and key.
type Limiter struct {
	counters domain.Cache
	limit    int64
	window   time.Duration
	metrics  *metrics.Collector
}

// New creates a Limiter allowing limit requests per window.
func New(counters domain.Cache, cfg domain.RateLimitConfig, m *metrics.Collector) (*Limiter, error) {
	if counters == nil {
		return nil, fmt.Errorf("%w: rate limiter needs a counter store", domain.ErrInvalidInput)
	}
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: rate limit requires positive requests and window", domain.ErrInvalidInput)
	}
	return &Limiter{
		counters: counters,
		limit:    cfg.Requests,
		window:   cfg.Window,
		metrics:  m,
	}, nil
}

// Allow counts one request. When the counter store fails the request is
// allowed and the error returned for logging.
func (l *Limiter) Allow(ctx context.Context, tenantID, key string) (Decision, error) {
	d := Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, Window: l.window}

	count, err := l.counters.IncrementCounter(ctx, tenantID, keyPrefix+key, l.window)
	if err != nil {
		slog.Warn("rate limit counter unavailable",
			"tenant_id", tenantID,
			"key", key,
			"error", err,
		)
		return d, fmt.Errorf("increment rate counter: %w", err)
	}

	d.Count = count
	d.Remaining = max(l.limit-count, 0)
	if count > l.limit {
		d.Allowed = false
		l.metrics.RateLimited(tenantID)
	}
	return d, nil
}
