package economic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/creditlens/internal/cache"
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/metrics"
)

// Shared cache location of the snapshot.
const (
	cacheTenant = "*"
	cacheKey    = "economic:snapshot"
)

// Service owns the process-wide economic snapshot. Reads are lock-shared;
// refreshes are single-flighted so concurrent expiry triggers one fetch.
type Service struct {
	provider Provider
	cache    domain.Cache
	metrics  *metrics.Collector

	ttl         time.Duration
	fallbackTTL time.Duration
	maxRetries  int
	backoff     time.Duration
	timeout     time.Duration
	now         func() time.Time

	mu        sync.RWMutex
	current   *domain.EconomicSnapshot
	expiresAt time.Time

	group singleflight.Group
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	TTL         time.Duration
	FallbackTTL time.Duration
	MaxRetries  int
	Backoff     time.Duration
	// Timeout bounds one refresh including retries. The refresh is detached
	// from the caller's context so a cancelled request cannot fail it.
	Timeout time.Duration
	Now     func() time.Time
}

// NewService creates the snapshot service. provider, cache and m may be nil.
func NewService(provider Provider, shared domain.Cache, m *metrics.Collector, cfg ServiceConfig) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = time.Hour
	}
	if cfg.FallbackTTL > cfg.TTL {
		cfg.FallbackTTL = cfg.TTL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		provider:    provider,
		cache:       shared,
		metrics:     m,
		ttl:         cfg.TTL,
		fallbackTTL: cfg.FallbackTTL,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.Backoff,
		timeout:     cfg.Timeout,
		now:         cfg.Now,
	}
}

// Snapshot returns the current snapshot, refreshing it once expired.
// It never fails: provider errors yield the fallback snapshot. If ctx ends
// while a refresh is in flight, the last known snapshot (or an uncached
// fallback) is returned and the refresh carries on for later callers.
func (s *Service) Snapshot(ctx context.Context) *domain.EconomicSnapshot {
	if snap, ok := s.fresh(); ok {
		s.metrics.EconomicFetch("cached")
		return snap
	}

	ch := s.group.DoChan("snapshot", func() (any, error) {
		// Another caller may have refreshed while we waited.
		if snap, ok := s.fresh(); ok {
			return snap, nil
		}

		fetchCtx, cancel := s.detach(ctx)
		defer cancel()

		if snap, expiresAt, ok := s.fromSharedCache(fetchCtx); ok {
			s.store(snap, expiresAt)
			s.metrics.EconomicFetch("cached")
			return snap, nil
		}
		snap, _ := s.refresh(fetchCtx)
		return snap, nil
	})

	select {
	case res := <-ch:
		return clone(res.Val.(*domain.EconomicSnapshot))
	case <-ctx.Done():
		return s.lastKnown()
	}
}

// Refresh fetches a new snapshot regardless of expiry. On provider failure
// the fallback is installed and the provider error returned.
func (s *Service) Refresh(ctx context.Context) (*domain.EconomicSnapshot, error) {
	ch := s.group.DoChan("snapshot", func() (any, error) {
		fetchCtx, cancel := s.detach(ctx)
		defer cancel()
		return s.refresh(fetchCtx)
	})

	select {
	case res := <-ch:
		return clone(res.Val.(*domain.EconomicSnapshot)), res.Err
	case <-ctx.Done():
		return s.lastKnown(), ctx.Err()
	}
}

func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// fresh returns a copy of the current snapshot if it has not expired.
func (s *Service) fresh() (*domain.EconomicSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil && s.now().Before(s.expiresAt) {
		return clone(s.current), true
	}
	return nil, false
}

// lastKnown returns the current snapshot even if expired, or a fallback
// that is not installed.
func (s *Service) lastKnown() *domain.EconomicSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil {
		return clone(s.current)
	}
	return Fallback(s.now())
}

func (s *Service) refresh(ctx context.Context) (*domain.EconomicSnapshot, error) {
	snap, err := s.fetchWithRetry(ctx)
	if err != nil {
		slog.Warn("economic provider unavailable, using fallback snapshot", "error", err)
		fb := Fallback(s.now())
		s.store(fb, s.now().Add(s.fallbackTTL))
		s.metrics.EconomicFetch("fallback")
		return fb, err
	}

	expiresAt := s.now().Add(s.ttl)
	s.store(snap, expiresAt)
	s.toSharedCache(ctx, snap, expiresAt)
	s.metrics.EconomicFetch("ok")
	slog.Info("economic snapshot refreshed",
		"source", snap.Source,
		"gdp_growth", snap.GDPGrowth,
		"policy_rate", snap.PolicyRate,
	)
	return snap, nil
}

func (s *Service) fetchWithRetry(ctx context.Context) (*domain.EconomicSnapshot, error) {
	if s.provider == nil {
		return nil, ErrNoSource
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter.
			backoff := s.backoff * (1 << uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		snap, err := s.provider.Fetch(ctx)
		if err == nil {
			return snap, nil
		}
		if errors.Is(err, ErrNoSource) {
			return nil, err
		}
		lastErr = err
		slog.Debug("economic fetch failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", s.maxRetries, lastErr)
}

func (s *Service) store(snap *domain.EconomicSnapshot, expiresAt time.Time) {
	s.mu.Lock()
	s.current = snap
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

// sharedSnapshot is the shared-cache entry. ExpiresAt is absolute so a
// process picking it up keeps the original deadline.
type sharedSnapshot struct {
	Snapshot  *domain.EconomicSnapshot `json:"snapshot"`
	ExpiresAt time.Time                `json:"expiresAt"`
}

func (s *Service) fromSharedCache(ctx context.Context) (*domain.EconomicSnapshot, time.Time, bool) {
	if s.cache == nil {
		return nil, time.Time{}, false
	}
	var entry sharedSnapshot
	ok, err := cache.GetJSON(ctx, s.cache, cacheTenant, cacheKey, &entry)
	ok = ok && err == nil && entry.Snapshot != nil && entry.ExpiresAt.After(s.now())
	s.metrics.CacheLookup("economic", ok)
	if !ok {
		return nil, time.Time{}, false
	}
	return entry.Snapshot, entry.ExpiresAt, true
}

func (s *Service) toSharedCache(ctx context.Context, snap *domain.EconomicSnapshot, expiresAt time.Time) {
	if s.cache == nil {
		return
	}
	entry := sharedSnapshot{Snapshot: snap, ExpiresAt: expiresAt}
	if err := cache.SetJSON(ctx, s.cache, cacheTenant, cacheKey, entry, expiresAt.Sub(s.now())); err != nil {
		slog.Warn("failed to cache economic snapshot", "error", err)
	}
}

func clone(s *domain.EconomicSnapshot) *domain.EconomicSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.SectorPerformance = make(map[string]float64, len(s.SectorPerformance))
	for k, v := range s.SectorPerformance {
		c.SectorPerformance[k] = v
	}
	return &c
}
