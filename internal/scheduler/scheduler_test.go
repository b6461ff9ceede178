package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
)

type stubRefresher struct {
	calls atomic.Int32
	err   error
}

func (s *stubRefresher) Refresh(ctx context.Context) (*domain.EconomicSnapshot, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.EconomicSnapshot{PolicyRate: 6.5, Source: "stub", AsOf: time.Now()}, nil
}

func TestScheduler(t *testing.T) {
	t.Run("RunNow", func(t *testing.T) {
		s := New()
		defer s.Stop()

		r := &stubRefresher{}
		if err := s.Add(EconomicRefreshTask, "0 */6 * * *", time.Second, EconomicRefresh(r)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if err := s.RunNow(EconomicRefreshTask); err != nil {
			t.Fatalf("RunNow failed: %v", err)
		}
		if r.calls.Load() != 1 {
			t.Errorf("expected 1 refresh, got %d", r.calls.Load())
		}

		status := s.Tasks()
		if len(status) != 1 || status[0].RunCount != 1 || status[0].ErrorCount != 0 {
			t.Errorf("unexpected status: %+v", status)
		}
	})

	t.Run("RecordsErrors", func(t *testing.T) {
		s := New()
		defer s.Stop()

		r := &stubRefresher{err: errors.New("feed unavailable")}
		s.Add(EconomicRefreshTask, "@hourly", 0, EconomicRefresh(r))

		if err := s.RunNow(EconomicRefreshTask); err == nil {
			t.Fatal("expected refresh error")
		}
		status := s.Tasks()[0]
		if status.ErrorCount != 1 || status.LastError == "" {
			t.Errorf("expected recorded error, got %+v", status)
		}
	})

	t.Run("InvalidSchedule", func(t *testing.T) {
		s := New()
		defer s.Stop()

		err := s.Add("bad", "not a schedule", 0, func(ctx context.Context) error { return nil })
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("DuplicateTask", func(t *testing.T) {
		s := New()
		defer s.Stop()

		noop := func(ctx context.Context) error { return nil }
		s.Add("job", "@daily", 0, noop)
		if err := s.Add("job", "@daily", 0, noop); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for duplicate, got %v", err)
		}
	})

	t.Run("UnknownTask", func(t *testing.T) {
		s := New()
		defer s.Stop()

		if err := s.RunNow("missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RunsOnSchedule", func(t *testing.T) {
		s := New()
		r := &stubRefresher{}
		if err := s.Add(EconomicRefreshTask, "@every 1s", 0, EconomicRefresh(r)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		s.Start()
		defer s.Stop()

		deadline := time.Now().Add(3 * time.Second)
		for r.calls.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
		if r.calls.Load() == 0 {
			t.Fatal("expected scheduled refresh to run")
		}
		if next := s.Tasks()[0].NextRun; next.IsZero() {
			t.Error("expected next run to be set once started")
		}
	})
}
