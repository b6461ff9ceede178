package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/creditlens/internal/analysis"
	"github.com/opensource-finance/creditlens/internal/bus"
	"github.com/opensource-finance/creditlens/internal/compare"
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/repository"
)

type pipeline struct {
	bus  *bus.ChannelBus
	repo *repository.SQLRepository
	opts Options
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return &pipeline{
		bus:  eventBus,
		repo: repo,
		opts: Options{
			Bus:        eventBus,
			Reports:    repo,
			Analyzer:   analysis.New(analysis.Options{Store: repo}, analysis.Config{}),
			Comparator: compare.New(compare.Options{Source: repo, Store: repo}),
		},
	}
}

func sampleReport(subjectID string, bureau domain.Bureau) *domain.CreditReport {
	opened := time.Now().AddDate(-6, 0, 0)
	return &domain.CreditReport{
		SubjectID: subjectID,
		Bureau:    bureau,
		Name:      "Meera Iyer",
		PAN:       "AAAPI1234Q",
		Accounts: []domain.Account{{
			Type:           "Credit Card",
			Lender:         "Axis Bank",
			Revolving:      true,
			CreditLimit:    150000,
			CurrentBalance: 30000,
			DateOpened:     &opened,
		}},
		FetchedAt: time.Now(),
	}
}

func collect[T any](t *testing.T, b domain.EventBus, tenantID, topic string) <-chan T {
	t.Helper()
	out := make(chan T, 10)
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var v T
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return err
		}
		out <- v
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return out
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	var zero T
	return zero
}

func TestWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		p := newPipeline(t)
		w := NewWorker(p.opts)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessReport", func(t *testing.T) {
		p := newPipeline(t)
		w := NewWorker(p.opts)
		if err := w.Start(Config{TenantIDs: []string{"tenant-test"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		analyses := collect[domain.AnalysisCompletedEvent](t, p.bus, "tenant-test", domain.TopicAnalysisCompleted)
		comparisons := collect[domain.ComparisonCompletedEvent](t, p.bus, "tenant-test", domain.TopicComparisonCompleted)

		if err := p.repo.SaveReport(ctx, "tenant-test", sampleReport("subj-1", domain.BureauCIBIL)); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
		err := bus.PublishJSON(ctx, p.bus, "tenant-test", domain.TopicReportIngested, domain.ReportIngestedEvent{
			TenantID:  "tenant-test",
			SubjectID: "subj-1",
			Bureau:    domain.BureauCIBIL,
			TraceID:   "trace-001",
		})
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		got := receive(t, analyses)
		if got.SubjectID != "subj-1" || got.Bureau != domain.BureauCIBIL {
			t.Errorf("unexpected analysis event: %+v", got)
		}
		if got.TraceID != "trace-001" {
			t.Errorf("expected trace ID to propagate, got %q", got.TraceID)
		}
		if got.Cached {
			t.Error("first analysis should not be cached")
		}
		if got.DataHash == "" || got.Grade == "" {
			t.Errorf("expected hash and grade, got %+v", got)
		}

		cmp := receive(t, comparisons)
		if cmp.BureauCount != 1 {
			t.Errorf("expected 1 bureau in comparison, got %d", cmp.BureauCount)
		}
		if len(cmp.MissingBureaus) != 2 {
			t.Errorf("expected 2 missing bureaus, got %v", cmp.MissingBureaus)
		}

		stored, err := p.repo.FindAnalysis(ctx, "tenant-test", "subj-1", domain.BureauCIBIL)
		if err != nil {
			t.Fatalf("analysis not stored: %v", err)
		}
		if stored.DataHash != got.DataHash {
			t.Errorf("stored hash %q does not match event hash %q", stored.DataHash, got.DataHash)
		}
		if _, err := p.repo.GetComparison(ctx, "tenant-test", "subj-1"); err != nil {
			t.Errorf("comparison not stored: %v", err)
		}

		// A second event for the unchanged report is served from the store.
		bus.PublishJSON(ctx, p.bus, "tenant-test", domain.TopicReportIngested, domain.ReportIngestedEvent{
			SubjectID: "subj-1",
			Bureau:    domain.BureauCIBIL,
		})
		again := receive(t, analyses)
		if !again.Cached {
			t.Error("second analysis of an unchanged report should be cached")
		}
		if again.DataHash != got.DataHash {
			t.Error("hash changed for an unchanged report")
		}
	})

	t.Run("AllTenants", func(t *testing.T) {
		p := newPipeline(t)
		w := NewWorker(p.opts)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		analyses := collect[domain.AnalysisCompletedEvent](t, p.bus, bus.AllTenants, domain.TopicAnalysisCompleted)

		for _, tenant := range []string{"tenant-a", "tenant-b"} {
			if err := p.repo.SaveReport(ctx, tenant, sampleReport("subj-x", domain.BureauEquifax)); err != nil {
				t.Fatalf("SaveReport failed: %v", err)
			}
			bus.PublishJSON(ctx, p.bus, tenant, domain.TopicReportIngested, domain.ReportIngestedEvent{
				SubjectID: "subj-x",
				Bureau:    domain.BureauEquifax,
			})
		}

		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			seen[receive(t, analyses).TenantID] = true
		}
		if !seen["tenant-a"] || !seen["tenant-b"] {
			t.Errorf("expected events for both tenants, got %v", seen)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		p := newPipeline(t)
		w := NewWorker(p.opts)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestProcessReportErrors(t *testing.T) {
	p := newPipeline(t)
	w := NewWorker(p.opts)
	ctx := context.Background()

	message := func(tenantID string, v any) *domain.Message {
		payload, _ := json.Marshal(v)
		return &domain.Message{ID: "msg-1", TenantID: tenantID, Topic: domain.TopicReportIngested, Payload: payload}
	}

	t.Run("MalformedPayload", func(t *testing.T) {
		msg := &domain.Message{TenantID: "t1", Payload: []byte("{")}
		if err := w.processReport(ctx, msg); err == nil {
			t.Error("expected error for malformed payload")
		}
	})

	t.Run("TenantMismatch", func(t *testing.T) {
		msg := message("t1", domain.ReportIngestedEvent{TenantID: "t2", SubjectID: "s", Bureau: domain.BureauCIBIL})
		err := w.processReport(ctx, msg)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("MissingReport", func(t *testing.T) {
		msg := message("t1", domain.ReportIngestedEvent{SubjectID: "nobody", Bureau: domain.BureauCIBIL})
		err := w.processReport(ctx, msg)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

type countingComparator struct {
	calls atomic.Int32
}

func (c *countingComparator) Comparison(ctx context.Context, ids domain.Identifiers, refresh bool) (*domain.ComparisonResult, error) {
	c.calls.Add(1)
	if !refresh {
		return nil, errors.New("worker must force a refresh")
	}
	return nil, domain.ErrNoBureauData
}

func TestComparisonFailureDoesNotFailEvent(t *testing.T) {
	p := newPipeline(t)
	cmp := &countingComparator{}
	p.opts.Comparator = cmp
	w := NewWorker(p.opts)
	ctx := context.Background()

	if err := p.repo.SaveReport(ctx, "t1", sampleReport("s1", domain.BureauExperion)); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	payload, _ := json.Marshal(domain.ReportIngestedEvent{SubjectID: "s1", Bureau: domain.BureauExperion})

	if err := w.processReport(ctx, &domain.Message{TenantID: "t1", Payload: payload}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if cmp.calls.Load() != 1 {
		t.Errorf("expected 1 comparison call, got %d", cmp.calls.Load())
	}
}
