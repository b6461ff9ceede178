// Package worker recomputes analyses and comparisons when reports are ingested.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/creditlens/internal/bus"
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/metrics"
)

// ReportSource loads the stored report an event refers to.
type ReportSource interface {
	GetReport(ctx context.Context, tenantID, subjectID string, bureau domain.Bureau) (*domain.CreditReport, error)
}

// Analyzer is the subset of analysis.Analyzer the worker drives.
type Analyzer interface {
	GetOrComputeAnalysis(ctx context.Context, subject domain.SubjectRecord, force bool) (*domain.AnalysisOutcome, error)
}

// Comparator is the subset of compare.Comparator the worker drives.
type Comparator interface {
	Comparison(ctx context.Context, ids domain.Identifiers, refresh bool) (*domain.ComparisonResult, error)
}

// Options wires a Worker. Comparator and Metrics may be nil.
type Options struct {
	Bus        domain.EventBus
	Reports    ReportSource
	Analyzer   Analyzer
	Comparator Comparator
	Metrics    *metrics.Collector
}

// Worker consumes report-ingested events from the EventBus.
type Worker struct {
	bus        domain.EventBus
	reports    ReportSource
	analyzer   Analyzer
	comparator Comparator
	metrics    *metrics.Collector

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits processing to these tenants; empty means all tenants.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(opts Options) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        opts.Bus,
		reports:    opts.Reports,
		analyzer:   opts.Analyzer,
		comparator: opts.Comparator,
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to report ingestion for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{bus.AllTenants}
	}

	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicReportIngested, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	if w.GetStats().SubscriptionCount == 0 {
		return fmt.Errorf("no worker subscriptions started")
	}

	slog.Info("workers started",
		"tenants", tenants,
		"topic", domain.TopicReportIngested,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	err := w.processReport(ctx, msg)
	w.metrics.EventProcessed(msg.Topic, err)
	return err
}

// processReport refreshes the analysis for the ingested bureau report, then
// the subject's cross-bureau comparison.
func (w *Worker) processReport(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.ReportIngestedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("failed to parse report event: %w", err)
	}

	// The envelope tenant is authoritative.
	tenantID := msg.TenantID
	if event.TenantID != "" && event.TenantID != tenantID {
		return fmt.Errorf("%w: event tenant %q does not match message tenant %q",
			domain.ErrInvalidInput, event.TenantID, tenantID)
	}

	traceID := event.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	log := slog.With(
		"tenant_id", tenantID,
		"subject_id", event.SubjectID,
		"bureau", event.Bureau,
		"trace_id", traceID,
	)
	log.Debug("processing report")

	report, err := w.reports.GetReport(ctx, tenantID, event.SubjectID, event.Bureau)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}

	outcome, err := w.analyzer.GetOrComputeAnalysis(ctx, domain.SubjectRecord{
		TenantID:  tenantID,
		SubjectID: event.SubjectID,
		Report:    report,
	}, false)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	a := outcome.Analysis
	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicAnalysisCompleted, domain.AnalysisCompletedEvent{
		TenantID:           tenantID,
		SubjectID:          event.SubjectID,
		Bureau:             event.Bureau,
		DataHash:           outcome.DataHash,
		Cached:             outcome.Cached,
		Grade:              a.Grade.Grade,
		Score:              a.Grade.Score,
		DefaultProbability: a.Economic.AdjustedProbability,
		RiskLevel:          a.Economic.RiskLevel,
		TraceID:            traceID,
	}); err != nil {
		log.Error("failed to publish analysis", "error", err)
	}

	if w.comparator != nil {
		w.refreshComparison(ctx, log, tenantID, event.SubjectID, traceID)
	}

	log.Info("report processed",
		"grade", a.Grade.Grade,
		"cached", outcome.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// refreshComparison failures are logged; the analysis has already been stored.
func (w *Worker) refreshComparison(ctx context.Context, log *slog.Logger, tenantID, subjectID, traceID string) {
	res, err := w.comparator.Comparison(ctx, domain.Identifiers{TenantID: tenantID, SubjectID: subjectID}, true)
	if err != nil {
		if !errors.Is(err, domain.ErrNoBureauData) {
			log.Error("comparison failed", "error", err)
		}
		return
	}

	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicComparisonCompleted, domain.ComparisonCompletedEvent{
		TenantID:       tenantID,
		SubjectID:      subjectID,
		UnifiedGrade:   res.UnifiedGrade,
		AverageScore:   res.AverageScore,
		BureauCount:    len(res.Scores),
		MissingBureaus: res.MissingBureaus,
		TraceID:        traceID,
	}); err != nil {
		log.Error("failed to publish comparison", "error", err)
	}
}

// Stop unsubscribes and waits for in-flight events.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
