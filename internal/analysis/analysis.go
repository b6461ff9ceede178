// Package analysis runs the grading, risk and economic stages as one unit
// and memoizes the result against a content hash of the source report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/economic"
	"github.com/opensource-finance/creditlens/internal/grading"
	"github.com/opensource-finance/creditlens/internal/lenders"
	"github.com/opensource-finance/creditlens/internal/metrics"
	"github.com/opensource-finance/creditlens/internal/risk"
)

// Defaults for Config.
const (
	DefaultVersion = "1.0.0"
	DefaultMaxAge  = 30 * 24 * time.Hour
)

var tracer = otel.Tracer("creditlens/analysis")

// Store persists computed analyses.
type Store interface {
	FindAnalysis(ctx context.Context, tenantID, subjectID string, bureau domain.Bureau) (*domain.CachedAnalysis, error)
	UpsertAnalysis(ctx context.Context, tenantID string, cached *domain.CachedAnalysis) error
}

// SnapshotSource supplies the current economic snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) *domain.EconomicSnapshot
}

// Options wires an Analyzer's collaborators. Every field may be nil.
type Options struct {
	Store      Store
	Economic   SnapshotSource
	Lenders    *lenders.Engine
	Thresholds risk.ThresholdSource
	Metrics    *metrics.Collector
}

// Config controls cache validity.
type Config struct {
	Version string
	MaxAge  time.Duration
	Now     func() time.Time
}

// Analyzer computes and caches analyses. It is safe for concurrent use.
type Analyzer struct {
	grader   *grading.Engine
	assessor *risk.Assessor
	lenders  *lenders.Engine
	store    Store
	economic SnapshotSource
	metrics  *metrics.Collector

	version string
	maxAge  time.Duration
	now     func() time.Time

	group singleflight.Group
}

// New creates an Analyzer.
func New(opts Options, cfg Config) *Analyzer {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Analyzer{
		grader:   grading.NewEngine(cfg.Now),
		assessor: risk.NewAssessor(opts.Thresholds),
		lenders:  opts.Lenders,
		store:    opts.Store,
		economic: opts.Economic,
		metrics:  opts.Metrics,
		version:  cfg.Version,
		maxAge:   cfg.MaxAge,
		now:      cfg.Now,
	}
}

// Version returns the engine version stamped on every analysis.
func (a *Analyzer) Version() string {
	return a.version
}

// ComputeAnalysis grades report and derives risk, the economic overlay,
// recommendations, an improvement plan and eligible lenders. It performs no
// I/O; a nil snapshot means the fallback snapshot.
func (a *Analyzer) ComputeAnalysis(report *domain.CreditReport, snap *domain.EconomicSnapshot) (*domain.Analysis, error) {
	if !report.HasIdentity() {
		return nil, domain.ErrNoReportData
	}

	now := a.now().UTC()
	grade := a.grader.Grade(report)
	defaulters := a.grader.IdentifyDefaulters(report)
	if defaulters == nil {
		defaulters = []domain.Defaulter{}
	}
	recs := a.grader.GenerateRecommendations(grade, defaulters)
	assessment := a.assessor.Assess(report, grade, defaulters)
	adj := economic.Adjust(assessment.Probability, snap, economic.ProfileFromReport(report, now))

	return &domain.Analysis{
		SubjectID:       report.SubjectID,
		Bureau:          report.Bureau,
		Grade:           grade,
		Defaulters:      defaulters,
		Recommendations: recs,
		Risk:            assessment,
		Economic:        adj,
		ImprovementPlan: ImprovementPlan(grade, recs),
		BankSuggestions: a.bankSuggestions(grade, assessment, adj),
		EngineVersion:   a.version,
		ComputedAt:      now,
	}, nil
}

func (a *Analyzer) bankSuggestions(g domain.GradeResult, r domain.RiskAssessment, adj domain.EconomicAdjustment) []domain.Institution {
	if a.lenders == nil {
		return []domain.Institution{}
	}
	return a.lenders.Eligible(lenders.Input{
		Bureau:             g.Bureau,
		Grade:              g.Grade,
		Score:              g.Score,
		DefaultProbability: adj.AdjustedProbability,
		CreditWorthy:       r.Worthiness.IsCreditWorthy,
		RiskLevel:          adj.RiskLevel,
		Utilization:        g.Factors.UtilizationPercent,
	})
}

// GetOrComputeAnalysis returns the stored analysis when it is still valid
// for the subject's report, otherwise computes and stores a fresh one.
// force skips the lookup. Concurrent callers for the same tenant, subject,
// bureau and report content share one computation.
func (a *Analyzer) GetOrComputeAnalysis(ctx context.Context, subject domain.SubjectRecord, force bool) (*domain.AnalysisOutcome, error) {
	report := subject.Report
	if !report.HasIdentity() {
		return nil, domain.ErrNoReportData
	}
	subjectID := subject.SubjectID
	if subjectID == "" {
		subjectID = report.SubjectID
	}

	ctx, span := tracer.Start(ctx, "analysis.GetOrCompute",
		trace.WithAttributes(
			attribute.String("tenant.id", subject.TenantID),
			attribute.String("subject.id", subjectID),
			attribute.String("bureau", string(report.Bureau)),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	hash, err := DataHash(report)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	key := subject.TenantID + "|" + subjectID + "|" + string(report.Bureau) + "|" + hash
	if force {
		key += "|force"
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		if !force {
			if cached, ok := a.lookup(ctx, subject.TenantID, subjectID, report.Bureau, hash); ok {
				return &domain.AnalysisOutcome{Cached: true, DataHash: hash, Analysis: cached.Analysis}, nil
			}
		}

		var snap *domain.EconomicSnapshot
		if a.economic != nil {
			snap = a.economic.Snapshot(ctx)
		}

		start := time.Now()
		result, err := a.ComputeAnalysis(report, snap)
		if err != nil {
			return nil, err
		}
		result.SubjectID = subjectID
		a.metrics.AnalysisComputed(string(report.Bureau), time.Since(start))

		a.persist(ctx, &domain.CachedAnalysis{
			TenantID:        subject.TenantID,
			SubjectID:       subjectID,
			Bureau:          report.Bureau,
			DataHash:        hash,
			AnalysisVersion: a.version,
			AnalyzedAt:      result.ComputedAt,
			Analysis:        result,
		})
		return &domain.AnalysisOutcome{Cached: false, DataHash: hash, Analysis: result}, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := *v.(*domain.AnalysisOutcome)
	span.SetAttributes(attribute.Bool("cached", out.Cached))
	a.metrics.AnalysisServed(string(report.Bureau), out.Cached)
	return &out, nil
}

// lookup returns the stored analysis when hash, version and age all match.
func (a *Analyzer) lookup(ctx context.Context, tenantID, subjectID string, bureau domain.Bureau, hash string) (*domain.CachedAnalysis, bool) {
	if a.store == nil {
		return nil, false
	}
	cached, err := a.store.FindAnalysis(ctx, tenantID, subjectID, bureau)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("analysis lookup failed",
				"tenant_id", tenantID,
				"subject_id", subjectID,
				"bureau", bureau,
				"error", err,
			)
		}
		a.metrics.CacheLookup("analysis", false)
		return nil, false
	}

	ok := a.Valid(cached, hash)
	a.metrics.CacheLookup("analysis", ok)
	return cached, ok
}

// Valid reports whether cached can be served for a report hashing to hash.
func (a *Analyzer) Valid(cached *domain.CachedAnalysis, hash string) bool {
	if cached == nil || cached.Analysis == nil {
		return false
	}
	if cached.DataHash != hash || cached.AnalysisVersion != a.version {
		return false
	}
	return a.now().Sub(cached.AnalyzedAt) <= a.maxAge
}

func (a *Analyzer) persist(ctx context.Context, cached *domain.CachedAnalysis) {
	if a.store == nil {
		return
	}
	if err := a.store.UpsertAnalysis(ctx, cached.TenantID, cached); err != nil {
		slog.Warn("failed to persist analysis",
			"tenant_id", cached.TenantID,
			"subject_id", cached.SubjectID,
			"bureau", cached.Bureau,
			"error", fmt.Errorf("upsert: %w", err),
		)
	}
}
