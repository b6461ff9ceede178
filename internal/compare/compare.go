// Package compare reconciles a subject's reports from several bureaus into
// one unified score, grade and default probability.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/creditlens/internal/cache"
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/grading"
	"github.com/opensource-finance/creditlens/internal/metrics"
)

// Bureau score range.
const (
	MinBureauScore = 300
	MaxBureauScore = 900
)

// DefaultTTL is how long a generated comparison is served before it is
// regenerated.
const DefaultTTL = 24 * time.Hour

var tracer = otel.Tracer("creditlens/compare")

// ReportSource fetches the current report for one bureau.
// A missing report is reported as domain.ErrNotFound.
type ReportSource interface {
	GetReport(ctx context.Context, tenantID, subjectID string, bureau domain.Bureau) (*domain.CreditReport, error)
}

// ResultStore persists comparisons.
type ResultStore interface {
	SaveComparison(ctx context.Context, tenantID string, result *domain.ComparisonResult) error
	GetComparison(ctx context.Context, tenantID, subjectID string) (*domain.ComparisonResult, error)
}

// Options wires a Comparator. Source is required.
type Options struct {
	Source  ReportSource
	Store   ResultStore
	Cache   domain.Cache
	Metrics *metrics.Collector
	TTL     time.Duration
	Now     func() time.Time
}

// Comparator generates multi-bureau comparisons.
type Comparator struct {
	source  ReportSource
	store   ResultStore
	cache   domain.Cache
	metrics *metrics.Collector
	grader  *grading.Engine
	ttl     time.Duration
	now     func() time.Time
	bureaus []domain.Bureau

	group singleflight.Group
}

// New creates a Comparator.
func New(opts Options) *Comparator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Comparator{
		source:  opts.Source,
		store:   opts.Store,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		grader:  grading.NewEngine(opts.Now),
		ttl:     opts.TTL,
		now:     opts.Now,
		bureaus: domain.AllBureaus,
	}
}

// SubjectKey returns the key a subject is stored under: the subject ID,
// else PAN, else mobile.
func SubjectKey(ids domain.Identifiers) string {
	switch {
	case ids.SubjectID != "":
		return ids.SubjectID
	case ids.PAN != "":
		return ids.PAN
	default:
		return ids.Mobile
	}
}

// Comparison returns a cached comparison when one is fresh, otherwise
// generates, persists and caches a new one. refresh skips both lookups.
func (c *Comparator) Comparison(ctx context.Context, ids domain.Identifiers, refresh bool) (*domain.ComparisonResult, error) {
	subjectID := SubjectKey(ids)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject identifier is required", domain.ErrInvalidInput)
	}

	if !refresh {
		if res, ok := c.lookup(ctx, ids.TenantID, subjectID); ok {
			return res, nil
		}
	}

	key := ids.TenantID + "|" + subjectID
	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := c.GenerateComparison(ctx, ids)
		if err != nil {
			return nil, err
		}
		c.save(ctx, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ComparisonResult), nil
}

func (c *Comparator) lookup(ctx context.Context, tenantID, subjectID string) (*domain.ComparisonResult, bool) {
	if c.cache != nil {
		var res domain.ComparisonResult
		ok, err := cache.GetJSON(ctx, c.cache, tenantID, cache.ComparisonKey(subjectID), &res)
		c.metrics.CacheLookup("comparison", ok)
		if err == nil && ok {
			return &res, true
		}
	}

	if c.store == nil {
		return nil, false
	}
	res, err := c.store.GetComparison(ctx, tenantID, subjectID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("comparison lookup failed", "tenant_id", tenantID, "subject_id", subjectID, "error", err)
		}
		return nil, false
	}
	remaining := c.ttl - c.now().Sub(res.GeneratedAt)
	if remaining <= 0 {
		return nil, false
	}
	c.cacheResult(ctx, res, remaining)
	return res, true
}

func (c *Comparator) save(ctx context.Context, res *domain.ComparisonResult) {
	if c.store != nil {
		if err := c.store.SaveComparison(ctx, res.TenantID, res); err != nil {
			slog.Warn("failed to persist comparison",
				"tenant_id", res.TenantID,
				"subject_id", res.SubjectID,
				"error", err,
			)
		}
	}
	c.cacheResult(ctx, res, c.ttl)
}

func (c *Comparator) cacheResult(ctx context.Context, res *domain.ComparisonResult, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, c.cache, res.TenantID, cache.ComparisonKey(res.SubjectID), res, ttl); err != nil {
		slog.Warn("failed to cache comparison", "tenant_id", res.TenantID, "subject_id", res.SubjectID, "error", err)
	}
}

// GenerateComparison fetches every bureau concurrently, grades each report
// independently and aggregates the scores. Bureaus that are absent or fail
// are skipped; with none available it returns domain.ErrNoBureauData.
func (c *Comparator) GenerateComparison(ctx context.Context, ids domain.Identifiers) (*domain.ComparisonResult, error) {
	subjectID := SubjectKey(ids)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject identifier is required", domain.ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "compare.Generate",
		trace.WithAttributes(
			attribute.String("tenant.id", ids.TenantID),
			attribute.String("subject.id", subjectID),
		),
	)
	defer span.End()

	reports := make([]*domain.CreditReport, len(c.bureaus))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range c.bureaus {
		g.Go(func() error {
			report, err := c.source.GetReport(gctx, ids.TenantID, subjectID, b)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					slog.Warn("bureau report unavailable",
						"tenant_id", ids.TenantID,
						"subject_id", subjectID,
						"bureau", b,
						"error", err,
					)
				}
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	var scores []domain.BureauScore
	var missing []domain.Bureau
	for i, b := range c.bureaus {
		if reports[i] == nil {
			missing = append(missing, b)
			continue
		}
		scores = append(scores, c.score(b, reports[i]))
	}
	if len(scores) == 0 {
		span.RecordError(domain.ErrNoBureauData)
		return nil, domain.ErrNoBureauData
	}

	res := Aggregate(scores)
	res.TenantID = ids.TenantID
	res.SubjectID = subjectID
	res.MissingBureaus = missing
	res.GeneratedAt = c.now().UTC()

	span.SetAttributes(attribute.Int("bureaus", len(scores)))
	c.metrics.ComparisonGenerated(len(scores))
	slog.Debug("comparison generated",
		"tenant_id", ids.TenantID,
		"subject_id", subjectID,
		"bureaus", len(scores),
		"average_score", res.AverageScore,
	)
	return res, nil
}

func (c *Comparator) score(b domain.Bureau, report *domain.CreditReport) domain.BureauScore {
	grade := c.grader.Grade(report)
	bs := domain.BureauScore{
		Bureau:       b,
		Grade:        grade.Grade,
		ReportDate:   report.ReportDate,
		OverallScore: grade.Score,
	}
	if report.BureauScore != nil {
		bs.Score = float64(*report.BureauScore)
		bs.ScoreSource = "bureau"
	} else {
		bs.Score = DerivedScore(grade.Score)
		bs.ScoreSource = "derived"
	}
	bs.DefaultProbability = BandProbability(bs.Score)
	return bs
}

// DerivedScore maps an overall score in [0,100] onto the bureau range.
func DerivedScore(overall float64) float64 {
	return round2(MinBureauScore + 6*overall)
}

// BandProbability maps a bureau score to a default probability.
func BandProbability(score float64) float64 {
	switch {
	case score >= 800:
		return 5
	case score >= 750:
		return 10
	case score >= 700:
		return 20
	case score >= 650:
		return 35
	case score >= 600:
		return 50
	case score >= 550:
		return 65
	default:
		return 80
	}
}

// ConsistencyFor bands a population variance.
func ConsistencyFor(variance float64) domain.Consistency {
	switch {
	case variance < 100:
		return domain.ConsistencyVery
	case variance < 500:
		return domain.ConsistencyGood
	case variance < 1000:
		return domain.ConsistencyModerate
	default:
		return domain.ConsistencyHigh
	}
}

// Aggregate computes the unified view over scores, which must be non-empty
// and in canonical bureau order. Ties for best and worst go to the earlier
// bureau.
func Aggregate(scores []domain.BureauScore) *domain.ComparisonResult {
	n := float64(len(scores))
	var sum, probSum float64
	best, worst := 0, 0
	for i, s := range scores {
		sum += s.Score
		probSum += BandProbability(s.Score)
		if s.Score > scores[best].Score {
			best = i
		}
		if s.Score < scores[worst].Score {
			worst = i
		}
	}
	mean := sum / n

	var sq float64
	for _, s := range scores {
		d := s.Score - mean
		sq += d * d
	}
	variance := sq / n

	return &domain.ComparisonResult{
		Scores:                    scores,
		AverageScore:              round2(mean),
		ScoreVariance:             round2(variance),
		StandardDeviation:         round2(math.Sqrt(variance)),
		UnifiedGrade:              grading.GradeFor((mean - MinBureauScore) / 6),
		Consistency:               ConsistencyFor(variance),
		BestBureau:                scores[best].Bureau,
		WorstBureau:               scores[worst].Bureau,
		UnifiedDefaultProbability: round2(probSum / n),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
