package compare

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/creditlens/internal/cache"
	"github.com/opensource-finance/creditlens/internal/domain"
)

var fixedNow = time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	reports map[domain.Bureau]*domain.CreditReport
	errs    map[domain.Bureau]error
	calls   atomic.Int32
}

func (f *fakeSource) GetReport(ctx context.Context, tenantID, subjectID string, b domain.Bureau) (*domain.CreditReport, error) {
	f.calls.Add(1)
	if err := f.errs[b]; err != nil {
		return nil, err
	}
	r, ok := f.reports[b]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

type memStore struct {
	mu   sync.Mutex
	rows map[string]*domain.ComparisonResult
}

func (s *memStore) SaveComparison(ctx context.Context, tenantID string, r *domain.ComparisonResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = map[string]*domain.ComparisonResult{}
	}
	s.rows[tenantID+"|"+r.SubjectID] = r
	return nil
}

func (s *memStore) GetComparison(ctx context.Context, tenantID, subjectID string) (*domain.ComparisonResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[tenantID+"|"+subjectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func scored(b domain.Bureau, score int) *domain.CreditReport {
	return &domain.CreditReport{SubjectID: "subj-1", Bureau: b, BureauScore: &score}
}

func scenarioD() *fakeSource {
	return &fakeSource{reports: map[domain.Bureau]*domain.CreditReport{
		domain.BureauCIBIL:    scored(domain.BureauCIBIL, 750),
		domain.BureauEquifax:  scored(domain.BureauEquifax, 700),
		domain.BureauExperion: scored(domain.BureauExperion, 650),
	}}
}

var ids = domain.Identifiers{TenantID: "tenant-001", SubjectID: "subj-1"}

func TestGenerateComparisonScenarioD(t *testing.T) {
	c := New(Options{Source: scenarioD(), Now: func() time.Time { return fixedNow }})

	res, err := c.GenerateComparison(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 700.0, res.AverageScore)
	assert.Equal(t, 1666.67, res.ScoreVariance)
	assert.Equal(t, 40.82, res.StandardDeviation)
	assert.Equal(t, domain.ConsistencyHigh, res.Consistency)
	assert.Equal(t, domain.BureauCIBIL, res.BestBureau)
	assert.Equal(t, domain.BureauExperion, res.WorstBureau)
	assert.Equal(t, domain.GradeB, res.UnifiedGrade)
	assert.Equal(t, 21.67, res.UnifiedDefaultProbability)
	assert.Empty(t, res.MissingBureaus)
	assert.Equal(t, fixedNow, res.GeneratedAt)

	require.Len(t, res.Scores, 3)
	for _, s := range res.Scores {
		assert.Equal(t, "bureau", s.ScoreSource)
	}
}

func TestGenerateComparisonPartial(t *testing.T) {
	src := scenarioD()
	delete(src.reports, domain.BureauEquifax)
	src.errs = map[domain.Bureau]error{domain.BureauExperion: errors.New("bureau timeout")}
	c := New(Options{Source: src})

	res, err := c.GenerateComparison(context.Background(), ids)
	require.NoError(t, err)

	require.Len(t, res.Scores, 1)
	assert.Equal(t, 750.0, res.AverageScore)
	assert.Equal(t, 0.0, res.ScoreVariance)
	assert.Equal(t, domain.ConsistencyVery, res.Consistency)
	assert.Equal(t, domain.BureauCIBIL, res.BestBureau)
	assert.Equal(t, domain.BureauCIBIL, res.WorstBureau)
	assert.Equal(t, []domain.Bureau{domain.BureauEquifax, domain.BureauExperion}, res.MissingBureaus)
}

func TestGenerateComparisonNoData(t *testing.T) {
	c := New(Options{Source: &fakeSource{}})

	_, err := c.GenerateComparison(context.Background(), ids)
	assert.ErrorIs(t, err, domain.ErrNoBureauData)

	_, err = c.GenerateComparison(context.Background(), domain.Identifiers{TenantID: "t"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDerivedScore(t *testing.T) {
	src := &fakeSource{reports: map[domain.Bureau]*domain.CreditReport{
		// No accounts or enquiries grades to 52.
		domain.BureauEquifax: {SubjectID: "subj-1", Bureau: domain.BureauEquifax},
	}}
	c := New(Options{Source: src, Now: func() time.Time { return fixedNow }})

	res, err := c.GenerateComparison(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, res.Scores, 1)

	s := res.Scores[0]
	assert.Equal(t, "derived", s.ScoreSource)
	assert.Equal(t, 52.0, s.OverallScore)
	assert.Equal(t, 612.0, s.Score)
	assert.Equal(t, 50.0, s.DefaultProbability)
	assert.Equal(t, domain.GradeCPlus, res.UnifiedGrade)
}

func TestAggregateTies(t *testing.T) {
	res := Aggregate([]domain.BureauScore{
		{Bureau: domain.BureauCIBIL, Score: 700},
		{Bureau: domain.BureauEquifax, Score: 700},
	})
	assert.Equal(t, domain.BureauCIBIL, res.BestBureau)
	assert.Equal(t, domain.BureauCIBIL, res.WorstBureau)
}

func TestBandsAndConsistency(t *testing.T) {
	for score, want := range map[float64]float64{900: 5, 800: 5, 799: 10, 750: 10, 700: 20, 650: 35, 600: 50, 550: 65, 549: 80, 300: 80} {
		assert.Equal(t, want, BandProbability(score), "score %v", score)
	}
	assert.Equal(t, domain.ConsistencyVery, ConsistencyFor(99.99))
	assert.Equal(t, domain.ConsistencyGood, ConsistencyFor(100))
	assert.Equal(t, domain.ConsistencyModerate, ConsistencyFor(500))
	assert.Equal(t, domain.ConsistencyHigh, ConsistencyFor(1000))
}

func TestComparisonCaching(t *testing.T) {
	ctx := context.Background()
	now := fixedNow
	clock := func() time.Time { return now }
	src := scenarioD()
	store := &memStore{}
	c := New(Options{Source: src, Store: store, Cache: cache.NewLRUCacheWithClock(10, clock), TTL: time.Hour, Now: clock})

	first, err := c.Comparison(ctx, ids, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())

	second, err := c.Comparison(ctx, ids, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
	assert.Equal(t, first.AverageScore, second.AverageScore)

	_, err = c.Comparison(ctx, ids, true)
	require.NoError(t, err)
	assert.Equal(t, int32(6), src.calls.Load())

	saved, err := store.GetComparison(ctx, "tenant-001", "subj-1")
	require.NoError(t, err)
	assert.Equal(t, 700.0, saved.AverageScore)

	now = now.Add(2 * time.Hour)
	_, err = c.Comparison(ctx, ids, false)
	require.NoError(t, err)
	assert.Equal(t, int32(9), src.calls.Load())
}

func TestComparisonFromStoreWithinTTL(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	_ = store.SaveComparison(ctx, "tenant-001", &domain.ComparisonResult{
		TenantID:     "tenant-001",
		SubjectID:    "subj-1",
		AverageScore: 812,
		GeneratedAt:  fixedNow.Add(-10 * time.Minute),
	})
	src := scenarioD()
	c := New(Options{Source: src, Store: store, TTL: time.Hour, Now: func() time.Time { return fixedNow }})

	res, err := c.Comparison(ctx, ids, false)
	require.NoError(t, err)
	assert.Equal(t, 812.0, res.AverageScore)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestSubjectKey(t *testing.T) {
	assert.Equal(t, "s", SubjectKey(domain.Identifiers{SubjectID: "s", PAN: "p"}))
	assert.Equal(t, "p", SubjectKey(domain.Identifiers{PAN: "p", Mobile: "m"}))
	assert.Equal(t, "m", SubjectKey(domain.Identifiers{Mobile: "m"}))
}
