package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/grading"
)

var fixedNow = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func history(pattern string) []domain.PaymentRecord {
	out := make([]domain.PaymentRecord, 0, len(pattern))
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range pattern {
		cat := domain.CategoryNotReported
		switch c {
		case 'O':
			cat = domain.CategoryOnTime
		case 'D':
			cat = domain.CategoryDelayed
		case 'M':
			cat = domain.CategoryMissed
		}
		out = append(out, domain.PaymentRecord{Period: start.AddDate(0, i, 0), Status: string(c), Category: cat})
	}
	return out
}

type thresholds map[domain.Bureau]float64

func (t thresholds) Threshold(b domain.Bureau) float64 { return t[b] }

func TestWorthiness_Blend(t *testing.T) {
	a := NewAssessor(thresholds{domain.BureauCIBIL: 60, domain.BureauExperion: 80})
	grade := domain.GradeResult{
		Bureau: domain.BureauCIBIL,
		Score:  68,
		Components: domain.ComponentScores{
			PaymentHistory:    100,
			CreditUtilization: 30,
			CreditAge:         100,
		},
	}

	w := a.Worthiness(grade, nil)
	assert.Equal(t, 76.4, w.Score)
	assert.True(t, w.IsCreditWorthy)
	assert.Equal(t, 100.0, w.DefaultPenalty)

	w = a.Worthiness(grade, []domain.Defaulter{{}})
	assert.Equal(t, 58.9, w.Score)
	assert.False(t, w.IsCreditWorthy)

	grade.Bureau = domain.BureauExperion
	w = a.Worthiness(grade, nil)
	assert.Equal(t, 80.0, w.Threshold)
	assert.False(t, w.IsCreditWorthy)
}

func TestWorthiness_DefaultThreshold(t *testing.T) {
	w := NewAssessor(nil).Worthiness(domain.GradeResult{Score: 100, Components: domain.ComponentScores{
		PaymentHistory: 100, CreditUtilization: 100, CreditAge: 100,
	}}, nil)
	assert.Equal(t, DefaultThreshold, w.Threshold)
	assert.Equal(t, 100.0, w.Score)
}

func TestDefaultProbability_Penalties(t *testing.T) {
	a := NewAssessor(nil)
	report := &domain.CreditReport{Accounts: []domain.Account{
		{Overdue: 100, History: history("OOOOOOOOOOOOOOOOOOOOMMMM")},
		{Overdue: 50},
	}}
	grade := domain.GradeResult{Factors: domain.GradeFactors{UtilizationPercent: 60}}

	p, f := a.DefaultProbability(report, grade, domain.Worthiness{Score: 70}, nil)

	assert.Equal(t, 30.0, f.BaseProbability)
	// Last 12 periods hold 4 missed.
	assert.InDelta(t, 33.33, f.RecentMissedRate, 0.01)
	assert.Equal(t, 20.0, f.RecentMissedPenalty)
	assert.Equal(t, 5.0, f.UtilizationPenalty)
	assert.Equal(t, 2, f.OverdueAccounts)
	assert.Equal(t, 10.0, f.OverduePenalty)
	assert.Equal(t, 65.0, p)
}

func TestDefaultProbability_Clamped(t *testing.T) {
	a := NewAssessor(nil)

	p, _ := a.DefaultProbability(nil, domain.GradeResult{}, domain.Worthiness{Score: 100}, nil)
	assert.Equal(t, domain.MinProbability, p)

	report := &domain.CreditReport{Accounts: []domain.Account{
		{Overdue: 1, History: history("MMMM")}, {Overdue: 1}, {Overdue: 1},
	}}
	p, _ = a.DefaultProbability(report, domain.GradeResult{Factors: domain.GradeFactors{UtilizationPercent: 99}}, domain.Worthiness{Score: 10}, nil)
	assert.Equal(t, domain.MaxProbability, p)
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		p    float64
		want domain.RiskLevel
	}{
		{5, domain.RiskLow},
		{19.99, domain.RiskLow},
		{20, domain.RiskModerate},
		{40, domain.RiskMedium},
		{60, domain.RiskHigh},
		{80, domain.RiskVeryHigh},
		{95, domain.RiskVeryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.RiskLevelFor(tt.p), "p=%v", tt.p)
	}
}

func TestAssess_ProbabilityRisesWithEachDefaulter(t *testing.T) {
	engine := grading.NewEngine(clock)
	a := NewAssessor(nil)

	clean := domain.Account{Type: "Personal Loan", History: history("OOOOOOOOOOOO")}
	bad := domain.Account{Type: "Personal Loan", History: history("OOOOOOOOOMMM")}

	prev := -1.0
	for k := 0; k <= 3; k++ {
		report := &domain.CreditReport{Accounts: []domain.Account{clean}}
		for i := 0; i < k; i++ {
			report.Accounts = append(report.Accounts, bad)
		}
		grade := engine.Grade(report)
		defaulters := engine.IdentifyDefaulters(report)
		require.Len(t, defaulters, k)

		got := a.Assess(report, grade, defaulters)
		assert.GreaterOrEqual(t, got.Probability, domain.MinProbability)
		assert.LessOrEqual(t, got.Probability, domain.MaxProbability)
		assert.Equal(t, domain.RiskLevelFor(got.Probability), got.RiskLevel)
		assert.Greater(t, got.Probability, prev, "defaulters=%d", k)
		prev = got.Probability

		if k == 0 {
			assert.Nil(t, got.DefaultPattern)
		} else {
			require.NotNil(t, got.DefaultPattern)
		}
	}
}
