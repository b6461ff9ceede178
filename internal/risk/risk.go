// Package risk derives credit worthiness, default probability and the
// willful/situational default classification from a graded report.
package risk

import (
	"math"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// ThresholdSource supplies the credit-worthy cutoff per bureau.
type ThresholdSource interface {
	Threshold(b domain.Bureau) float64
}

// DefaultThreshold is used when no ThresholdSource is configured.
const DefaultThreshold = 60.0

// RecentPeriods is the trailing number of periods per account used for the
// recent missed-payment rate.
const RecentPeriods = 12

// Worthiness blend weights.
const (
	weightGrade   = 0.30
	weightDefault = 0.25
	weightUtil    = 0.20
	weightPayment = 0.15
	weightAge     = 0.10
)

// Assessor computes risk assessments. It is safe for concurrent use.
type Assessor struct {
	thresholds ThresholdSource
}

// NewAssessor creates an assessor. thresholds may be nil.
func NewAssessor(thresholds ThresholdSource) *Assessor {
	return &Assessor{thresholds: thresholds}
}

func (a *Assessor) threshold(b domain.Bureau) float64 {
	if a.thresholds == nil {
		return DefaultThreshold
	}
	return a.thresholds.Threshold(b)
}

// Assess runs worthiness, default probability and pattern classification.
func (a *Assessor) Assess(report *domain.CreditReport, grade domain.GradeResult, defaulters []domain.Defaulter) domain.RiskAssessment {
	w := a.Worthiness(grade, defaulters)
	prob, factors := a.DefaultProbability(report, grade, w, defaulters)

	out := domain.RiskAssessment{
		Probability: prob,
		RiskLevel:   domain.RiskLevelFor(prob),
		Factors:     factors,
		Worthiness:  w,
	}
	if pattern := ClassifyDefaultPattern(report); len(pattern.Indicators) > 0 || len(defaulters) > 0 {
		out.DefaultPattern = &pattern
	}
	return out
}

// Worthiness blends the grade score, the default penalty and the utilization,
// payment and age bands into one score.
func (a *Assessor) Worthiness(grade domain.GradeResult, defaulters []domain.Defaulter) domain.Worthiness {
	w := domain.Worthiness{
		Threshold:      a.threshold(grade.Bureau),
		GradeScore:     grade.Score,
		DefaultPenalty: 100,
		UtilBandScore:  grade.Components.CreditUtilization,
		PaymentScore:   grade.Components.PaymentHistory,
		AgeBandScore:   grade.Components.CreditAge,
	}
	if len(defaulters) > 0 {
		w.DefaultPenalty = 30
	}

	w.Score = round2(weightGrade*w.GradeScore +
		weightDefault*w.DefaultPenalty +
		weightUtil*w.UtilBandScore +
		weightPayment*w.PaymentScore +
		weightAge*w.AgeBandScore)
	w.IsCreditWorthy = w.Score >= w.Threshold
	return w
}

// DefaultProbability starts from 100 minus worthiness and adds penalties for
// recent missed payments, high utilization and overdue accounts. The result
// is clamped to [5,95].
func (a *Assessor) DefaultProbability(report *domain.CreditReport, grade domain.GradeResult, w domain.Worthiness, defaulters []domain.Defaulter) (float64, domain.RiskFactors) {
	f := domain.RiskFactors{
		BaseProbability: round2(100 - w.Score),
		DefaulterCount:  len(defaulters),
	}

	var accounts []domain.Account
	if report != nil {
		accounts = report.Accounts
	}

	f.RecentMissedRate = round2(RecentMissedRate(accounts, RecentPeriods))
	switch {
	case f.RecentMissedRate > 20:
		f.RecentMissedPenalty = 20
	case f.RecentMissedRate > 10:
		f.RecentMissedPenalty = 10
	case f.RecentMissedRate > 5:
		f.RecentMissedPenalty = 5
	}

	f.Utilization = grade.Factors.UtilizationPercent
	switch {
	case f.Utilization > 75:
		f.UtilizationPenalty = 10
	case f.Utilization > 50:
		f.UtilizationPenalty = 5
	}

	for _, acct := range accounts {
		if acct.Overdue > 0 {
			f.OverdueAccounts++
		}
	}
	f.OverduePenalty = float64(5 * f.OverdueAccounts)

	p := f.BaseProbability + f.RecentMissedPenalty + f.UtilizationPenalty + f.OverduePenalty
	return round2(domain.ClampProbability(p)), f
}

// RecentMissedRate is the percentage of reported periods that were missed,
// looking at the last n periods of each account.
func RecentMissedRate(accounts []domain.Account, n int) float64 {
	var missed, reported int
	for _, acct := range accounts {
		hist := acct.History
		if len(hist) > n {
			hist = hist[len(hist)-n:]
		}
		for _, r := range hist {
			if !r.Category.Reported() {
				continue
			}
			reported++
			if r.Category == domain.CategoryMissed {
				missed++
			}
		}
	}
	if reported == 0 {
		return 0
	}
	return float64(missed) / float64(reported) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
