package analysis

import (
	"math"
	"sort"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/grading"
)

// targetMonths is how long each kind of fix typically takes to show up in a
// bureau report.
var targetMonths = map[string]int{
	grading.ComponentCreditUtilization: 2,
	grading.ComponentDefaults:          3,
	grading.ComponentRecentInquiries:   6,
	grading.ComponentDebtBurden:        6,
	grading.ComponentPaymentHistory:    12,
	grading.ComponentCreditMix:         12,
	grading.ComponentCreditAge:         24,
}

// ImprovementPlan orders recommendations into milestones, quickest first,
// and projects the overall score after each one. Gains on the same
// component are counted once and the projection is capped at 100.
func ImprovementPlan(grade domain.GradeResult, recs []domain.Recommendation) []domain.ImprovementStep {
	ordered := make([]domain.Recommendation, len(recs))
	copy(ordered, recs)
	sort.SliceStable(ordered, func(i, j int) bool {
		mi, mj := monthsFor(ordered[i].Component), monthsFor(ordered[j].Component)
		if mi != mj {
			return mi < mj
		}
		return ordered[i].Priority.Rank() < ordered[j].Priority.Rank()
	})

	steps := make([]domain.ImprovementStep, 0, len(ordered))
	projected := grade.Score
	counted := map[string]bool{}
	for i, rec := range ordered {
		gained := gainKey(rec.Component)
		if !counted[gained] {
			counted[gained] = true
			projected = math.Min(100, projected+rec.ExpectedGain)
		}
		projected = math.Round(projected*100) / 100
		steps = append(steps, domain.ImprovementStep{
			Order:          i + 1,
			Component:      rec.Component,
			Action:         rec.Title,
			Priority:       rec.Priority,
			TargetMonths:   monthsFor(rec.Component),
			ProjectedScore: projected,
			ProjectedGrade: grading.GradeFor(projected),
		})
	}
	return steps
}

func monthsFor(component string) int {
	if m, ok := targetMonths[component]; ok {
		return m
	}
	return 12
}

// gainKey folds the defaults advice into payment history, since both
// project the same payment-history gain.
func gainKey(component string) string {
	if component == grading.ComponentDefaults {
		return grading.ComponentPaymentHistory
	}
	return component
}
