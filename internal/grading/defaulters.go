package grading

import (
	"fmt"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/normalize"
)

// Defaulter thresholds.
const (
	DefaulterMinMissed      = 3
	DefaulterOverduePercent = 25.0
)

// IdentifyDefaulters flags accounts with at least three missed periods or an
// overdue amount above a quarter of the effective limit. Order follows the
// report's account order.
func (e *Engine) IdentifyDefaulters(report *domain.CreditReport) []domain.Defaulter {
	out := []domain.Defaulter{}
	if report == nil {
		return out
	}

	for i, a := range report.Accounts {
		missed := normalize.Summarize(a.History).Missed

		var overduePct float64
		if limit := a.EffectiveLimit(); limit > 0 && a.Overdue > 0 {
			overduePct = round2(a.Overdue / limit * 100)
		}

		var reasons []string
		if missed >= DefaulterMinMissed {
			reasons = append(reasons, fmt.Sprintf("%d missed payments", missed))
		}
		if overduePct > DefaulterOverduePercent {
			reasons = append(reasons, fmt.Sprintf("overdue is %.1f%% of limit", overduePct))
		}
		if len(reasons) == 0 {
			continue
		}

		out = append(out, domain.Defaulter{
			AccountIndex:   i,
			Lender:         a.Lender,
			AccountType:    a.Type,
			MissedCount:    missed,
			Overdue:        a.Overdue,
			OverduePercent: overduePct,
			Reasons:        reasons,
		})
	}
	return out
}
