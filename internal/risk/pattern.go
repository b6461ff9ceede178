package risk

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// Pattern thresholds.
const (
	consistentRunMin   = 6
	stopRunMin         = 3
	irregularChanges   = 8
	simultaneousMonths = 2
)

// Indicator kinds.
const (
	IndicatorConsistentThenStop = "consistent_then_stop"
	IndicatorIrregular          = "irregular_pattern"
	IndicatorSimultaneous       = "simultaneous_defaults"
)

// ClassifyDefaultPattern inspects each account's history for situational
// (abrupt stop after a steady record, correlated defaults) and willful
// (erratic) signals. The larger count wins; a tie is Unknown.
func ClassifyDefaultPattern(report *domain.CreditReport) domain.PatternAnalysis {
	out := domain.PatternAnalysis{Pattern: domain.PatternUnknown, Indicators: []domain.PatternIndicator{}}
	if report == nil {
		return out
	}

	for i, acct := range report.Accounts {
		reported := reportedOnly(acct.History)

		if onTime, stopped, ok := consistentThenStop(reported); ok {
			out.Indicators = append(out.Indicators, domain.PatternIndicator{
				Kind:         IndicatorConsistentThenStop,
				Pattern:      domain.PatternSituational,
				AccountIndex: []int{i},
				Detail:       fmt.Sprintf("%d on-time periods followed by %d consecutive non-payments", onTime, stopped),
			})
			out.SituationalCount++
		}

		if changes := categoryChanges(reported); changes > irregularChanges {
			out.Indicators = append(out.Indicators, domain.PatternIndicator{
				Kind:         IndicatorIrregular,
				Pattern:      domain.PatternWillful,
				AccountIndex: []int{i},
				Detail:       fmt.Sprintf("%d status changes across the history", changes),
			})
			out.WillfulCount++
		}
	}

	if months, accounts := sharedMissedMonths(report.Accounts); len(months) >= simultaneousMonths {
		out.Indicators = append(out.Indicators, domain.PatternIndicator{
			Kind:         IndicatorSimultaneous,
			Pattern:      domain.PatternSituational,
			AccountIndex: accounts,
			Detail:       fmt.Sprintf("%d accounts missed payments in the same %d months", len(accounts), len(months)),
		})
		out.SimultaneousMonths = months
		out.SituationalCount++
	}

	switch {
	case out.SituationalCount > out.WillfulCount:
		out.Pattern = domain.PatternSituational
	case out.WillfulCount > out.SituationalCount:
		out.Pattern = domain.PatternWillful
	}
	return out
}

func reportedOnly(history []domain.PaymentRecord) []domain.Category {
	out := make([]domain.Category, 0, len(history))
	for _, r := range history {
		if r.Category.Reported() {
			out = append(out, r.Category)
		}
	}
	return out
}

func nonPaid(c domain.Category) bool {
	return c == domain.CategoryDelayed || c == domain.CategoryMissed
}

// consistentThenStop finds a run of on-time periods immediately followed by
// a run of non-payments.
func consistentThenStop(cats []domain.Category) (int, int, bool) {
	onRun := 0
	for i := 0; i < len(cats); i++ {
		if cats[i] == domain.CategoryOnTime {
			onRun++
			continue
		}
		if onRun >= consistentRunMin {
			stop := 0
			for j := i; j < len(cats) && nonPaid(cats[j]); j++ {
				stop++
			}
			if stop >= stopRunMin {
				return onRun, stop, true
			}
		}
		onRun = 0
	}
	return 0, 0, false
}

func categoryChanges(cats []domain.Category) int {
	n := 0
	for i := 1; i < len(cats); i++ {
		if cats[i] != cats[i-1] {
			n++
		}
	}
	return n
}

// sharedMissedMonths finds the pairs of accounts that missed payments in at
// least simultaneousMonths of the same months. It returns the union of the
// months those pairs share and the accounts in them, both sorted.
func sharedMissedMonths(accounts []domain.Account) ([]string, []int) {
	missed := make([]map[string]struct{}, len(accounts))
	for i, acct := range accounts {
		set := make(map[string]struct{})
		for _, r := range acct.History {
			if r.Category != domain.CategoryMissed || r.Period.IsZero() {
				continue
			}
			set[r.Period.Format("2006-01")] = struct{}{}
		}
		missed[i] = set
	}

	monthSet := make(map[string]struct{})
	involved := make(map[int]struct{})
	for i := 0; i < len(missed); i++ {
		for j := i + 1; j < len(missed); j++ {
			var shared []string
			for month := range missed[i] {
				if _, ok := missed[j][month]; ok {
					shared = append(shared, month)
				}
			}
			if len(shared) < simultaneousMonths {
				continue
			}
			involved[i] = struct{}{}
			involved[j] = struct{}{}
			for _, month := range shared {
				monthSet[month] = struct{}{}
			}
		}
	}

	months := make([]string, 0, len(monthSet))
	for month := range monthSet {
		months = append(months, month)
	}
	sort.Strings(months)

	accts := make([]int, 0, len(involved))
	for i := range involved {
		accts = append(accts, i)
	}
	sort.Ints(accts)
	return months, accts
}
