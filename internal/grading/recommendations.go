package grading

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// Component names used in recommendations and improvement plans.
const (
	ComponentPaymentHistory    = "paymentHistory"
	ComponentCreditUtilization = "creditUtilization"
	ComponentCreditAge         = "creditAge"
	ComponentDebtBurden        = "debtBurden"
	ComponentCreditMix         = "creditMix"
	ComponentRecentInquiries   = "recentInquiries"
	ComponentDefaults          = "defaults"
)

type componentView struct {
	name   string
	score  float64
	weight float64
}

func components(r domain.GradeResult) []componentView {
	return []componentView{
		{ComponentPaymentHistory, r.Components.PaymentHistory, r.Weights.PaymentHistory},
		{ComponentCreditUtilization, r.Components.CreditUtilization, r.Weights.CreditUtilization},
		{ComponentCreditAge, r.Components.CreditAge, r.Weights.CreditAge},
		{ComponentDebtBurden, r.Components.DebtBurden, r.Weights.DebtBurden},
		{ComponentCreditMix, r.Components.CreditMix, r.Weights.CreditMix},
		{ComponentRecentInquiries, r.Components.RecentInquiries, r.Weights.RecentInquiries},
	}
}

// GenerateRecommendations returns advice for the weakest components,
// sorted High, Medium, Low. Within a priority, weaker components come first.
func (e *Engine) GenerateRecommendations(result domain.GradeResult, defaulters []domain.Defaulter) []domain.Recommendation {
	recs := []domain.Recommendation{}

	if len(defaulters) > 0 {
		recs = append(recs, domain.Recommendation{
			Priority:     domain.PriorityHigh,
			Component:    ComponentDefaults,
			Title:        "Regularise defaulted accounts",
			Description:  fmt.Sprintf("%d account(s) are flagged for missed payments or high overdue. Clear overdue amounts and negotiate repayment plans with the lenders.", len(defaulters)),
			Impact:       "Removes the default penalty from credit worthiness",
			ExpectedGain: round2((100 - result.Components.PaymentHistory) * result.Weights.PaymentHistory),
		})
	}

	views := components(result)
	sort.SliceStable(views, func(i, j int) bool { return views[i].score < views[j].score })

	for _, v := range views {
		rec, ok := adviceFor(v, result.Factors)
		if !ok {
			continue
		}
		rec.ExpectedGain = round2((100 - v.score) * v.weight)
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() < recs[j].Priority.Rank()
	})
	return recs
}

// adviceFor returns advice for one component. Components scored from the
// neutral default have no underlying data and get no data-based advice.
func adviceFor(v componentView, f domain.GradeFactors) (domain.Recommendation, bool) {
	rec := domain.Recommendation{Component: v.name}

	switch v.name {
	case ComponentPaymentHistory:
		if f.Payments.Reported() == 0 {
			return rec, false
		}
		switch {
		case v.score < 70:
			rec.Priority = domain.PriorityHigh
		case v.score < 90:
			rec.Priority = domain.PriorityMedium
		default:
			return rec, false
		}
		rec.Title = "Pay every EMI and card bill on time"
		rec.Description = fmt.Sprintf("Only %.0f%% of reported periods were on time after penalties. Set up auto-debit for all dues.", f.OnTimePercentage)
		rec.Impact = "Payment history carries 35% of the grade"

	case ComponentCreditUtilization:
		if !f.HasUtilization {
			return rec, false
		}
		switch {
		case v.score < 70:
			rec.Priority = domain.PriorityHigh
		case v.score < 90:
			rec.Priority = domain.PriorityMedium
		default:
			return rec, false
		}
		rec.Title = "Reduce credit card utilization below 30%"
		rec.Description = fmt.Sprintf("Utilization is %.0f%%. Pay down revolving balances or request a limit increase.", f.UtilizationPercent)
		rec.Impact = "Utilization carries 30% of the grade"

	case ComponentCreditAge:
		if !f.HasValidOpenDate || v.score >= 70 {
			return rec, false
		}
		rec.Priority = domain.PriorityLow
		rec.Title = "Keep your oldest accounts open"
		rec.Description = "Credit history is short. Avoid closing old accounts so the average age keeps growing."
		rec.Impact = "Credit age carries 15% of the grade"

	case ComponentDebtBurden:
		if f.TotalLimit <= 0 {
			return rec, false
		}
		switch {
		case v.score < 60:
			rec.Priority = domain.PriorityHigh
		case v.score < 80:
			rec.Priority = domain.PriorityMedium
		default:
			return rec, false
		}
		rec.Title = "Lower total outstanding debt"
		rec.Description = fmt.Sprintf("Outstanding balances are %.0f%% of total sanctioned limits. Prepay high-interest loans first.", f.DebtBurdenPercent)
		rec.Impact = "Debt burden carries 10% of the grade"

	case ComponentCreditMix:
		if v.score >= 60 {
			return rec, false
		}
		rec.Priority = domain.PriorityLow
		rec.Impact = "Credit mix carries 5% of the grade"
		if f.AccountCount == 0 {
			rec.Title = "Start building a credit history"
			rec.Description = "No accounts are on file. A secured card or small loan repaid on time establishes a record lenders can assess."
			break
		}
		rec.Title = "Diversify your credit mix"
		rec.Description = "A mix of secured and unsecured credit improves the profile. Only take new credit you need."

	case ComponentRecentInquiries:
		switch {
		case v.score < 60:
			rec.Priority = domain.PriorityMedium
		case v.score < 80:
			rec.Priority = domain.PriorityLow
		default:
			return rec, false
		}
		rec.Title = "Limit new credit applications"
		rec.Description = fmt.Sprintf("%d enquiries in the last %d months. Space out applications.", f.RecentEnquiries, InquiryWindowMonths)
		rec.Impact = "Recent enquiries carry 5% of the grade"

	default:
		return rec, false
	}
	return rec, true
}
