// Package grading computes the six-component weighted credit grade.
//
// The same weighting and threshold tables apply to every bureau so grades
// are comparable across bureaus; bureau adapters only decide how the raw
// report is mapped into a domain.CreditReport.
package grading

import (
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/normalize"
)

// DefaultWeights are the component weights; they sum to 1.0.
var DefaultWeights = domain.ComponentWeights{
	PaymentHistory:    0.35,
	CreditUtilization: 0.30,
	CreditAge:         0.15,
	DebtBurden:        0.10,
	CreditMix:         0.05,
	RecentInquiries:   0.05,
}

// NeutralScore is used for a component when its inputs are missing.
const NeutralScore = 50.0

// InquiryWindowMonths is the trailing window counted by RecentInquiries.
const InquiryWindowMonths = 6

// Engine grades credit reports. It holds no mutable state.
type Engine struct {
	weights domain.ComponentWeights
	now     func() time.Time
}

// NewEngine creates a grading engine. A nil clock uses time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{weights: DefaultWeights, now: now}
}

// Weights returns the component weights in use.
func (e *Engine) Weights() domain.ComponentWeights {
	return e.weights
}

// Grade computes the component scores, overall score and letter grade.
// A nil report cannot be graded and receives F.
func (e *Engine) Grade(report *domain.CreditReport) domain.GradeResult {
	if report == nil {
		return domain.GradeResult{Grade: domain.GradeF, Weights: e.weights}
	}

	now := e.now().UTC()
	var f domain.GradeFactors
	var c domain.ComponentScores

	c.PaymentHistory = paymentHistoryScore(report.Accounts, &f)
	c.CreditUtilization = utilizationScore(report.Accounts, &f)
	c.CreditAge = creditAgeScore(report.Accounts, now, &f)
	c.DebtBurden = debtBurdenScore(report.Accounts, &f)
	c.CreditMix = creditMixScore(report.Accounts, &f)
	c.RecentInquiries = inquiryScore(report.Enquiries, now, &f)

	f.AccountCount = len(report.Accounts)
	for _, a := range report.Accounts {
		if a.Overdue > 0 {
			f.OverdueAccountCount++
		}
	}

	score := round2(e.weights.Apply(c))
	return domain.GradeResult{
		Bureau:     report.Bureau,
		Grade:      GradeFor(score),
		Score:      score,
		Components: c,
		Weights:    e.weights,
		Factors:    f,
	}
}

// GradeFor maps an overall score in [0,100] to a letter grade.
func GradeFor(score float64) domain.Grade {
	switch {
	case score >= 90:
		return domain.GradeAPlus
	case score >= 80:
		return domain.GradeA
	case score >= 70:
		return domain.GradeBPlus
	case score >= 60:
		return domain.GradeB
	case score >= 50:
		return domain.GradeCPlus
	case score >= 40:
		return domain.GradeC
	case score >= 30:
		return domain.GradeDPlus
	default:
		return domain.GradeD
	}
}

// PaymentSummary counts payment periods across all accounts.
func PaymentSummary(accounts []domain.Account) domain.PaymentSummary {
	var total domain.PaymentSummary
	for _, a := range accounts {
		total.Add(normalize.Summarize(a.History))
	}
	return total
}

func paymentHistoryScore(accounts []domain.Account, f *domain.GradeFactors) float64 {
	s := PaymentSummary(accounts)
	f.Payments = s

	reported := s.Reported()
	if reported == 0 {
		return NeutralScore
	}

	pct := float64(s.OnTime)/float64(reported)*100 - 2*float64(s.Missed) - 0.5*float64(s.Delayed)
	pct = clamp(pct, 0, 100)
	f.OnTimePercentage = round2(pct)

	switch {
	case pct >= 95:
		return 100
	case pct >= 90:
		return 90
	case pct >= 85:
		return 85
	case pct >= 80:
		return 80
	case pct >= 75:
		return 70
	case pct >= 70:
		return 60
	case pct >= 60:
		return 50
	case pct >= 50:
		return 40
	default:
		return 20
	}
}

// UtilizationAccounts returns the accounts used for utilization: revolving
// accounts when any exist, otherwise all accounts.
func UtilizationAccounts(accounts []domain.Account) []domain.Account {
	var revolving []domain.Account
	for _, a := range accounts {
		if a.Revolving {
			revolving = append(revolving, a)
		}
	}
	if len(revolving) > 0 {
		return revolving
	}
	return accounts
}

// Utilization returns the aggregate utilization percentage and whether any
// limit was available to compute it.
func Utilization(accounts []domain.Account) (float64, bool) {
	var balance, limit float64
	for _, a := range UtilizationAccounts(accounts) {
		balance += a.CurrentBalance
		limit += a.EffectiveLimit()
	}
	if limit <= 0 {
		return 0, false
	}
	return balance / limit * 100, true
}

func utilizationScore(accounts []domain.Account, f *domain.GradeFactors) float64 {
	util, ok := Utilization(accounts)
	if !ok {
		return NeutralScore
	}
	f.UtilizationPercent = round2(util)
	f.HasUtilization = true
	return UtilizationTier(util)
}

// UtilizationTier maps a utilization percentage to its component score.
func UtilizationTier(util float64) float64 {
	switch {
	case util <= 10:
		return 100
	case util <= 30:
		return 90
	case util <= 50:
		return 70
	case util <= 75:
		return 50
	default:
		return 30
	}
}

// OldestOpenDate returns the earliest valid open date not after now.
func OldestOpenDate(accounts []domain.Account, now time.Time) *time.Time {
	var oldest *time.Time
	for _, a := range accounts {
		if a.DateOpened == nil || a.DateOpened.After(now) {
			continue
		}
		if oldest == nil || a.DateOpened.Before(*oldest) {
			d := *a.DateOpened
			oldest = &d
		}
	}
	return oldest
}

// MonthsBetween returns whole months elapsed from start to end.
func MonthsBetween(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func creditAgeScore(accounts []domain.Account, now time.Time, f *domain.GradeFactors) float64 {
	oldest := OldestOpenDate(accounts, now)
	if oldest == nil {
		return NeutralScore
	}
	months := MonthsBetween(*oldest, now)
	f.CreditAgeMonths = months
	f.HasValidOpenDate = true
	return CreditAgeTier(months)
}

// CreditAgeTier maps a credit age in months to its component score.
func CreditAgeTier(months int) float64 {
	switch {
	case months >= 84:
		return 100
	case months >= 60:
		return 90
	case months >= 36:
		return 80
	case months >= 24:
		return 70
	case months >= 12:
		return 60
	default:
		return 50
	}
}

func debtBurdenScore(accounts []domain.Account, f *domain.GradeFactors) float64 {
	var balance, limit float64
	for _, a := range accounts {
		balance += a.CurrentBalance
		limit += a.EffectiveLimit()
	}
	f.TotalBalance = round2(balance)
	f.TotalLimit = round2(limit)
	if limit <= 0 {
		return NeutralScore
	}

	ratio := balance / limit * 100
	f.DebtBurdenPercent = round2(ratio)
	switch {
	case ratio <= 20:
		return 100
	case ratio <= 35:
		return 80
	case ratio <= 50:
		return 60
	case ratio <= 65:
		return 40
	default:
		return 20
	}
}

func creditMixScore(accounts []domain.Account, f *domain.GradeFactors) float64 {
	types := make(map[string]struct{})
	for _, a := range accounts {
		if t := strings.ToUpper(strings.TrimSpace(a.Type)); t != "" {
			types[t] = struct{}{}
		}
	}
	f.DistinctTypes = len(types)

	switch {
	case len(types) >= 4:
		return 100
	case len(types) == 3:
		return 80
	case len(types) == 2:
		return 60
	default:
		return 40
	}
}

// RecentEnquiries counts dated enquiries in the trailing months window.
func RecentEnquiries(enquiries []domain.Enquiry, now time.Time, months int) int {
	since := now.AddDate(0, -months, 0)
	n := 0
	for _, q := range enquiries {
		if q.Date == nil || q.Date.Before(since) || q.Date.After(now) {
			continue
		}
		n++
	}
	return n
}

func inquiryScore(enquiries []domain.Enquiry, now time.Time, f *domain.GradeFactors) float64 {
	n := RecentEnquiries(enquiries, now, InquiryWindowMonths)
	f.RecentEnquiries = n

	switch {
	case n == 0:
		return 100
	case n <= 2:
		return 80
	case n <= 4:
		return 60
	default:
		return 40
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
