package economic

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/grading"
)

// Adjustment pass names.
const (
	PassMacro     = "macro"
	PassIncome    = "income"
	PassSentiment = "sentiment"
)

var highRiskSectors = map[string]bool{
	"real estate":  true,
	"construction": true,
	"hospitality":  true,
	"aviation":     true,
	"travel":       true,
	"mining":       true,
	"textiles":     true,
	"gems":         true,
}

var lowRiskSectors = map[string]bool{
	"government":    true,
	"public sector": true,
	"it":            true,
	"healthcare":    true,
	"banking":       true,
	"education":     true,
	"utilities":     true,
}

// Profile is the subject data the income pass reads.
type Profile struct {
	Sector     string
	Employment []domain.Employment
	Enquiries  []domain.Enquiry
	Accounts   []domain.Account
	Now        time.Time
}

// ProfileFromReport builds the adjustment profile for a report.
func ProfileFromReport(r *domain.CreditReport, now time.Time) Profile {
	p := Profile{Now: now.UTC()}
	if r == nil {
		return p
	}
	p.Sector = strings.ToLower(strings.TrimSpace(r.Sector))
	p.Employment = r.Employment
	p.Enquiries = r.Enquiries
	p.Accounts = r.Accounts
	if p.Sector == "" {
		if cur := currentEmployment(r.Employment); cur != nil {
			p.Sector = strings.ToLower(cur.Sector)
		}
	}
	return p
}

type adjuster struct {
	prob float64
	out  []domain.Adjustment
}

func (a *adjuster) apply(pass, factor string, delta float64, reason string) {
	if delta == 0 {
		return
	}
	a.prob = domain.ClampProbability(a.prob + delta)
	a.out = append(a.out, domain.Adjustment{
		Pass:   pass,
		Factor: factor,
		Delta:  delta,
		Reason: reason,
		After:  round2(a.prob),
	})
}

// Adjust applies the macro, income and sentiment passes to base. The running
// probability is clamped to [5,95] after every adjustment. A nil snapshot is
// replaced by the fallback snapshot.
func Adjust(base float64, snap *domain.EconomicSnapshot, p Profile) domain.EconomicAdjustment {
	if snap == nil {
		snap = Fallback(p.Now)
	}
	a := &adjuster{prob: domain.ClampProbability(base)}

	macroPass(a, snap, p)
	incomePass(a, p)
	sentimentPass(a, snap)

	prob := round2(a.prob)
	adjustments := a.out
	if adjustments == nil {
		adjustments = []domain.Adjustment{}
	}
	return domain.EconomicAdjustment{
		BaseProbability:     round2(domain.ClampProbability(base)),
		AdjustedProbability: prob,
		RiskLevel:           domain.RiskLevelFor(prob),
		Adjustments:         adjustments,
		SnapshotAsOf:        snap.AsOf,
		SnapshotSource:      snap.Source,
		IsFallback:          snap.IsFallback,
	}
}

func macroPass(a *adjuster, s *domain.EconomicSnapshot, p Profile) {
	switch {
	case s.GDPGrowth < 4:
		a.apply(PassMacro, "gdp_growth", 8, fmt.Sprintf("GDP growth %.1f%% is weak", s.GDPGrowth))
	case s.GDPGrowth < 6:
		a.apply(PassMacro, "gdp_growth", 3, fmt.Sprintf("GDP growth %.1f%% is moderate", s.GDPGrowth))
	case s.GDPGrowth > 7:
		a.apply(PassMacro, "gdp_growth", -3, fmt.Sprintf("GDP growth %.1f%% is strong", s.GDPGrowth))
	}

	switch {
	case s.Inflation > 6:
		a.apply(PassMacro, "inflation", 5, fmt.Sprintf("inflation %.1f%% squeezes disposable income", s.Inflation))
	case s.Inflation < 4:
		a.apply(PassMacro, "inflation", -3, fmt.Sprintf("inflation %.1f%% is contained", s.Inflation))
	}

	switch {
	case s.PolicyRate > 7:
		a.apply(PassMacro, "policy_rate", 4, fmt.Sprintf("policy rate %.2f%% raises borrowing costs", s.PolicyRate))
	case s.PolicyRate < 5:
		a.apply(PassMacro, "policy_rate", -3, fmt.Sprintf("policy rate %.2f%% eases borrowing costs", s.PolicyRate))
	}

	switch {
	case s.Unemployment > 8:
		a.apply(PassMacro, "unemployment", 6, fmt.Sprintf("unemployment %.1f%% is high", s.Unemployment))
	case s.Unemployment < 5:
		a.apply(PassMacro, "unemployment", -3, fmt.Sprintf("unemployment %.1f%% is low", s.Unemployment))
	}

	if p.Sector == "" {
		return
	}
	perf, ok := s.SectorPerformance[p.Sector]
	if !ok {
		return
	}
	switch {
	case perf < 0:
		a.apply(PassMacro, "sector_performance", 10, fmt.Sprintf("%s sector is contracting (%.1f%%)", p.Sector, perf))
	case perf < 3:
		a.apply(PassMacro, "sector_performance", 5, fmt.Sprintf("%s sector growth is weak (%.1f%%)", p.Sector, perf))
	case perf > 7:
		a.apply(PassMacro, "sector_performance", -5, fmt.Sprintf("%s sector is growing fast (%.1f%%)", p.Sector, perf))
	}
}

func incomePass(a *adjuster, p Profile) {
	if cur := currentEmployment(p.Employment); cur != nil && cur.StartDate != nil {
		tenure := grading.MonthsBetween(*cur.StartDate, p.Now)
		switch {
		case tenure >= 36:
			a.apply(PassIncome, "employment_tenure", -5, fmt.Sprintf("%d months with current employer", tenure))
		case tenure < 12:
			a.apply(PassIncome, "employment_tenure", 5, fmt.Sprintf("only %d months with current employer", tenure))
		}
	}

	if changes := jobChanges(p.Employment, p.Now); changes > 2 {
		a.apply(PassIncome, "job_changes", 5, fmt.Sprintf("%d job changes in the last 3 years", changes))
	}

	if growth, ok := incomeGrowth(p.Employment); ok {
		switch {
		case growth > 20:
			a.apply(PassIncome, "income_growth", -4, fmt.Sprintf("income grew %.0f%%", growth))
		case growth < 0:
			a.apply(PassIncome, "income_growth", 6, fmt.Sprintf("income declined %.0f%%", -growth))
		}
	}

	switch {
	case highRiskSectors[p.Sector]:
		a.apply(PassIncome, "industry_risk", 5, fmt.Sprintf("%s is a high-risk industry", p.Sector))
	case lowRiskSectors[p.Sector]:
		a.apply(PassIncome, "industry_risk", -3, fmt.Sprintf("%s is a stable industry", p.Sector))
	}

	if n := grading.RecentEnquiries(p.Enquiries, p.Now, 6); n > 4 {
		a.apply(PassIncome, "credit_seeking", 4, fmt.Sprintf("%d enquiries in the last 6 months", n))
	}

	if share, ok := newLimitShare(p.Accounts, p.Now); ok && share >= 50 {
		a.apply(PassIncome, "new_credit", 3, fmt.Sprintf("%.0f%% of total limits opened in the last 12 months", share))
	}
}

func sentimentPass(a *adjuster, s *domain.EconomicSnapshot) {
	switch s.MarketSentiment {
	case domain.SentimentBullish:
		a.apply(PassSentiment, "market_sentiment", -3, "market sentiment is bullish")
	case domain.SentimentBearish:
		a.apply(PassSentiment, "market_sentiment", 5, "market sentiment is bearish")
	}
}

// currentEmployment returns the open-ended employment that started last.
func currentEmployment(records []domain.Employment) *domain.Employment {
	var cur *domain.Employment
	for i := range records {
		e := &records[i]
		if !e.Current() {
			continue
		}
		if cur == nil || (e.StartDate != nil && (cur.StartDate == nil || e.StartDate.After(*cur.StartDate))) {
			cur = e
		}
	}
	return cur
}

// jobChanges counts employments that started in the trailing 36 months.
func jobChanges(records []domain.Employment, now time.Time) int {
	since := now.AddDate(-3, 0, 0)
	n := 0
	for _, e := range records {
		if e.StartDate != nil && e.StartDate.After(since) && !e.StartDate.After(now) {
			n++
		}
	}
	return n
}

// incomeGrowth compares the two most recent reported incomes.
func incomeGrowth(records []domain.Employment) (float64, bool) {
	type point struct {
		at     time.Time
		income float64
	}
	var pts []point
	for _, e := range records {
		if e.MonthlyIncome <= 0 {
			continue
		}
		at := e.ReportedAt
		if at == nil {
			at = e.StartDate
		}
		if at == nil {
			continue
		}
		pts = append(pts, point{*at, e.MonthlyIncome})
	}
	if len(pts) < 2 {
		return 0, false
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].at.Before(pts[j].at) })
	prev, last := pts[len(pts)-2].income, pts[len(pts)-1].income
	return (last - prev) / prev * 100, true
}

// newLimitShare is the percentage of total effective limit on accounts opened
// in the trailing 12 months.
func newLimitShare(accounts []domain.Account, now time.Time) (float64, bool) {
	since := now.AddDate(-1, 0, 0)
	var total, recent float64
	for _, acct := range accounts {
		limit := acct.EffectiveLimit()
		total += limit
		if acct.DateOpened != nil && acct.DateOpened.After(since) && !acct.DateOpened.After(now) {
			recent += limit
		}
	}
	if total <= 0 {
		return 0, false
	}
	return recent / total * 100, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
