// Package bureau provides the per-bureau adapters that turn raw bureau
// payloads into typed credit reports. Every bureau is graded by the same
// engine; adapters only differ in field layout, status codes and the
// credit-worthiness cutoff.
package bureau

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/normalize"
)

// Adapter is the strategy object for one bureau.
type Adapter interface {
	Bureau() domain.Bureau
	StatusTable() normalize.StatusTable
	WorthinessThreshold() float64
	Parse(subjectID string, payload []byte, now time.Time) (*domain.CreditReport, error)
}

// Registry resolves adapters by bureau.
type Registry struct {
	adapters map[domain.Bureau]Adapter
}

// NewRegistry returns a registry holding the built-in adapters.
// thresholds overrides the default worthiness cutoff per bureau.
func NewRegistry(thresholds map[domain.Bureau]float64) *Registry {
	r := &Registry{adapters: make(map[domain.Bureau]Adapter)}
	for _, l := range []layout{cibilLayout, equifaxLayout, experionLayout} {
		if v, ok := thresholds[l.bureau]; ok && v > 0 {
			l.threshold = v
		}
		r.adapters[l.bureau] = &adapter{l: l}
	}
	return r
}

// Get returns the adapter for b.
func (r *Registry) Get(b domain.Bureau) (Adapter, error) {
	a, ok := r.adapters[b]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBureau, b)
	}
	return a, nil
}

// Threshold returns the worthiness cutoff for b, or 60 for unknown bureaus.
func (r *Registry) Threshold(b domain.Bureau) float64 {
	if a, ok := r.adapters[b]; ok {
		return a.WorthinessThreshold()
	}
	return 60
}

// Parse resolves the adapter for b and parses payload with it.
func (r *Registry) Parse(b domain.Bureau, subjectID string, payload []byte, now time.Time) (*domain.CreditReport, error) {
	a, err := r.Get(b)
	if err != nil {
		return nil, err
	}
	return a.Parse(subjectID, payload, now)
}

// adapter implements Adapter over a declarative field layout.
type adapter struct {
	l layout
}

func (a *adapter) Bureau() domain.Bureau              { return a.l.bureau }
func (a *adapter) StatusTable() normalize.StatusTable { return a.l.table }
func (a *adapter) WorthinessThreshold() float64       { return a.l.threshold }

// Parse decodes payload using the bureau's field layout. Only malformed JSON
// is an error; missing sections yield empty slices.
func (a *adapter) Parse(subjectID string, payload []byte, now time.Time) (*domain.CreditReport, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", domain.ErrInvalidInput, a.l.bureau, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s payload is empty", domain.ErrInvalidInput, a.l.bureau)
	}

	l := a.l
	report := &domain.CreditReport{
		SubjectID:  subjectID,
		Bureau:     l.bureau,
		Name:       str(doc, l.name),
		PAN:        strings.ToUpper(str(doc, l.pan)),
		Mobile:     str(doc, l.mobile),
		Email:      str(doc, l.email),
		Sector:     strings.ToLower(str(doc, l.sector)),
		ReportDate: normalize.ParseDate(str(doc, l.reportDate)),
		FetchedAt:  now.UTC(),
		Accounts:   []domain.Account{},
		Enquiries:  []domain.Enquiry{},
	}
	if report.SubjectID == "" {
		report.SubjectID = str(doc, l.subjectID)
	}
	if score, ok := integer(doc, l.score); ok && score >= 300 && score <= 900 {
		report.BureauScore = &score
	}

	// Legacy history strings count back from the report date when known.
	anchor := now
	if report.ReportDate != nil {
		anchor = *report.ReportDate
	}

	for _, raw := range list(doc, l.accounts) {
		report.Accounts = append(report.Accounts, l.parseAccount(raw, anchor))
	}
	for _, raw := range list(doc, l.enquiries) {
		report.Enquiries = append(report.Enquiries, domain.Enquiry{
			Date:    normalize.ParseDate(str(raw, l.enquiry.date)),
			Member:  str(raw, l.enquiry.member),
			Purpose: str(raw, l.enquiry.purpose),
			Amount:  amount(raw, l.enquiry.amount),
		})
	}
	for _, raw := range list(doc, l.employment) {
		report.Employment = append(report.Employment, domain.Employment{
			Employer:      str(raw, "employer", "employerName"),
			Occupation:    str(raw, "occupation"),
			Sector:        strings.ToLower(str(raw, "sector", "industry")),
			MonthlyIncome: amount(raw, "monthlyIncome", "income"),
			StartDate:     normalize.ParseDate(str(raw, "startDate", "dateOfJoining")),
			EndDate:       normalize.ParseDate(str(raw, "endDate", "dateOfLeaving")),
			ReportedAt:    normalize.ParseDate(str(raw, "reportedDate", "dateReported")),
		})
	}
	if report.Sector == "" {
		for _, e := range report.Employment {
			if e.Current() && e.Sector != "" {
				report.Sector = e.Sector
				break
			}
		}
	}

	return report, nil
}

func (l layout) parseAccount(raw map[string]any, anchor time.Time) domain.Account {
	f := l.account
	acct := domain.Account{
		Type:             str(raw, f.accountType),
		Lender:           str(raw, f.lender),
		DateOpened:       normalize.ParseDate(str(raw, f.opened)),
		DateClosed:       normalize.ParseDate(str(raw, f.closed)),
		DateReported:     normalize.ParseDate(str(raw, f.reported)),
		CreditLimit:      amount(raw, f.limit),
		HighCreditAmount: amount(raw, f.highCredit),
		CurrentBalance:   amount(raw, f.balance),
		Overdue:          amount(raw, f.overdue),
	}
	acct.Revolving = isRevolving(acct.Type)

	hist := normalize.RawHistory{Legacy: str(raw, f.legacyHistory)}
	for _, m := range list(raw, f.monthlyHistory) {
		hist.Monthly = append(hist.Monthly, normalize.RawMonth{
			Date:   str(m, "date", "month", "period"),
			Status: str(m, "status", "code", "dpd"),
		})
	}
	acct.History = normalize.Normalize(hist, l.table, anchor)
	if acct.History == nil {
		acct.History = []domain.PaymentRecord{}
	}
	return acct
}

var revolvingTypes = []string{"CREDIT CARD", "CHARGE CARD", "OVERDRAFT", "LINE OF CREDIT", "REVOLVING"}

func isRevolving(accountType string) bool {
	t := strings.ToUpper(accountType)
	for _, k := range revolvingTypes {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}
