package domain

import (
	"fmt"
	"strings"
	"time"
)

// Bureau identifies a credit-reporting agency.
type Bureau string

const (
	BureauCIBIL    Bureau = "CIBIL"
	BureauEquifax  Bureau = "EQUIFAX"
	BureauExperion Bureau = "EXPERION"
)

// AllBureaus lists the supported bureaus in canonical order.
// Comparisons break ties using this order.
var AllBureaus = []Bureau{BureauCIBIL, BureauEquifax, BureauExperion}

// ParseBureau resolves a bureau name case-insensitively.
// "EXPERIAN" is accepted as an alias for EXPERION.
func ParseBureau(s string) (Bureau, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CIBIL", "TRANSUNION", "TRANSUNION_CIBIL":
		return BureauCIBIL, nil
	case "EQUIFAX":
		return BureauEquifax, nil
	case "EXPERION", "EXPERIAN":
		return BureauExperion, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBureau, s)
	}
}

// Valid reports whether b is one of AllBureaus.
func (b Bureau) Valid() bool {
	for _, v := range AllBureaus {
		if v == b {
			return true
		}
	}
	return false
}

// Category is the canonical classification of a single reporting period.
type Category string

const (
	CategoryOnTime      Category = "On-Time"
	CategoryDelayed     Category = "Delayed"
	CategoryMissed      Category = "Missed"
	CategoryNotReported Category = "Not-Reported"
)

// Reported reports whether the period carries a usable payment status.
func (c Category) Reported() bool {
	return c == CategoryOnTime || c == CategoryDelayed || c == CategoryMissed
}

// PaymentRecord is one reporting period of an account's payment history.
type PaymentRecord struct {
	Period   time.Time `json:"period"`
	Status   string    `json:"status"`
	Category Category  `json:"category"`
}

// CreditReport is a typed, normalized bureau report for one subject.
// It is produced once at ingestion by a bureau adapter; downstream
// components may assume every field is populated (zero values are neutral).
type CreditReport struct {
	SubjectID string `json:"subjectId"`
	Bureau    Bureau `json:"bureau"`

	// Identity
	Name   string `json:"name"`
	PAN    string `json:"pan,omitempty"`
	Mobile string `json:"mobile,omitempty"`
	Email  string `json:"email,omitempty"`

	// BureauScore is the bureau's own score (300-900), when supplied.
	BureauScore *int `json:"bureauScore,omitempty"`

	Accounts   []Account    `json:"accounts"`
	Enquiries  []Enquiry    `json:"enquiries"`
	Employment []Employment `json:"employment,omitempty"`

	// Occupation sector declared by the subject, used for sector adjustments.
	Sector string `json:"sector,omitempty"`

	ReportDate *time.Time `json:"reportDate,omitempty"`
	FetchedAt  time.Time  `json:"fetchedAt"`
}

// HasIdentity reports whether the report carries any identifying data.
func (r *CreditReport) HasIdentity() bool {
	if r == nil {
		return false
	}
	return r.SubjectID != "" || r.PAN != "" || r.Mobile != "" || r.Email != ""
}

// Account is a single tradeline.
type Account struct {
	Type   string `json:"type"`
	Lender string `json:"lender"`

	DateOpened   *time.Time `json:"dateOpened,omitempty"`
	DateClosed   *time.Time `json:"dateClosed,omitempty"`
	DateReported *time.Time `json:"dateReported,omitempty"`

	CreditLimit      float64 `json:"creditLimit"`
	HighCreditAmount float64 `json:"highCreditAmount"`
	CurrentBalance   float64 `json:"currentBalance"`
	Overdue          float64 `json:"overdue"`

	// Revolving marks card/overdraft style accounts used for utilization.
	Revolving bool `json:"revolving"`

	History []PaymentRecord `json:"history"`
}

// EffectiveLimit returns the credit limit, falling back to the high credit
// (sanctioned) amount for instalment accounts that report no limit.
func (a Account) EffectiveLimit() float64 {
	if a.CreditLimit > 0 {
		return a.CreditLimit
	}
	return a.HighCreditAmount
}

// Utilization returns balance/limit as a percentage, 0 when the limit is 0.
func (a Account) Utilization() float64 {
	limit := a.EffectiveLimit()
	if limit <= 0 {
		return 0
	}
	return a.CurrentBalance / limit * 100
}

// Enquiry is a credit enquiry made by a member institution.
type Enquiry struct {
	Date    *time.Time `json:"date,omitempty"`
	Member  string     `json:"member,omitempty"`
	Purpose string     `json:"purpose,omitempty"`
	Amount  float64    `json:"amount,omitempty"`
}

// Employment is one employment record reported alongside the report.
type Employment struct {
	Employer      string     `json:"employer,omitempty"`
	Occupation    string     `json:"occupation,omitempty"`
	Sector        string     `json:"sector,omitempty"`
	MonthlyIncome float64    `json:"monthlyIncome"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	ReportedAt    *time.Time `json:"reportedAt,omitempty"`
}

// Current reports whether the employment has no end date.
func (e Employment) Current() bool {
	return e.EndDate == nil
}

// SubjectRecord is what the analysis cache is keyed by: the subject and the
// report currently on file for one bureau.
type SubjectRecord struct {
	TenantID  string        `json:"tenantId"`
	SubjectID string        `json:"subjectId"`
	Report    *CreditReport `json:"report"`
}

// Identifiers locate a subject across bureaus.
type Identifiers struct {
	TenantID  string `json:"tenantId"`
	SubjectID string `json:"subjectId"`
	PAN       string `json:"pan,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
}
