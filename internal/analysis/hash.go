package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// hashInput is the part of a report an analysis depends on. Identity and
// fetch timestamps are left out so a re-pull of unchanged data hits.
type hashInput struct {
	Bureau     domain.Bureau       `json:"bureau"`
	Accounts   []domain.Account    `json:"accounts"`
	Enquiries  []domain.Enquiry    `json:"enquiries"`
	Employment []domain.Employment `json:"employment"`
	Sector     string              `json:"sector"`
}

// DataHash returns the hex SHA-256 of the canonical JSON of the report's
// bureau, accounts, enquiries and employment.
func DataHash(report *domain.CreditReport) (string, error) {
	if report == nil {
		return "", domain.ErrNoReportData
	}
	in := hashInput{
		Bureau:     report.Bureau,
		Accounts:   report.Accounts,
		Enquiries:  report.Enquiries,
		Employment: report.Employment,
		Sector:     report.Sector,
	}
	if in.Accounts == nil {
		in.Accounts = []domain.Account{}
	}
	if in.Enquiries == nil {
		in.Enquiries = []domain.Enquiry{}
	}
	if in.Employment == nil {
		in.Employment = []domain.Employment{}
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("hash report: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
