package lenders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// DefaultProfiles returns the built-in tiered lender list. Tier 1 banks
// take only prime borrowers; later tiers relax the floors.
func DefaultProfiles() []*domain.LenderProfile {
	return []*domain.LenderProfile{
		{ID: "sbi", Name: "State Bank of India", Tier: 1, Category: "bank", Products: []string{"home loan", "personal loan", "credit card"}, MinGrade: domain.GradeA, MaxDefaultProbability: 15, RequiresCreditWorthy: true, Enabled: true},
		{ID: "hdfc-bank", Name: "HDFC Bank", Tier: 1, Category: "bank", Products: []string{"personal loan", "credit card", "auto loan"}, MinGrade: domain.GradeA, MaxDefaultProbability: 20, RequiresCreditWorthy: true, Enabled: true},
		{ID: "icici-bank", Name: "ICICI Bank", Tier: 1, Category: "bank", Products: []string{"personal loan", "credit card"}, MinGrade: domain.GradeBPlus, MaxDefaultProbability: 20, RequiresCreditWorthy: true, Enabled: true},
		{ID: "axis-bank", Name: "Axis Bank", Tier: 2, Category: "bank", Products: []string{"personal loan", "credit card"}, MinGrade: domain.GradeB, MaxDefaultProbability: 30, RequiresCreditWorthy: true, Enabled: true},
		{ID: "kotak-bank", Name: "Kotak Mahindra Bank", Tier: 2, Category: "bank", Products: []string{"personal loan", "business loan"}, MinGrade: domain.GradeB, MaxDefaultProbability: 35, RequiresCreditWorthy: true, Enabled: true},
		{ID: "bajaj-finserv", Name: "Bajaj Finserv", Tier: 3, Category: "nbfc", Products: []string{"personal loan", "consumer durable loan"}, MinGrade: domain.GradeCPlus, MaxDefaultProbability: 50, Enabled: true},
		{ID: "tata-capital", Name: "Tata Capital", Tier: 3, Category: "nbfc", Products: []string{"personal loan", "two-wheeler loan"}, MinGrade: domain.GradeCPlus, MaxDefaultProbability: 55, Enabled: true},
		{ID: "moneyview", Name: "MoneyView", Tier: 4, Category: "fintech", Products: []string{"small personal loan"}, MinGrade: domain.GradeC, MaxDefaultProbability: 70, Enabled: true},
		{ID: "kreditbee", Name: "KreditBee", Tier: 4, Category: "fintech", Products: []string{"short-term loan"}, MinGrade: domain.GradeDPlus, MaxDefaultProbability: 80, Enabled: true},
		{ID: "secured-card", Name: "Secured Credit Card (FD-backed)", Tier: 5, Category: "secured", Products: []string{"secured credit card", "gold loan"}, Enabled: true},
	}
}

type profileFile struct {
	Lenders []*domain.LenderProfile `yaml:"lenders"`
}

// LoadFile reads lender profiles from a YAML file of the form
//
//	lenders:
//	  - id: local-coop
//	    name: Local Co-operative Bank
//	    tier: 3
//	    minGrade: C+
//	    enabled: true
func LoadFile(path string) ([]*domain.LenderProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lender file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes lender profiles from YAML.
func ParseYAML(data []byte) ([]*domain.LenderProfile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lender file: %w", err)
	}
	for i, p := range f.Lenders {
		if p == nil || p.ID == "" {
			return nil, fmt.Errorf("lender %d: id is required", i)
		}
	}
	return f.Lenders, nil
}
