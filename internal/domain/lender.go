package domain

// LenderProfile describes who a lender is willing to serve.
// When Expression is empty the profile is evaluated from its floor fields;
// otherwise the CEL expression is used as-is.
type LenderProfile struct {
	ID       string   `json:"id" yaml:"id"`
	TenantID string   `json:"tenantId,omitempty" yaml:"-"`
	Name     string   `json:"name" yaml:"name"`
	Tier     int      `json:"tier" yaml:"tier"`
	Category string   `json:"category" yaml:"category"` // bank, nbfc, fintech, secured
	Products []string `json:"products,omitempty" yaml:"products"`

	MinGrade              Grade   `json:"minGrade" yaml:"minGrade"`
	MaxDefaultProbability float64 `json:"maxDefaultProbability" yaml:"maxDefaultProbability"`
	RequiresCreditWorthy  bool    `json:"requiresCreditWorthy" yaml:"requiresCreditWorthy"`

	// Expression is an optional CEL predicate over grade_rank, score,
	// default_probability, credit_worthy and bureau.
	Expression string `json:"expression,omitempty" yaml:"expression"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}
