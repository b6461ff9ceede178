package domain

import (
	"time"
)

// Analysis is the full computed payload for one subject and bureau.
type Analysis struct {
	SubjectID string `json:"subjectId"`
	Bureau    Bureau `json:"bureau"`

	Grade           GradeResult        `json:"grade"`
	Defaulters      []Defaulter        `json:"defaulters"`
	Recommendations []Recommendation   `json:"recommendations"`
	Risk            RiskAssessment     `json:"risk"`
	Economic        EconomicAdjustment `json:"economic"`

	// Downstream artefacts built from the above.
	ImprovementPlan []ImprovementStep `json:"improvementPlan"`
	BankSuggestions []Institution     `json:"bankSuggestions"`

	EngineVersion string    `json:"engineVersion"`
	ComputedAt    time.Time `json:"computedAt"`
}

// ImprovementStep is one milestone of the improvement plan.
type ImprovementStep struct {
	Order          int      `json:"order"`
	Component      string   `json:"component"`
	Action         string   `json:"action"`
	Priority       Priority `json:"priority"`
	TargetMonths   int      `json:"targetMonths"`
	ProjectedScore float64  `json:"projectedScore"`
	ProjectedGrade Grade    `json:"projectedGrade"`
}

// CachedAnalysis is a persisted Analysis plus its validity keys.
type CachedAnalysis struct {
	TenantID        string    `json:"tenantId"`
	SubjectID       string    `json:"subjectId"`
	Bureau          Bureau    `json:"bureau"`
	DataHash        string    `json:"dataHash"`
	AnalysisVersion string    `json:"analysisVersion"`
	AnalyzedAt      time.Time `json:"analyzedAt"`
	Analysis        *Analysis `json:"analysis"`
}

// AnalysisOutcome is returned by GetOrComputeAnalysis.
type AnalysisOutcome struct {
	Cached   bool      `json:"cached"`
	DataHash string    `json:"dataHash"`
	Analysis *Analysis `json:"analysis"`
}
