package domain

import "time"

// Consistency bands the variance of scores across bureaus.
type Consistency string

const (
	ConsistencyVery     Consistency = "Very Consistent"
	ConsistencyGood     Consistency = "Consistent"
	ConsistencyModerate Consistency = "Moderate Variance"
	ConsistencyHigh     Consistency = "High Variance"
)

// BureauScore is one bureau's view of the subject.
type BureauScore struct {
	Bureau             Bureau     `json:"bureau"`
	Score              float64    `json:"score"`
	Grade              Grade      `json:"grade"`
	ReportDate         *time.Time `json:"reportDate,omitempty"`
	OverallScore       float64    `json:"overallScore"`
	DefaultProbability float64    `json:"defaultProbability"`
	ScoreSource        string     `json:"scoreSource"` // bureau, derived
}

// ComparisonResult reconciles several bureau scores into one view.
type ComparisonResult struct {
	TenantID  string `json:"tenantId,omitempty"`
	SubjectID string `json:"subjectId"`

	Scores                    []BureauScore `json:"scores"`
	AverageScore              float64       `json:"averageScore"`
	ScoreVariance             float64       `json:"scoreVariance"`
	StandardDeviation         float64       `json:"standardDeviation"`
	UnifiedGrade              Grade         `json:"unifiedGrade"`
	Consistency               Consistency   `json:"consistency"`
	BestBureau                Bureau        `json:"bestBureau"`
	WorstBureau               Bureau        `json:"worstBureau"`
	UnifiedDefaultProbability float64       `json:"unifiedDefaultProbability"`
	MissingBureaus            []Bureau      `json:"missingBureaus,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`
}
