package domain

// RiskLevel is the ordinal bucket derived from a default probability.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskVeryHigh RiskLevel = "Very High"
)

// Probability bounds shared by risk assessment and economic adjustment.
const (
	MinProbability = 5.0
	MaxProbability = 95.0
)

// ClampProbability bounds p to [MinProbability, MaxProbability].
func ClampProbability(p float64) float64 {
	if p < MinProbability {
		return MinProbability
	}
	if p > MaxProbability {
		return MaxProbability
	}
	return p
}

// RiskLevelFor maps a probability to its risk level.
func RiskLevelFor(p float64) RiskLevel {
	switch {
	case p < 20:
		return RiskLow
	case p < 40:
		return RiskModerate
	case p < 60:
		return RiskMedium
	case p < 80:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// Worthiness is the credit-worthiness blend.
type Worthiness struct {
	Score          float64 `json:"score"`
	IsCreditWorthy bool    `json:"isCreditWorthy"`
	Threshold      float64 `json:"threshold"`

	GradeScore     float64 `json:"gradeScore"`
	DefaultPenalty float64 `json:"defaultPenalty"`
	UtilBandScore  float64 `json:"utilizationBandScore"`
	PaymentScore   float64 `json:"paymentScore"`
	AgeBandScore   float64 `json:"ageBandScore"`
}

// DefaultPattern classifies observed defaults.
type DefaultPattern string

const (
	PatternWillful     DefaultPattern = "Willful"
	PatternSituational DefaultPattern = "Situational"
	PatternUnknown     DefaultPattern = "Unknown"
)

// PatternIndicator is one signal that contributed to the classification.
type PatternIndicator struct {
	Kind         string         `json:"kind"`
	Pattern      DefaultPattern `json:"pattern"`
	AccountIndex []int          `json:"accountIndex"`
	Detail       string         `json:"detail"`
}

// PatternAnalysis is the result of the willful/situational classifier.
type PatternAnalysis struct {
	Pattern            DefaultPattern     `json:"pattern"`
	WillfulCount       int                `json:"willfulCount"`
	SituationalCount   int                `json:"situationalCount"`
	Indicators         []PatternIndicator `json:"indicators"`
	SimultaneousMonths []string           `json:"simultaneousMonths,omitempty"`
}

// RiskFactors are the inputs that produced a default probability.
type RiskFactors struct {
	BaseProbability     float64 `json:"baseProbability"`
	RecentMissedRate    float64 `json:"recentMissedRate"`
	RecentMissedPenalty float64 `json:"recentMissedPenalty"`
	Utilization         float64 `json:"utilization"`
	UtilizationPenalty  float64 `json:"utilizationPenalty"`
	OverdueAccounts     int     `json:"overdueAccounts"`
	OverduePenalty      float64 `json:"overduePenalty"`
	DefaulterCount      int     `json:"defaulterCount"`
}

// RiskAssessment is the output of the risk stage.
type RiskAssessment struct {
	Probability    float64          `json:"probability"`
	RiskLevel      RiskLevel        `json:"riskLevel"`
	Factors        RiskFactors      `json:"factors"`
	Worthiness     Worthiness       `json:"worthiness"`
	DefaultPattern *PatternAnalysis `json:"defaultPattern,omitempty"`
}

// Institution is a lender that may still extend credit to the subject.
type Institution struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Tier     int      `json:"tier"`
	Category string   `json:"category"`
	Products []string `json:"products,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}
