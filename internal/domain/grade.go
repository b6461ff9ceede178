package domain

// Grade is a letter grade derived from the overall weighted score.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeCPlus Grade = "C+"
	GradeC     Grade = "C"
	GradeDPlus Grade = "D+"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// gradeOrder lists grades from worst to best.
var gradeOrder = []Grade{GradeF, GradeD, GradeDPlus, GradeC, GradeCPlus, GradeB, GradeBPlus, GradeA, GradeAPlus}

// Rank returns the ordinal position of the grade (F=0 ... A+=8), or -1.
func (g Grade) Rank() int {
	for i, v := range gradeOrder {
		if v == g {
			return i
		}
	}
	return -1
}

// ComponentScores holds the six graded components, each in [0,100].
type ComponentScores struct {
	PaymentHistory    float64 `json:"paymentHistory"`
	CreditUtilization float64 `json:"creditUtilization"`
	CreditAge         float64 `json:"creditAge"`
	DebtBurden        float64 `json:"debtBurden"`
	CreditMix         float64 `json:"creditMix"`
	RecentInquiries   float64 `json:"recentInquiries"`
}

// ComponentWeights are the fixed weights applied to ComponentScores.
type ComponentWeights struct {
	PaymentHistory    float64 `json:"paymentHistory"`
	CreditUtilization float64 `json:"creditUtilization"`
	CreditAge         float64 `json:"creditAge"`
	DebtBurden        float64 `json:"debtBurden"`
	CreditMix         float64 `json:"creditMix"`
	RecentInquiries   float64 `json:"recentInquiries"`
}

// Sum returns the total of all weights.
func (w ComponentWeights) Sum() float64 {
	return w.PaymentHistory + w.CreditUtilization + w.CreditAge +
		w.DebtBurden + w.CreditMix + w.RecentInquiries
}

// Apply returns the weighted sum of the scores.
func (w ComponentWeights) Apply(s ComponentScores) float64 {
	return w.PaymentHistory*s.PaymentHistory +
		w.CreditUtilization*s.CreditUtilization +
		w.CreditAge*s.CreditAge +
		w.DebtBurden*s.DebtBurden +
		w.CreditMix*s.CreditMix +
		w.RecentInquiries*s.RecentInquiries
}

// PaymentSummary counts reporting periods by category.
// OnTime + Delayed + Missed + NotReported == Total.
type PaymentSummary struct {
	OnTime      int `json:"onTime"`
	Delayed     int `json:"delayed"`
	Missed      int `json:"missed"`
	NotReported int `json:"notReported"`
	Total       int `json:"total"`
}

// Reported returns the number of periods with a usable status.
func (s PaymentSummary) Reported() int {
	return s.OnTime + s.Delayed + s.Missed
}

// Add accumulates another summary into s.
func (s *PaymentSummary) Add(o PaymentSummary) {
	s.OnTime += o.OnTime
	s.Delayed += o.Delayed
	s.Missed += o.Missed
	s.NotReported += o.NotReported
	s.Total += o.Total
}

// GradeFactors are the measured inputs behind the component scores.
type GradeFactors struct {
	Payments            PaymentSummary `json:"payments"`
	OnTimePercentage    float64        `json:"onTimePercentage"`
	UtilizationPercent  float64        `json:"utilizationPercent"`
	HasUtilization      bool           `json:"hasUtilization"`
	DebtBurdenPercent   float64        `json:"debtBurdenPercent"`
	CreditAgeMonths     int            `json:"creditAgeMonths"`
	HasValidOpenDate    bool           `json:"hasValidOpenDate"`
	DistinctTypes       int            `json:"distinctTypes"`
	RecentEnquiries     int            `json:"recentEnquiries"`
	TotalBalance        float64        `json:"totalBalance"`
	TotalLimit          float64        `json:"totalLimit"`
	AccountCount        int            `json:"accountCount"`
	OverdueAccountCount int            `json:"overdueAccountCount"`
}

// GradeResult is the output of the grading engine.
type GradeResult struct {
	Bureau     Bureau           `json:"bureau"`
	Grade      Grade            `json:"grade"`
	Score      float64          `json:"score"`
	Components ComponentScores  `json:"components"`
	Weights    ComponentWeights `json:"weights"`
	Factors    GradeFactors     `json:"factors"`
}

// Defaulter is an account flagged by missed-payment count or overdue share.
type Defaulter struct {
	AccountIndex   int      `json:"accountIndex"`
	Lender         string   `json:"lender"`
	AccountType    string   `json:"accountType"`
	MissedCount    int      `json:"missedCount"`
	Overdue        float64  `json:"overdue"`
	OverduePercent float64  `json:"overduePercent"`
	Reasons        []string `json:"reasons"`
}

// Priority orders recommendations.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Rank returns 0 for High, 1 for Medium and 2 for Low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Recommendation is one piece of advice derived from weak components.
type Recommendation struct {
	Priority    Priority `json:"priority"`
	Component   string   `json:"component"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	// ExpectedGain is the projected overall-score gain if acted on.
	ExpectedGain float64 `json:"expectedGain"`
}
