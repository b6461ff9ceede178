package domain

import "time"

// Sentiment is the broad market mood reported by the macro feed.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentNeutral Sentiment = "neutral"
	SentimentBearish Sentiment = "bearish"
)

// EconomicSnapshot is a point-in-time set of macro indicators.
// All rates are percentages.
type EconomicSnapshot struct {
	GDPGrowth    float64 `json:"gdpGrowth"`
	Inflation    float64 `json:"inflation"`
	PolicyRate   float64 `json:"policyRate"`
	Unemployment float64 `json:"unemployment"`

	// SectorPerformance is year-on-year growth keyed by lower-case sector.
	SectorPerformance map[string]float64 `json:"sectorPerformance"`
	MarketSentiment   Sentiment          `json:"marketSentiment"`

	AsOf       time.Time `json:"asOf"`
	Source     string    `json:"source"`
	IsFallback bool      `json:"isFallback"`
}

// Adjustment is a single additive change applied to a probability.
type Adjustment struct {
	Pass   string  `json:"pass"` // macro, income, sentiment
	Factor string  `json:"factor"`
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason"`
	// After is the clamped running probability after this adjustment.
	After float64 `json:"after"`
}

// EconomicAdjustment is the output of the economic overlay.
type EconomicAdjustment struct {
	BaseProbability     float64      `json:"baseProbability"`
	AdjustedProbability float64      `json:"adjustedProbability"`
	RiskLevel           RiskLevel    `json:"riskLevel"`
	Adjustments         []Adjustment `json:"adjustments"`
	SnapshotAsOf        time.Time    `json:"snapshotAsOf"`
	SnapshotSource      string       `json:"snapshotSource"`
	IsFallback          bool         `json:"isFallback"`
}
