package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bureau sentinels meaning "no value".
var dateSentinels = map[string]bool{
	"":         true,
	"NA":       true,
	"N/A":      true,
	"11111111": true,
	"00000000": true,
	"NULL":     true,
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"20060102",
	"02012006",
	"2006-01",
	time.RFC3339,
}

// ParseDate parses a bureau date field. Sentinels and malformed values
// return nil so they drop out of date arithmetic.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if dateSentinels[strings.ToUpper(s)] {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2200 {
			return nil
		}
		t = t.UTC()
		return &t
	}
	return nil
}

var amountReplacer = strings.NewReplacer(
	",", "",
	" ", "",
	"₹", "",
	"$", "",
	"INR", "",
	"RS.", "",
	"RS", "",
)

// Amount parses a money string such as "1,25,000.50" or "Rs. 4000".
// Unparseable and negative values yield 0.
func Amount(s string) float64 {
	cleaned := amountReplacer.Replace(strings.ToUpper(strings.TrimSpace(s)))
	if cleaned == "" {
		return 0
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.Round(2).InexactFloat64()
}
