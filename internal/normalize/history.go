// Package normalize turns heterogeneous bureau payment-history encodings
// and raw field values into typed records.
package normalize

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// DefaultChunkWidth is the legacy history chunk width used when a table
// does not specify one.
const DefaultChunkWidth = 3

// StatusTable carries a bureau's status-code overrides and the width of a
// single period in its legacy history string.
type StatusTable struct {
	Codes      map[string]domain.Category
	ChunkWidth int
}

// RawMonth is one entry of a structured monthly history array.
type RawMonth struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

// RawHistory is the payment history as supplied by a bureau. Monthly wins
// over Legacy when both are present.
type RawHistory struct {
	Monthly []RawMonth `json:"monthly,omitempty"`
	Legacy  string     `json:"legacy,omitempty"`
}

// Empty reports whether no history was supplied at all.
func (h RawHistory) Empty() bool {
	return len(h.Monthly) == 0 && strings.TrimSpace(h.Legacy) == ""
}

// Categorize maps a raw status code to its canonical category.
// Table overrides are consulted first; unknown codes are Not-Reported.
func Categorize(status string, table StatusTable) domain.Category {
	code := strings.ToUpper(strings.TrimSpace(status))
	if c, ok := table.Codes[code]; ok {
		return c
	}

	if days, ok := daysPastDue(code); ok {
		switch {
		case days == 0:
			return domain.CategoryOnTime
		case days <= 60:
			return domain.CategoryDelayed
		default:
			return domain.CategoryMissed
		}
	}

	switch {
	case code == "STD":
		return domain.CategoryOnTime
	case strings.HasPrefix(code, "SMA"):
		return domain.CategoryDelayed
	case code == "SUB", code == "DBT", code == "LSS", code == "DEF", code == "WO":
		return domain.CategoryMissed
	default:
		// XXX, NA, blanks and anything unrecognised.
		return domain.CategoryNotReported
	}
}

func daysPastDue(code string) (int, bool) {
	if code == "" {
		return 0, false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		// Too many digits to fit an int; still a past-due count.
		return 999, true
	}
	return n, true
}

// Normalize converts a raw history into records ordered oldest to newest.
// It never fails: malformed input yields fewer or Not-Reported records.
func Normalize(raw RawHistory, table StatusTable, now time.Time) []domain.PaymentRecord {
	if len(raw.Monthly) > 0 {
		return normalizeMonthly(raw.Monthly, table)
	}
	return normalizeLegacy(raw.Legacy, table, now)
}

func normalizeMonthly(months []RawMonth, table StatusTable) []domain.PaymentRecord {
	type dated struct {
		rec domain.PaymentRecord
		ok  bool
	}
	items := make([]dated, 0, len(months))
	for _, m := range months {
		d := dated{rec: domain.PaymentRecord{
			Status:   strings.TrimSpace(m.Status),
			Category: Categorize(m.Status, table),
		}}
		if p := ParseDate(m.Date); p != nil {
			d.rec.Period = monthStart(*p)
			d.ok = true
		}
		items = append(items, d)
	}

	// Dated entries ascend; undated ones keep their order at the end.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok
		}
		if !items[i].ok {
			return false
		}
		return items[i].rec.Period.Before(items[j].rec.Period)
	})

	out := make([]domain.PaymentRecord, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}

func normalizeLegacy(legacy string, table StatusTable, now time.Time) []domain.PaymentRecord {
	chars := []rune(strings.TrimSpace(legacy))
	width := table.ChunkWidth
	if width <= 0 {
		width = DefaultChunkWidth
	}
	n := len(chars) / width
	if n == 0 {
		return nil
	}

	anchor := monthStart(now)
	out := make([]domain.PaymentRecord, n)
	for i := 0; i < n; i++ {
		code := string(chars[i*width : (i+1)*width])
		// Chunk i is the period i months before now; emit oldest first.
		out[n-1-i] = domain.PaymentRecord{
			Period:   anchor.AddDate(0, -i, 0),
			Status:   code,
			Category: Categorize(code, table),
		}
	}
	return out
}

// Summarize counts records by category.
func Summarize(records []domain.PaymentRecord) domain.PaymentSummary {
	var s domain.PaymentSummary
	for _, r := range records {
		switch r.Category {
		case domain.CategoryOnTime:
			s.OnTime++
		case domain.CategoryDelayed:
			s.Delayed++
		case domain.CategoryMissed:
			s.Missed++
		default:
			s.NotReported++
		}
		s.Total++
	}
	return s
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
