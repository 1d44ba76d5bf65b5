// Package history filters and aggregates closed-shift entries for reporting.
package history

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuelshift/backend/internal/domain"
)

// DateLayout is the layout of HistoryEntry.Date.
const DateLayout = "2006-01-02"

// ParsePeriod normalizes a user supplied period. Unknown or empty values
// select every entry.
func ParsePeriod(raw string) domain.Period {
	switch domain.Period(strings.ToUpper(strings.TrimSpace(raw))) {
	case domain.PeriodWeek:
		return domain.PeriodWeek
	case domain.PeriodMonth:
		return domain.PeriodMonth
	default:
		return domain.PeriodAll
	}
}

// Query applies the period window, then the text filter, and aggregates the
// result. Order of the input log (newest first) is preserved.
func Query(entries []domain.HistoryEntry, q domain.HistoryQuery, now time.Time, loc *time.Location) domain.HistoryReport {
	period := ParsePeriod(string(q.Period))
	filtered := FilterText(FilterPeriod(entries, period, now, loc), q.Search)
	revenue, variance := Aggregate(filtered)

	return domain.HistoryReport{
		Period:       period,
		Search:       q.Search,
		Count:        len(filtered),
		TotalRevenue: revenue,
		NetVariance:  variance,
		Entries:      filtered,
	}
}

// FilterText keeps entries whose attendant name contains search
// (case-insensitive) or whose date string contains it literally. An empty
// search returns entries unchanged.
func FilterText(entries []domain.HistoryEntry, search string) []domain.HistoryEntry {
	if search == "" {
		return entries
	}
	needle := strings.ToLower(search)
	out := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.AttendantName), needle) || strings.Contains(e.Date, search) {
			out = append(out, e)
		}
	}
	return out
}

// FilterPeriod keeps entries dated within the trailing 7 (WEEK) or 30 (MONTH)
// calendar days, today included. Future-dated entries are kept. Entries
// whose date cannot be resolved only appear under ALL.
func FilterPeriod(entries []domain.HistoryEntry, period domain.Period, now time.Time, loc *time.Location) []domain.HistoryEntry {
	days := periodDays(period)
	if days == 0 {
		return entries
	}
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	cutoff := today.AddDate(0, 0, -(days - 1))

	out := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		day, ok := EntryDay(e, loc)
		if !ok {
			continue
		}
		if !day.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// EntryDay resolves the calendar day of an entry from its date string,
// falling back to its timestamp.
func EntryDay(e domain.HistoryEntry, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	if day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(e.Date), loc); err == nil {
		return day, true
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(e.Timestamp))
	if err != nil {
		return time.Time{}, false
	}
	ts = ts.In(loc)
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc), true
}

// Aggregate sums revenue and variance over entries.
func Aggregate(entries []domain.HistoryEntry) (totalRevenue float64, netVariance float64) {
	revenue := decimal.Zero
	variance := decimal.Zero
	for _, e := range entries {
		revenue = revenue.Add(decimal.NewFromFloat(e.TotalRevenue))
		variance = variance.Add(decimal.NewFromFloat(e.Variance))
	}
	return revenue.InexactFloat64(), variance.InexactFloat64()
}

func periodDays(period domain.Period) int {
	switch period {
	case domain.PeriodWeek:
		return 7
	case domain.PeriodMonth:
		return 30
	default:
		return 0
	}
}
