package usage

import (
	"time"

	"github.com/valentindosimont/ccem/internal/pricing"
)

// Windows holds the start of each rolling aggregation period.
type Windows struct {
	Today time.Time
	Week  time.Time // most recent Sunday
	Month time.Time
}

// WindowsAt computes period starts for now in loc.
func WindowsAt(now time.Time, loc *time.Location) Windows {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Windows{
		Today: today,
		Week:  today.AddDate(0, 0, -int(today.Weekday())),
		Month: time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc),
	}
}

// Aggregate rolls entries up into a snapshot relative to now. It is pure:
// the same entries, now and loc always produce the same stats.
func Aggregate(entries []FileStatsEntry, now time.Time, loc *time.Location) UsageStats {
	if loc == nil {
		loc = time.Local
	}
	w := WindowsAt(now, loc)

	stats := UsageStats{
		DailyHistory: make(map[string]TokenUsageWithCost),
		ByModel:      make(map[string]TokenUsageWithCost),
		LastUpdated:  formatISO(now),
	}

	for _, e := range entries {
		stats.Total.Add(e.Usage)

		if len(e.Timestamp) >= 10 {
			day := e.Timestamp[:10]
			d := stats.DailyHistory[day]
			d.Add(e.Usage)
			stats.DailyHistory[day] = d
		}

		model := pricing.NormalizeModelName(e.Model)
		m := stats.ByModel[model]
		m.Add(e.Usage)
		stats.ByModel[model] = m

		ts, ok := parseTimestamp(e.Timestamp, loc)
		if !ok {
			continue
		}
		if !ts.Before(w.Today) {
			stats.Today.Add(e.Usage)
		}
		if !ts.Before(w.Week) {
			stats.Week.Add(e.Usage)
		}
		if !ts.Before(w.Month) {
			stats.Month.Add(e.Usage)
		}
	}

	return stats
}

// parseTimestamp accepts RFC 3339 timestamps and falls back to zone-less
// forms interpreted in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
