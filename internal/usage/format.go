package usage

import (
	"fmt"
	"strconv"
	"time"
)

// isoLayout matches the millisecond ISO-8601 form used in log records and
// in the persisted cache.
const isoLayout = "2006-01-02T15:04:05.000Z"

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// FormatTokens renders n with a K or M suffix above a thousand.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatCost renders a USD amount, with four decimals for sub-cent values.
func FormatCost(c float64) string {
	if c >= 0.01 {
		return fmt.Sprintf("$%.2f", c)
	}
	return fmt.Sprintf("$%.4f", c)
}

// TotalTokens sums all four token categories.
func TotalTokens(u TokenUsage) int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}
