package report

import (
	"math"
	"strings"
	"time"

	"github.com/valentindosimont/ccem/internal/usage"
)

var heatLevels = []string{"·", "░", "▒", "▓", "█"}

var dayLabels = []string{"Mon", "", "Wed", "", "Fri", "", "Sun"}

// heatLevel scales tokens against the busiest visible day into 0..4.
func heatLevel(tokens, peak int64) int {
	if tokens <= 0 || peak <= 0 {
		return 0
	}
	return min(int(math.Ceil(float64(tokens)/float64(peak)*4)), 4)
}

// Heatmap draws a calendar grid of daily token totals covering the last
// months, one column per week starting on Monday. Days are UTC dates, the
// same keys the aggregator writes.
func Heatmap(history map[string]usage.TokenUsageWithCost, now time.Time, months int) string {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := today.AddDate(0, -months, 0)
	// Back up to Monday.
	start = start.AddDate(0, 0, -((int(start.Weekday()) + 6) % 7))

	var days []time.Time
	for d := start; !d.After(today) || d.Weekday() != time.Monday; d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	weeks := len(days) / 7

	var peak int64
	for _, d := range days {
		if u, ok := history[d.Format("2006-01-02")]; ok {
			peak = max(peak, usage.TotalTokens(u.TokenUsage))
		}
	}

	var b strings.Builder

	// Month labels take two week columns each.
	b.WriteString("     ")
	lastMonth := time.Month(0)
	for w := 0; w < weeks; w++ {
		m := days[w*7].Month()
		if m != lastMonth && w < weeks-1 {
			b.WriteString(mutedStyle.Render(days[w*7].Format("Jan") + " "))
			lastMonth = m
			w++
			continue
		}
		b.WriteString("  ")
	}
	b.WriteString("\n")

	for dow := 0; dow < 7; dow++ {
		label := dayLabels[dow]
		b.WriteString(mutedStyle.Render(label + strings.Repeat(" ", 5-len(label))))
		for w := 0; w < weeks; w++ {
			d := days[w*7+dow]
			if d.After(today) {
				b.WriteString("  ")
				continue
			}
			var tokens int64
			if u, ok := history[d.Format("2006-01-02")]; ok {
				tokens = usage.TotalTokens(u.TokenUsage)
			}
			if level := heatLevel(tokens, peak); level == 0 {
				b.WriteString(mutedStyle.Render(heatLevels[0]))
			} else {
				b.WriteString(statStyle.Render(heatLevels[level]))
			}
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n     " + mutedStyle.Render("Less ") + mutedStyle.Render(heatLevels[0]))
	for _, l := range heatLevels[1:] {
		b.WriteString(" " + statStyle.Render(l))
	}
	b.WriteString(mutedStyle.Render("  More"))
	return b.String()
}

