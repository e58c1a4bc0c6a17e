// Package report renders usage snapshots for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/valentindosimont/ccem/internal/store"
	"github.com/valentindosimont/ccem/internal/usage"
)

const maxModelWidth = 36

// Summary is the one-line today/week/total view.
func Summary(stats usage.UsageStats) string {
	part := func(label string, u usage.TokenUsageWithCost) string {
		return label + " " +
			statStyle.Render(usage.FormatTokens(usage.TotalTokens(u.TokenUsage))) +
			mutedStyle.Render(" ("+usage.FormatCost(u.Cost)+")")
	}
	sep := mutedStyle.Render(" | ")
	return mutedStyle.Render("Usage  ") +
		part("Today:", stats.Today) + sep +
		part("Week:", stats.Week) + sep +
		part("Total:", stats.Total)
}

// Loading is shown while no snapshot is available.
func Loading(frame string) string {
	return mutedStyle.Render("Usage  ") + frame + mutedStyle.Render(" Loading...")
}

func newTable(w io.Writer, headers []string, leftCols int) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
		})))
	table.Header(headers)

	alignments := make([]tw.Align, len(headers))
	for i := range alignments {
		if i < leftCols {
			alignments[i] = tw.AlignLeft
		} else {
			alignments[i] = tw.AlignRight
		}
	}
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.PerColumn = alignments
	})
	return table
}

func usageRow(label string, u usage.TokenUsageWithCost) []string {
	return []string{
		label,
		usage.FormatTokens(u.InputTokens),
		usage.FormatTokens(u.OutputTokens),
		usage.FormatTokens(u.CacheReadTokens),
		usage.FormatTokens(u.CacheCreationTokens),
		usage.FormatCost(u.Cost),
	}
}

// Detail writes the full statistics page: heatmap, period table and
// per-model breakdown.
func Detail(w io.Writer, stats usage.UsageStats, now time.Time) error {
	rule := mutedStyle.Render(strings.Repeat("─", ruleWidth))

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  Token Usage Statistics"))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, Heatmap(stats.DailyHistory, now, 6))
	fmt.Fprintln(w)

	periods := newTable(w, []string{"Period", "Input", "Output", "Cache Read", "Cache Write", "Cost"}, 1)
	for _, p := range []struct {
		label string
		u     usage.TokenUsageWithCost
	}{
		{"Today", stats.Today},
		{"This Week", stats.Week},
		{"This Month", stats.Month},
		{"All Time", stats.Total},
	} {
		if err := periods.Append(usageRow(p.label, p.u)); err != nil {
			return fmt.Errorf("period table: %w", err)
		}
	}
	if err := periods.Render(); err != nil {
		return fmt.Errorf("period table: %w", err)
	}

	if shares := usage.TopModels(stats.ByModel); len(shares) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("  By Model"))
		models := newTable(w, []string{"Model", "Tokens", "Cost"}, 1)
		for _, s := range shares {
			row := []string{
				ansi.Truncate(s.Model, maxModelWidth, "…"),
				usage.FormatTokens(usage.TotalTokens(s.Usage.TokenUsage)),
				usage.FormatCost(s.Usage.Cost),
			}
			if err := models.Append(row); err != nil {
				return fmt.Errorf("model table: %w", err)
			}
		}
		if err := models.Render(); err != nil {
			return fmt.Errorf("model table: %w", err)
		}
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, mutedStyle.Render("  Last updated: "+lastUpdated(stats.LastUpdated)))
	return nil
}

func lastUpdated(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// History writes one row per day with a total footer.
func History(w io.Writer, points []usage.DailyPoint) error {
	table := newTable(w, []string{"Date", "Input", "Output", "Cache Read", "Cache Write", "Cost"}, 1)

	var total usage.TokenUsageWithCost
	for _, p := range points {
		total.Add(p.Usage)
		if err := table.Append(usageRow(p.Date, p.Usage)); err != nil {
			return fmt.Errorf("history table: %w", err)
		}
	}
	table.Footer(usageRow(fmt.Sprintf("%d days", len(points)), total))

	if err := table.Render(); err != nil {
		return fmt.Errorf("history table: %w", err)
	}
	return nil
}

// Passes lists archived passes.
func Passes(w io.Writer, recs []store.PassRecord) error {
	table := newTable(w, []string{"Pass", "Finished", "Status"}, 3)
	for _, rec := range recs {
		row := []string{rec.ID, rec.FinishedAt.Local().Format("2006-01-02 15:04:05"), rec.Status}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("passes table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("passes table: %w", err)
	}
	return nil
}
