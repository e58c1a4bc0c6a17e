package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/valentindosimont/ccem/internal/report"
	"github.com/valentindosimont/ccem/internal/usage"
)

// Colors
var (
	colorPrimary   = lipgloss.Color("#00BFFF")
	colorSecondary = lipgloss.Color("#FFD700")
	colorUrgent    = lipgloss.Color("#FF4444")
	colorSuccess   = lipgloss.Color("#44FF44")
	colorMuted     = lipgloss.Color("#666666")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	statStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	costStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorUrgent)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

const maxModels = 8

// View renders the UI
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ccem usage"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if m.stats == nil {
		b.WriteString(report.Loading(m.spinner.View()))
		b.WriteString("\n")
	} else {
		b.WriteString(report.Summary(*m.stats))
		b.WriteString("\n\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			panelStyle.Render(m.viewPeriods()),
			" ",
			panelStyle.Render(m.viewModels()),
		))
		b.WriteString("\n")
	}

	if m.lastError != nil {
		b.WriteString(errorStyle.Render("Error: " + m.lastError.Error()))
		b.WriteString("\n")
	}

	if m.showActivity {
		b.WriteString("\n")
		b.WriteString(m.viewActivity())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("r refresh • a activity • q quit"))
	return b.String()
}

func (m *Model) statusLine() string {
	switch {
	case m.running && m.stale:
		return m.spinner.View() + mutedStyle.Render(" cached, refreshing...")
	case m.running:
		return m.spinner.View() + mutedStyle.Render(" refreshing...")
	case m.stats != nil:
		return mutedStyle.Render("updated " + m.stats.LastUpdated)
	default:
		return ""
	}
}

func (m *Model) viewPeriods() string {
	rows := []struct {
		label string
		u     usage.TokenUsageWithCost
	}{
		{"Today", m.stats.Today},
		{"This Week", m.stats.Week},
		{"This Month", m.stats.Month},
		{"All Time", m.stats.Total},
	}

	lines := []string{sectionHeaderStyle.Render("Periods")}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%-11s %s %s",
			r.label,
			statStyle.Render(fmt.Sprintf("%7s", usage.FormatTokens(usage.TotalTokens(r.u.TokenUsage)))),
			costStyle.Render(fmt.Sprintf("%9s", usage.FormatCost(r.u.Cost))),
		))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) modelWidth() int {
	if m.width <= 0 {
		return 28
	}
	// Periods panel plus borders and the token/cost columns.
	return max(12, min(40, m.width-60))
}

func (m *Model) viewModels() string {
	lines := []string{sectionHeaderStyle.Render("By Model")}

	shares := usage.TopModels(m.stats.ByModel)
	if len(shares) == 0 {
		lines = append(lines, mutedStyle.Render("No data"))
	}
	width := m.modelWidth()
	for i, s := range shares {
		if i == maxModels {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("+%d more", len(shares)-maxModels)))
			break
		}
		name := ansi.Truncate(s.Model, width, "…")
		name += strings.Repeat(" ", max(0, width-ansi.StringWidth(name)))
		lines = append(lines, fmt.Sprintf("%s %s %s",
			name,
			statStyle.Render(fmt.Sprintf("%7s", usage.FormatTokens(usage.TotalTokens(s.Usage.TokenUsage)))),
			costStyle.Render(fmt.Sprintf("%9s", usage.FormatCost(s.Usage.Cost))),
		))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) viewActivity() string {
	lines := []string{sectionHeaderStyle.Render("Activity")}
	for i, e := range m.activityLog {
		if i == 10 {
			break
		}
		lines = append(lines, mutedStyle.Render(e.Time.Format("15:04:05"))+" "+e.Message)
	}
	return strings.Join(lines, "\n") + "\n"
}
