package report

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	colorPrimary   = lipgloss.Color("#00BFFF")
	colorSecondary = lipgloss.Color("#FFD700")
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

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

const ruleWidth = 60
