// Package tui provides the Bubble Tea view for archived run metrics.
//
// The view is opt-in (stats --tui), read-only, and renders the same
// reader.MetricsRecord the table and JSON outputs do.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/downlink/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// SectionStyle for group headings.
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(statBoxWidth).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// statBoxWidth is the inner width of one stat box; borders add two columns.
const statBoxWidth = 20

// OutcomeColor picks the accent for an attempt or stream outcome name.
func OutcomeColor(outcome string) lipgloss.Color {
	switch outcome {
	case string(types.AttemptCompleted):
		return successColor
	case string(types.AttemptClosed), string(types.AttemptCancelled):
		return warningColor
	case string(types.AttemptErrored), string(types.StreamFailed):
		return errorColor
	default:
		return highlightColor
	}
}
