package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/downlink/cli/reader"
)

// defaultWidth is assumed until the first WindowSizeMsg arrives.
const defaultWidth = 80

// StatsModel is a Bubble Tea model for one run's metrics record.
type StatsModel struct {
	record   *reader.MetricsRecord
	help     help.Model
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a stats model for record.
func NewStatsModel(record *reader.MetricsRecord) StatsModel {
	return StatsModel{
		record: record,
		help:   help.New(),
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	if m.record == nil {
		return "No metrics record\n" + m.help.View(keys)
	}
	rec := m.record

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run " + rec.RunID))
	b.WriteString("\n")

	for _, row := range [][2]string{
		{"Satellite", rec.SatelliteID},
		{"Plan", rec.PlanID},
		{"Storage", rec.StorageBackend},
		{"Recorded", rec.Ts},
	} {
		if row[1] == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
	}

	m.section(&b, "Streams", []string{
		renderStatBox("Started", rec.StreamsStarted, highlightColor),
		renderStatBox("Completed", rec.StreamsCompleted, successColor),
		renderStatBox("Closed", rec.StreamsClosed, warningColor),
		renderStatBox("Failed", rec.StreamsFailed, errorColor),
		renderStatBox("Cancelled", rec.StreamsCancelled, warningColor),
	})

	attempts := []string{
		renderStatBox("Started", rec.AttemptsStarted, highlightColor),
		renderStatBox("Open failures", rec.OpenFailures, errorColor),
		renderStatBox("Send failures", rec.SetupSendFailures, errorColor),
	}
	for _, outcome := range sortedKeys(rec.AttemptsByOutcome) {
		attempts = append(attempts, renderStatBox(outcome, rec.AttemptsByOutcome[outcome], OutcomeColor(outcome)))
	}
	m.section(&b, "Attempts", attempts)

	m.section(&b, "Traffic", []string{
		renderStatBox("Batches", rec.BatchesReceived, highlightColor),
		renderStatBox("Frames", rec.FramesReceived, highlightColor),
		renderStatBox("Bytes", rec.BytesReceived, highlightColor),
		renderStatBox("Events", rec.EventsReceived, highlightColor),
		renderStatBox("Anomalies", rec.Anomalies, warningColor),
	})

	if len(rec.EventsByKind) > 0 {
		var events []string
		for _, kind := range sortedKeys(rec.EventsByKind) {
			events = append(events, renderStatBox(kind, rec.EventsByKind[kind], highlightColor))
		}
		m.section(&b, "Events", events)
	}

	m.section(&b, "Persistence", []string{
		renderStatBox("Sink writes", rec.SinkWriteSuccess, successColor),
		renderStatBox("Sink failures", rec.SinkWriteFailure, errorColor),
		renderStatBox("Checkpoint fail", rec.CheckpointSaveFailure, errorColor),
	})

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.help.View(keys)))
	return b.String()
}

// section writes a heading and the boxes, wrapped to the window width.
func (m StatsModel) section(b *strings.Builder, title string, boxes []string) {
	b.WriteString("\n")
	b.WriteString(SectionStyle.Render(title))
	b.WriteString("\n")

	perRow := max(m.viewWidth()/(statBoxWidth+2), 1)
	for chunk := range slices.Chunk(boxes, perRow) {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chunk...))
		b.WriteString("\n")
	}
}

func (m StatsModel) viewWidth() int {
	if m.width > 0 {
		return m.width
	}
	return defaultWidth
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// keyMap defines key bindings. It implements help.KeyMap.
type keyMap struct {
	Quit key.Binding
	Help key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Help, k.Quit}}
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
}

// RunStatsTUI runs the stats TUI until the user quits.
func RunStatsTUI(record *reader.MetricsRecord) error {
	p := tea.NewProgram(NewStatsModel(record), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
