// Package ui renders probe progress in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"asynctimer/internal/probe"
)

type probeModel struct {
	title   string
	events  <-chan probe.Event
	spinner spinner.Model
	prog    progress.Model
	rows    []backendRow
	index   map[string]int
	width   int
	done    bool
}

type backendRow struct {
	name   string
	status string
	done   int
	total  int
}

type eventMsg probe.Event
type doneMsg struct{}

// NewProbeModel returns a Bubble Tea model that renders probe progress for
// each backend until events is closed.
func NewProbeModel(title string, backends []string, total int, events <-chan probe.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	rows := make([]backendRow, 0, len(backends))
	index := make(map[string]int, len(backends))
	for i, name := range backends {
		rows = append(rows, backendRow{name: name, status: "queued", total: total})
		index[name] = i
	}
	return &probeModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		rows:    rows,
		index:   index,
		width:   80,
	}
}

func (m *probeModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *probeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(probe.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *probeModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-32, 12)
	for _, row := range m.rows {
		status := styleStatus(row.status).Render(fmt.Sprintf("%10s", row.status))
		fmt.Fprintf(&b, "  %s %-*s %6d/%d\n", status, nameWidth, truncate(row.name, nameWidth), row.done, row.total)
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *probeModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *probeModel) applyEvent(ev probe.Event) tea.Cmd {
	idx, ok := m.index[ev.Backend]
	if !ok {
		return nil
	}
	row := &m.rows[idx]
	row.done = ev.Done
	if ev.Total > 0 {
		row.total = ev.Total
	}
	switch {
	case ev.Err != nil:
		row.status = "error"
	case ev.Finished:
		row.status = "done"
		row.done = row.total
	default:
		row.status = "running"
	}
	return m.prog.SetPercent(m.fraction())
}

func (m *probeModel) fraction() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	total := 0.0
	for _, row := range m.rows {
		switch {
		case row.status == "done" || row.status == "error":
			total++
		case row.total > 0:
			total += float64(row.done) / float64(row.total)
		}
	}
	return total / float64(len(m.rows))
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "running":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
