// Package tui is a terminal dashboard for a running gwtrigger: pending
// builds, queue health and the live build event stream.
package tui

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/gwtrigger/internal/events"
	"github.com/mattjoyce/gwtrigger/internal/queue"
	"github.com/mattjoyce/gwtrigger/internal/webhook"
)

const (
	refreshInterval = 2 * time.Second
	maxEventLog     = 50
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// Model is the BubbleTea model for the queue monitor.
type Model struct {
	baseURL string
	path    string
	client  *http.Client
	now     func() time.Time

	width  int
	height int

	health    webhook.HealthResponse
	live      bool
	builds    []*queue.Build
	eventLog  []events.Event
	lastError string

	buildTable table.Model
	hubEvents  chan events.Event
}

// NewMonitor watches the gwtrigger at baseURL (scheme://host:port) whose
// trigger routes live under path.
func NewMonitor(baseURL, path string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 8},
			{Title: "Job", Width: 20},
			{Title: "Hits", Width: 4},
			{Title: "Starts", Width: 10},
			{Title: "Cause", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		path:       path,
		client:     &http.Client{Timeout: 2 * time.Second},
		now:        time.Now,
		live:       true,
		buildTable: t,
		hubEvents:  make(chan events.Event, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.baseURL+m.path+"/events", m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.refresh(),
		refreshEvery(refreshInterval),
	)
}

func (m Model) refresh() tea.Cmd {
	client, healthURL, pendingURL := m.client, m.baseURL+"/healthz", m.baseURL+m.path+"/queue"
	return tea.Batch(
		func() tea.Msg { return fetchHealth(client, healthURL) },
		func() tea.Msg { return fetchPending(client, pendingURL) },
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.buildTable.SetWidth(m.width - 6)

	case eventMsg:
		m.pushEvent(events.Event(msg))
		next := receiveNextEvent(m.hubEvents)
		switch msg.Type {
		case events.TypeBuildScheduled, events.TypeBuildCoalesced, events.TypeBuildReleased:
			return m, tea.Batch(next, m.refresh())
		}
		return m, next

	case healthMsg:
		m.health = webhook.HealthResponse(msg)
		m.lastError = ""
		return m, nil

	case pendingMsg:
		m.builds = msg
		m.updateTable()
		return m, nil

	case refreshMsg:
		return m, tea.Batch(m.refresh(), refreshEvery(refreshInterval))

	case sseDisconnectedMsg:
		m.live = false
		return m, tea.Tick(refreshInterval, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		m.live = true
		return m, subscribeToEvents(m.baseURL+m.path+"/events", m.hubEvents)

	case errMsg:
		m.lastError = msg.err.Error()
		return m, nil
	}

	m.buildTable, cmd = m.buildTable.Update(msg)
	return m, cmd
}

func (m *Model) pushEvent(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
}

func (m *Model) updateTable() {
	now := m.now()
	rows := make([]table.Row, 0, len(m.builds))
	for _, b := range m.builds {
		starts := "due"
		if wait := b.NotBefore.Sub(now); wait > 0 {
			starts = "in " + wait.Round(time.Second).String()
		}
		rows = append(rows, table.Row{shortID(b.ID), b.Job, fmt.Sprint(b.Triggers), starts, b.Cause})
	}
	m.buildTable.SetRows(rows)
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	builds := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Pending Builds"),
			m.renderBuilds(),
		),
	)
	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	footer := " [q] Quit • [r] Refresh • [↑/↓] Scroll"
	if m.lastError != "" {
		footer += " • " + statusFailed.Render(m.lastError)
	}

	return docStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			builds,
			eventsView,
			dimStyle.Render(footer),
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	if m.health.Status != "ok" {
		status = statusFailed.Render("UNREACHABLE")
	}
	stream := statusOK.Render("live")
	if !m.live {
		stream = statusFailed.Render("reconnecting")
	}

	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Jobs: %d", m.health.Jobs),
		fmt.Sprintf("Queue: %d", m.health.QueueDepth),
		fmt.Sprintf("Events: %s", stream),
	}
	cols := make([]string, len(items))
	for i, it := range items {
		cols[i] = lipgloss.NewStyle().Width((m.width - 4) / len(items)).Render(it)
	}
	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}

func (m Model) renderBuilds() string {
	if len(m.builds) == 0 {
		return "  No pending builds."
	}
	return m.buildTable.View()
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s | %-16s | %s", e.At.Format("15:04:05"), e.Type, describe(e)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// describe renders an event payload for the log; unknown payloads are shown raw.
func describe(e events.Event) string {
	p, err := events.Decode(e)
	if err != nil {
		return string(e.Data)
	}
	switch p := p.(type) {
	case events.BuildScheduled:
		return fmt.Sprintf("%s %s until %s", p.Job, shortID(p.ID), p.NotBefore.Local().Format("15:04:05"))
	case events.BuildReleased:
		return fmt.Sprintf("%s %s after %d trigger(s)", p.Job, shortID(p.ID), p.Triggers)
	case events.JobsReloaded:
		return fmt.Sprintf("%d job(s) loaded", p.Jobs)
	}
	return string(e.Data)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
