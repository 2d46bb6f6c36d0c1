// Package tui renders a live task board in the terminal, fed by the API
// server's websocket stream.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/randalmurphal/duckling/internal/server"
	"github.com/randalmurphal/duckling/internal/task"
)

const (
	fetchTimeout   = 10 * time.Second
	reconnectDelay = 2 * time.Second

	colIDWidth     = 5
	colStatusWidth = 16
	colStageWidth  = 24
	colTitleWidth  = 40
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	liveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusStyles = map[task.Status]lipgloss.Style{
		task.StatusPending:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		task.StatusInProgress:     lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		task.StatusAwaitingReview: lipgloss.NewStyle().Foreground(lipgloss.Color("170")),
		task.StatusCompleted:      lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		task.StatusFailed:         lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		task.StatusCancelled:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

// Run opens the watch board against the given API server and blocks until
// the user quits.
func Run(client *server.Client) error {
	program := tea.NewProgram(NewModel(client), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("watch ui: %w", err)
	}
	return nil
}

// Model is the bubbletea model behind `duckling watch`. It keeps every
// task it has seen and redraws the table as websocket updates arrive.
type Model struct {
	client    *server.Client
	table     table.Model
	spinner   spinner.Model
	tasks     map[int64]task.Task
	conn      *websocket.Conn
	connected bool
	quitting  bool
	err       error
}

// NewModel creates the watch model. The caller passes it to a bubbletea
// program; Run does both.
func NewModel(client *server.Client) *Model {
	t := table.New(
		table.WithColumns(columns(colTitleWidth)),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("205"))
	styles.Selected = styles.Selected.Bold(true).Foreground(lipgloss.Color("170"))
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		client:  client,
		table:   t,
		spinner: sp,
		tasks:   make(map[int64]task.Task),
	}
}

func columns(titleWidth int) []table.Column {
	return []table.Column{
		{Title: "ID", Width: colIDWidth},
		{Title: "Status", Width: colStatusWidth},
		{Title: "Stage", Width: colStageWidth},
		{Title: "Title", Width: titleWidth},
	}
}

type tasksLoadedMsg []task.Task

type loadFailedMsg struct{ err error }

type connectedMsg struct{ conn *websocket.Conn }

type frameMsg server.WSMessage

type disconnectedMsg struct{ err error }

type reconnectMsg struct{}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchTasks(), m.connect())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.conn != nil {
				m.conn.Close()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tasksLoadedMsg:
		m.err = nil
		m.tasks = make(map[int64]task.Task, len(msg))
		for _, t := range msg {
			m.tasks[t.ID] = t
		}
		m.refreshRows()
		return m, nil

	case loadFailedMsg:
		m.err = msg.err
		return m, nil

	case connectedMsg:
		m.conn = msg.conn
		m.connected = true
		m.err = nil
		// Refetch after every (re)connect so updates missed while
		// disconnected are not lost.
		return m, tea.Batch(readNext(msg.conn), m.fetchTasks())

	case frameMsg:
		m.applyFrame(server.WSMessage(msg))
		if m.conn != nil {
			return m, readNext(m.conn)
		}
		return m, nil

	case disconnectedMsg:
		m.connected = false
		m.conn = nil
		if m.quitting {
			return m, nil
		}
		m.err = msg.err
		return m, scheduleReconnect()

	case reconnectMsg:
		return m, m.connect()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("duckling tasks"))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	if m.connected {
		b.WriteString(liveStyle.Render("● live"))
	} else {
		b.WriteString(m.spinner.View() + " " + subtleStyle.Render("connecting to "+m.client.BaseURL()))
	}
	if m.err != nil {
		b.WriteString("  " + errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("↑/↓: scroll • q: quit"))
	return b.String()
}

func (m *Model) fetchTasks() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		tasks, err := client.Tasks(ctx)
		if err != nil {
			return loadFailedMsg{err: err}
		}
		return tasksLoadedMsg(tasks)
	}
}

func (m *Model) connect() tea.Cmd {
	url := m.client.WebSocketURL()
	return func() tea.Msg {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return disconnectedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

func readNext(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var frame server.WSMessage
		if err := conn.ReadJSON(&frame); err != nil {
			return disconnectedMsg{err: err}
		}
		return frameMsg(frame)
	}
}

func scheduleReconnect() tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (m *Model) applyFrame(frame server.WSMessage) {
	if frame.Type != "task_update" {
		return
	}
	if frame.Task != nil {
		m.tasks[frame.Task.ID] = *frame.Task
	} else if existing, ok := m.tasks[frame.TaskID]; ok {
		existing.Status = frame.Status
		m.tasks[frame.TaskID] = existing
	}
	m.refreshRows()
}

// refreshRows rebuilds the table newest-first from the task map.
func (m *Model) refreshRows() {
	ids := make([]int64, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		t := m.tasks[id]
		stage := string(t.CurrentStage)
		if stage == "" {
			stage = "-"
		}
		rows = append(rows, table.Row{
			strconv.FormatInt(t.ID, 10),
			statusCell(t.Status),
			stage,
			t.Title,
		})
	}
	m.table.SetRows(rows)
}

func statusCell(s task.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

func (m *Model) resize(width, height int) {
	titleWidth := width - colIDWidth - colStatusWidth - colStageWidth - 8
	if titleWidth < colTitleWidth {
		titleWidth = colTitleWidth
	}
	m.table.SetColumns(columns(titleWidth))

	tableHeight := height - 6
	if tableHeight < 3 {
		tableHeight = 3
	}
	m.table.SetHeight(tableHeight)
}
