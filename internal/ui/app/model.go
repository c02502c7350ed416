package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	sessiondto "taskmesh/internal/modules/session/dto"
	"taskmesh/internal/ui/theme"
	tasksview "taskmesh/internal/ui/views/tasks"
)

type SessionPort interface {
	SessionList(ctx context.Context) ([]sessiondto.SessionOutput, error)
}

type sessionsLoadedMsg struct {
	Sessions []sessiondto.SessionOutput
}

type refreshTickMsg struct{}

// refreshInterval keeps the view in step with ops arriving from peers; the
// log itself converges without the UI's help.
const refreshInterval = 2 * time.Second

type Model struct {
	tasks    tasksview.Model
	sessions SessionPort
	header   string
	width    int
	height   int
}

func NewModel(tasks tasksview.TasksPort, sessions SessionPort) Model {
	return Model{
		tasks:    tasksview.New(tasks),
		sessions: sessions,
		header:   "no linked peers",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tasks.Init(), m.loadSessionsCmd(), m.tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		inner := msg
		inner.Height = msg.Height - 1
		var cmd tea.Cmd
		m.tasks, cmd = m.tasks.Update(inner)
		return m, cmd

	case tea.KeyMsg:
		if !m.tasks.Capturing() {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

	case sessionsLoadedMsg:
		m.header = renderSessions(msg.Sessions)
		return m, nil

	case refreshTickMsg:
		cmds = append(cmds, m.loadSessionsCmd(), m.tickCmd())
		cmds = append(cmds, func() tea.Msg { return tasksview.MutationDoneMsg{} })
	}

	var cmd tea.Cmd
	m.tasks, cmd = m.tasks.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	header := theme.Title.Render("taskmesh") + "  " + theme.Muted.Render(m.header)
	return lipgloss.JoinVertical(lipgloss.Left, header, m.tasks.View())
}

func (m Model) loadSessionsCmd() tea.Cmd {
	return func() tea.Msg {
		sessions, err := m.sessions.SessionList(context.Background())
		if err != nil {
			return sessionsLoadedMsg{}
		}
		return sessionsLoadedMsg{Sessions: sessions}
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func renderSessions(sessions []sessiondto.SessionOutput) string {
	if len(sessions) == 0 {
		return "no linked peers"
	}
	open := 0
	for _, sess := range sessions {
		if sess.State == "channel_open" {
			open++
		}
	}
	return fmt.Sprintf("%d session(s), %d open", len(sessions), open)
}
