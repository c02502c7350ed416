package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	taskdto "taskmesh/internal/modules/tasks/dto"
	"taskmesh/internal/ui/theme"
)

// ─── port ────────────────────────────────────────────────────────────────────

type TasksPort interface {
	TaskList(ctx context.Context) ([]taskdto.TaskOutput, error)
	TaskAdd(ctx context.Context, text string) (taskdto.TaskOutput, error)
	TaskEdit(ctx context.Context, taskID, text string) (taskdto.TaskOutput, error)
	TaskToggle(ctx context.Context, taskID string) (taskdto.TaskOutput, error)
	TaskRemove(ctx context.Context, taskID string) error
}

// ─── messages ────────────────────────────────────────────────────────────────

type TasksLoadedMsg struct {
	Tasks []taskdto.TaskOutput
	Err   error
}

type MutationDoneMsg struct {
	Err error
}

// ─── list item ───────────────────────────────────────────────────────────────

type taskItem struct {
	task taskdto.TaskOutput
}

func (i taskItem) Title() string {
	if i.task.Done {
		return theme.Done.Render("✓ " + i.task.Text)
	}
	return "· " + i.task.Text
}

func (i taskItem) Description() string {
	return fmt.Sprintf("last change %s", i.task.LastWrite.Format("Jan 2 15:04"))
}

func (i taskItem) FilterValue() string { return i.task.Text }

// ─── model ───────────────────────────────────────────────────────────────────

type inputMode int

const (
	inputNone inputMode = iota
	inputAdd
	inputEdit
)

type Model struct {
	port    TasksPort
	list    list.Model
	input   textinput.Model
	mode    inputMode
	editID  string
	status  string
	width   int
	height  int
}

func New(port TasksPort) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Lavender).BorderForeground(theme.Lavender)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Lavender)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Tasks"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	input := textinput.New()
	input.Placeholder = "task text"
	input.CharLimit = 200

	return Model{port: port, list: l, input: input}
}

func (m Model) Init() tea.Cmd {
	return m.loadTasksCmd()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)

	case TasksLoadedMsg:
		if msg.Err != nil {
			m.status = msg.Err.Error()
			return m, nil
		}
		m.status = ""
		items := make([]list.Item, len(msg.Tasks))
		for i, task := range msg.Tasks {
			items[i] = taskItem{task: task}
		}
		cmds = append(cmds, m.list.SetItems(items))

	case MutationDoneMsg:
		if msg.Err != nil {
			m.status = msg.Err.Error()
		}
		cmds = append(cmds, m.loadTasksCmd())

	case tea.KeyMsg:
		if m.mode != inputNone {
			switch msg.String() {
			case "enter":
				text := m.input.Value()
				mode, editID := m.mode, m.editID
				m.mode = inputNone
				m.input.Reset()
				m.input.Blur()
				if text == "" {
					return m, nil
				}
				if mode == inputEdit {
					return m, m.editTaskCmd(editID, text)
				}
				return m, m.addTaskCmd(text)
			case "esc":
				m.mode = inputNone
				m.input.Reset()
				m.input.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "a":
			m.mode = inputAdd
			m.input.Focus()
			return m, textinput.Blink
		case "e":
			if item, ok := m.list.SelectedItem().(taskItem); ok {
				m.mode = inputEdit
				m.editID = item.task.ID
				m.input.SetValue(item.task.Text)
				m.input.Focus()
				return m, textinput.Blink
			}
		case "t", " ":
			if item, ok := m.list.SelectedItem().(taskItem); ok {
				return m, m.toggleTaskCmd(item.task.ID)
			}
		case "x":
			if item, ok := m.list.SelectedItem().(taskItem); ok {
				return m, m.removeTaskCmd(item.task.ID)
			}
		case "r":
			return m, m.loadTasksCmd()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	var footer string
	switch {
	case m.mode == inputAdd:
		footer = theme.Hot.Render("add: ") + m.input.View()
	case m.mode == inputEdit:
		footer = theme.Hot.Render("edit: ") + m.input.View()
	case m.status != "":
		footer = theme.Hot.Render(m.status)
	default:
		footer = theme.Muted.Render("a: add  e: edit  t: toggle  x: remove  r: refresh  q: quit")
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), footer)
}

// Capturing reports whether keystrokes currently belong to the text input or
// the list filter rather than global bindings.
func (m Model) Capturing() bool {
	return m.mode != inputNone || m.list.FilterState() == list.Filtering
}

// ─── private ─────────────────────────────────────────────────────────────────

func (m Model) loadTasksCmd() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.port.TaskList(context.Background())
		return TasksLoadedMsg{Tasks: tasks, Err: err}
	}
}

func (m Model) addTaskCmd(text string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.port.TaskAdd(context.Background(), text)
		return MutationDoneMsg{Err: err}
	}
}

func (m Model) editTaskCmd(taskID, text string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.port.TaskEdit(context.Background(), taskID, text)
		return MutationDoneMsg{Err: err}
	}
}

func (m Model) toggleTaskCmd(taskID string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.port.TaskToggle(context.Background(), taskID)
		return MutationDoneMsg{Err: err}
	}
}

func (m Model) removeTaskCmd(taskID string) tea.Cmd {
	return func() tea.Msg {
		err := m.port.TaskRemove(context.Background(), taskID)
		return MutationDoneMsg{Err: err}
	}
}
