// Package app is the terminal chat surface. It renders snapshots of the
// session orchestrator and forwards user intent; all conversation state
// lives in the orchestrator.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatcore/internal/session"
	"chatcore/internal/types"
)

const (
	tickInterval     = 100 * time.Millisecond
	minViewportWidth = 20
	minContentHeight = 6
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type startedMsg struct{}

type sendDoneMsg struct{ err error }

type resetDoneMsg struct{ err error }

type Model struct {
	engine   *session.Orchestrator
	viewport viewport.Model
	input    textinput.Model
	loader   spinner.Model
	width    int
	height   int
	follow   bool
	sending  bool
	state    session.State
}

func NewModel(engine *session.Orchestrator) Model {
	vp := viewport.New(minViewportWidth, minContentHeight-1)

	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Focus()

	loader := spinner.New()
	loader.Spinner = spinner.Line
	loader.Style = lipgloss.NewStyle()

	return Model{
		engine:   engine,
		viewport: vp,
		input:    input,
		loader:   loader,
		follow:   true,
	}
}

func Run(engine *session.Orchestrator) error {
	model := NewModel(engine)
	p := tea.NewProgram(&model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.startCmd(), m.loader.Tick, tickCmd())
}

func (m *Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		m.engine.Start(context.Background())
		return startedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.syncViewport()
		return m, nil

	case tickMsg:
		m.state = m.engine.Snapshot()
		m.syncViewport()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd

	case startedMsg:
		m.state = m.engine.Snapshot()
		m.syncViewport()
		return m, nil

	case sendDoneMsg:
		m.sending = false
		m.state = m.engine.Snapshot()
		m.syncViewport()
		return m, nil

	case resetDoneMsg:
		m.state = m.engine.Snapshot()
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state.HasPendingRecovery {
		switch msg.String() {
		case "y", "Y", "enter":
			m.engine.ConfirmRecovery(context.Background())
			m.state = m.engine.Snapshot()
			m.syncViewport()
			return m, nil
		case "n", "N":
			m.engine.DeclineRecovery(context.Background())
			m.state = m.engine.Snapshot()
			m.syncViewport()
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		m.engine.Close()
		return m, tea.Quit
	case "esc":
		m.engine.CancelStream()
		return m, nil
	case "ctrl+r":
		return m, func() tea.Msg {
			return resetDoneMsg{err: m.engine.Reset(context.Background())}
		}
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.sending {
			return m, nil
		}
		m.input.SetValue("")
		m.sending = true
		m.follow = true
		return m, func() tea.Msg {
			return sendDoneMsg{err: m.engine.SendMessage(context.Background(), text)}
		}
	case "up":
		m.follow = false
		m.viewport.ScrollUp(1)
		return m, nil
	case "down":
		m.viewport.ScrollDown(1)
		if m.viewport.AtBottom() {
			m.follow = true
		}
		return m, nil
	case "pgup":
		m.follow = false
		m.viewport.HalfPageUp()
		return m, nil
	case "pgdown":
		m.viewport.HalfPageDown()
		if m.viewport.AtBottom() {
			m.follow = true
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize() {
	width := m.width
	if width < minViewportWidth {
		width = minViewportWidth
	}
	height := m.height - 4
	if height < minContentHeight-1 {
		height = minContentHeight - 1
	}
	m.viewport.Width = width
	m.viewport.Height = height
	m.input.Width = width - 4
}

func (m *Model) syncViewport() {
	content := renderTranscript(m.state, m.viewport.Width)
	if m.state.HasPendingRecovery {
		content += "\n" + renderRecoveryPrompt(m.state.PendingMessageCount)
	}
	m.viewport.SetContent(content)
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	header := headerStyle.Render("chatcore")
	status := statusLine(m.state, m.loader.View())
	help := helpStyle.Render("enter send | esc cancel | ctrl+r reset | ctrl+c quit")

	inputView := m.input.View()
	if m.state.HasPendingRecovery {
		inputView = helpStyle.Render("press y to resume or n to start fresh")
	} else if m.state.Status == types.StatusHumanMode {
		m.input.Placeholder = "Message the human agent"
	} else {
		m.input.Placeholder = "Type a message"
	}

	return strings.Join([]string{
		header,
		m.viewport.View(),
		status,
		inputView + "  " + help,
	}, "\n")
}
