package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/capability"
	"github.com/mattjoyce/beacon/internal/dispatch"
)

const maxLogLines = 8

// StatusMsg carries one coordinator event into the program.
type StatusMsg dispatch.StatusEvent

// PromptMsg asks the user about a capability. The answer is sent on Reply,
// which must be buffered.
type PromptMsg struct {
	Capability alert.Capability
	Reply      chan<- bool
}

// Model is the BubbleTea model for one alert attempt.
type Model struct {
	theme   Theme
	spinner spinner.Model
	width   int

	state   dispatch.State
	message string
	log     []dispatch.StatusEvent
	outcome *alert.Outcome
	prompt  *PromptMsg

	// onCancel abandons the attempt; nil disables the key.
	onCancel func()
}

// NewModel returns a model waiting for the first status event.
func NewModel(onCancel func()) Model {
	theme := NewDefaultTheme()
	return Model{
		theme: theme,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(theme.StatusRunning),
		),
		state:    dispatch.Idle,
		message:  "Preparing emergency alert...",
		onCancel: onCancel,
	}
}

// Outcome returns the terminal outcome once one has been received.
func (m Model) Outcome() (alert.Outcome, bool) {
	if m.outcome == nil {
		return alert.Outcome{}, false
	}
	return *m.outcome, true
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case PromptMsg:
		p := msg
		m.prompt = &p

	case StatusMsg:
		ev := dispatch.StatusEvent(msg)
		m.state = ev.State
		m.message = ev.Message
		m.log = append(m.log, ev)
		if len(m.log) > maxLogLines {
			m.log = m.log[len(m.log)-maxLogLines:]
		}
		if ev.Terminal() {
			m.answer(false)
			if ev.Outcome != nil {
				out := *ev.Outcome
				m.outcome = &out
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prompt != nil {
		switch msg.String() {
		case "y", "Y":
			m.answer(true)
			return m, nil
		case "n", "N", "enter", "esc":
			m.answer(false)
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+c", "c":
		if m.state.InFlight() && m.onCancel != nil {
			m.answer(false)
			return m, cancelCmd(m.onCancel)
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case "q":
		if !m.state.InFlight() {
			return m, tea.Quit
		}
	}
	return m, nil
}

// cancelCmd runs onCancel off the event loop; the coordinator reports the
// cancellation back as a StatusMsg.
func cancelCmd(onCancel func()) tea.Cmd {
	return func() tea.Msg {
		onCancel()
		return nil
	}
}

// answer replies to the pending prompt, if any.
func (m *Model) answer(allow bool) {
	if m.prompt == nil {
		return
	}
	select {
	case m.prompt.Reply <- allow:
	default:
	}
	m.prompt = nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.theme.Title.Render("Emergency alert"))
	b.WriteString("\n\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	for _, ev := range m.log {
		if ev.Type != dispatch.EventDegraded {
			continue
		}
		b.WriteString(m.theme.StatusWarn.Render("  ! " + ev.Message))
		b.WriteString("\n")
	}

	if m.prompt != nil {
		b.WriteString("\n")
		b.WriteString(m.theme.Prompt.Render(capability.Question(m.prompt.Capability)))
		b.WriteString(m.theme.Dim.Render(" [y/N]"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Dim.Render(m.helpLine()))

	box := m.theme.Border
	if m.width > 4 {
		box = box.Width(min(m.width-4, 72))
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(box.Render(b.String())) + "\n"
}

func (m Model) statusLine() string {
	switch {
	case m.outcome != nil && m.outcome.Succeeded:
		return m.theme.StatusOK.Render("✓ " + m.outcome.Message)
	case m.outcome != nil:
		return m.theme.StatusFailed.Render("✗ " + m.outcome.Message)
	default:
		return fmt.Sprintf("%s %s", m.spinner.View(), m.message)
	}
}

func (m Model) helpLine() string {
	switch {
	case m.prompt != nil:
		return "[y] allow • [n] deny"
	case m.state.InFlight():
		return "[c] cancel alert"
	default:
		return "[q] quit"
	}
}
