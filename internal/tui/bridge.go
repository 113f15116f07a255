package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/dispatch"
)

// ErrClosed is returned by Ask once the program has exited.
var ErrClosed = errors.New("terminal UI closed")

// Sender is the part of *tea.Program the bridge needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge feeds coordinator events and capability prompts into a running
// program. It is a dispatch.StatusSink and a capability.Prompter.
type Bridge struct {
	program Sender
	done    chan struct{}
}

func NewBridge(p Sender) *Bridge {
	return &Bridge{program: p, done: make(chan struct{})}
}

// Report implements dispatch.StatusSink.
func (b *Bridge) Report(ev dispatch.StatusEvent) {
	b.program.Send(StatusMsg(ev))
}

// Ask implements capability.Prompter by showing the question in the view
// and waiting for a key.
func (b *Bridge) Ask(ctx context.Context, c alert.Capability) (bool, error) {
	select {
	case <-b.done:
		return false, ErrClosed
	default:
	}

	reply := make(chan bool, 1)
	b.program.Send(PromptMsg{Capability: c, Reply: reply})

	select {
	case allow := <-reply:
		return allow, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-b.done:
		return false, ErrClosed
	}
}

// Close unblocks pending prompts. Call it after the program returns.
func (b *Bridge) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// Run starts a program for model and wires a bridge to it. The bridge is
// closed when the program exits; run the attempt from start once the bridge
// exists.
func Run(ctx context.Context, model Model, start func(*Bridge)) (Model, error) {
	p := tea.NewProgram(model, tea.WithContext(ctx))
	b := NewBridge(p)
	defer b.Close()

	go start(b)

	final, err := p.Run()
	if m, ok := final.(Model); ok {
		return m, err
	}
	return model, err
}
