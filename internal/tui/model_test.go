package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/dispatch"
)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModelTracksStatus(t *testing.T) {
	m := NewModel(nil)
	m, _ = update(t, m, StatusMsg{Type: dispatch.EventAcquiring, State: dispatch.AcquiringContext, Message: "Sending emergency alert..."})
	assert.Contains(t, m.View(), "Sending emergency alert...")
	assert.Contains(t, m.View(), "[c] cancel alert")

	reason := alert.AcquisitionFailure(alert.Camera, alert.DetailDeclined)
	m, _ = update(t, m, StatusMsg{Type: dispatch.EventDegraded, State: dispatch.AcquiringContext, Message: reason.Error(), Reason: &reason})
	assert.Contains(t, m.View(), "No photo attached")

	_, ok := m.Outcome()
	assert.False(t, ok)
}

func TestModelQuitsOnTerminalEvent(t *testing.T) {
	m := NewModel(nil)
	out := alert.Success("a1", "")
	m, cmd := update(t, m, StatusMsg{Type: dispatch.EventSucceeded, State: dispatch.Succeeded, Message: out.Message, Outcome: &out})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	got, ok := m.Outcome()
	require.True(t, ok)
	assert.True(t, got.Succeeded)
	assert.Contains(t, m.View(), alert.SuccessMessage)
	assert.Contains(t, m.View(), "[q] quit")
}

func TestModelFailureView(t *testing.T) {
	m := NewModel(nil)
	out := alert.Failure("a1", alert.RejectedFailure(500, "server error"))
	m, _ = update(t, m, StatusMsg{Type: dispatch.EventFailed, State: dispatch.Failed, Message: out.Message, Outcome: &out})
	assert.Contains(t, m.View(), "Error: 500 server error")
}

func TestModelPromptAnswers(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want bool
	}{
		{keyRunes("y"), true},
		{keyRunes("n"), false},
		{tea.KeyMsg{Type: tea.KeyEnter}, false},
	}
	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			reply := make(chan bool, 1)
			m := NewModel(nil)
			m, _ = update(t, m, PromptMsg{Capability: alert.Location, Reply: reply})
			assert.Contains(t, m.View(), "Allow access to your location?")

			m, _ = update(t, m, tt.key)
			assert.Equal(t, tt.want, <-reply)
			assert.NotContains(t, m.View(), "Allow access")
		})
	}
}

func TestModelCancelKey(t *testing.T) {
	cancelled := 0
	m := NewModel(func() { cancelled++ })

	// Nothing in flight yet.
	m, _ = update(t, m, keyRunes("c"))
	assert.Equal(t, 0, cancelled)

	reply := make(chan bool, 1)
	m, _ = update(t, m, StatusMsg{Type: dispatch.EventAcquiring, State: dispatch.AcquiringContext})
	m, _ = update(t, m, PromptMsg{Capability: alert.Camera, Reply: reply})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.False(t, <-reply, "pending prompt is declined on cancel")
	assert.Equal(t, 0, cancelled, "cancel runs as a command, not inside Update")
	assert.Nil(t, cmd())
	assert.Equal(t, 1, cancelled)

	_, cmd = update(t, m, keyRunes("q"))
	assert.Nil(t, cmd, "q is ignored while in flight")
}

type fakeProgram struct {
	mu   sync.Mutex
	msgs []tea.Msg
	on   func(tea.Msg)
}

func (f *fakeProgram) Send(msg tea.Msg) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	if f.on != nil {
		f.on(msg)
	}
}

func TestBridgeReportAndAsk(t *testing.T) {
	fp := &fakeProgram{on: func(msg tea.Msg) {
		if p, ok := msg.(PromptMsg); ok {
			p.Reply <- p.Capability == alert.Camera
		}
	}}
	b := NewBridge(fp)

	b.Report(dispatch.StatusEvent{AttemptID: "a1", Type: dispatch.EventSending})
	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "a1", fp.msgs[0].(StatusMsg).AttemptID)

	allow, err := b.Ask(context.Background(), alert.Camera)
	require.NoError(t, err)
	assert.True(t, allow)

	allow, err = b.Ask(context.Background(), alert.Location)
	require.NoError(t, err)
	assert.False(t, allow)
}

func TestBridgeAskUnblocksOnCloseAndContext(t *testing.T) {
	b := NewBridge(&fakeProgram{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Ask(ctx, alert.Camera)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Ask(context.Background(), alert.Location)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()
	b.Close()
	assert.True(t, errors.Is(<-errCh, ErrClosed))

	_, err = b.Ask(context.Background(), alert.Camera)
	assert.ErrorIs(t, err, ErrClosed)
}
