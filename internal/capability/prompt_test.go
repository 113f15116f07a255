package capability

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/beacon/internal/alert"
)

func TestTerminalPrompterAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := NewTerminalPrompter(strings.NewReader(tt.input), &out)
		got, err := p.Ask(context.Background(), alert.Location)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "Allow access to your location? [y/N]")
	}
}

func TestTerminalPrompterSequentialQuestions(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader("y\nn\n"), &out)

	cam, err := p.Ask(context.Background(), alert.Camera)
	require.NoError(t, err)
	loc, err := p.Ask(context.Background(), alert.Location)
	require.NoError(t, err)

	assert.True(t, cam)
	assert.False(t, loc)
}

func TestTerminalPrompterHonoursContext(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := NewTerminalPrompter(r, io.Discard)
	ok, err := p.Ask(ctx, alert.Camera)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDenyPrompter(t *testing.T) {
	ok, err := DenyPrompter{}.Ask(context.Background(), alert.Camera)
	assert.NoError(t, err)
	assert.False(t, ok)
}
