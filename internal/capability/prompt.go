package capability

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattjoyce/beacon/internal/alert"
)

// Prompter asks the user whether to allow a capability.
type Prompter interface {
	Ask(ctx context.Context, c alert.Capability) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, c alert.Capability) (bool, error)

func (f PrompterFunc) Ask(ctx context.Context, c alert.Capability) (bool, error) {
	return f(ctx, c)
}

// DenyPrompter declines every request. Used when nobody is at the keyboard.
type DenyPrompter struct{}

func (DenyPrompter) Ask(context.Context, alert.Capability) (bool, error) { return false, nil }

// TerminalPrompter asks a y/N question on a line-oriented terminal.
type TerminalPrompter struct {
	out io.Writer

	mu sync.Mutex
	in *bufio.Reader
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *TerminalPrompter) Ask(ctx context.Context, c alert.Capability) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.out, "%s [y/N]: ", Question(c)); err != nil {
		return false, err
	}

	type line struct {
		s   string
		err error
	}
	ch := make(chan line, 1)
	go func() {
		s, err := p.in.ReadString('\n')
		ch <- line{s, err}
	}()

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(p.out)
		return false, ctx.Err()
	case l := <-ch:
		if l.err != nil && l.s == "" {
			if l.err == io.EOF {
				return false, nil
			}
			return false, l.err
		}
		switch strings.ToLower(strings.TrimSpace(l.s)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// Question is the text shown when asking for c.
func Question(c alert.Capability) string {
	switch c {
	case alert.Camera:
		return "Allow access to the camera?"
	case alert.Location:
		return "Allow access to your location?"
	}
	return fmt.Sprintf("Allow access to %s?", c)
}
