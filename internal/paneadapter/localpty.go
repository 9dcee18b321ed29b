package paneadapter

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// LocalPTY backs a pane adapter with a real pseudo-terminal running a local
// command, instead of a tmux socket. It exists so tests and local
// development can exercise the full monitor → output buffer → classifier
// pipeline without a live tmux server.
type LocalPTY struct {
	cmd *exec.Cmd
	f   *os.File

	mu    sync.Mutex
	lines []string
	dead  bool
}

// StartLocalPTY spawns name/args attached to a new pty and begins
// background-reading its output into a line buffer.
func StartLocalPTY(name string, args ...string) (*LocalPTY, error) {
	cmd := exec.Command(name, args...)
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	l := &LocalPTY{cmd: cmd, f: f}
	go l.readLoop()
	return l, nil
}

func (l *LocalPTY) readLoop() {
	scanner := bufio.NewScanner(l.f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		l.mu.Lock()
		l.lines = append(l.lines, scanner.Text())
		l.mu.Unlock()
	}
	l.mu.Lock()
	l.dead = true
	l.mu.Unlock()
}

// Alive reports whether the underlying process is still attached to the pty.
func (l *LocalPTY) Alive(_ context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.dead
}

// CaptureRecent returns up to the last maxLines lines read so far.
func (l *LocalPTY) CaptureRecent(_ context.Context, maxLines int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead && len(l.lines) == 0 {
		return nil, ErrPaneGone
	}
	if len(l.lines) <= maxLines {
		out := make([]string, len(l.lines))
		copy(out, l.lines)
		return out, nil
	}
	start := len(l.lines) - maxLines
	out := make([]string, maxLines)
	copy(out, l.lines[start:])
	return out, nil
}

// Send writes text (and optionally a carriage return) to the pty.
func (l *LocalPTY) Send(_ context.Context, text string, pressEnter bool) error {
	l.mu.Lock()
	dead := l.dead
	l.mu.Unlock()
	if dead {
		return ErrPaneGone
	}
	if pressEnter {
		text += "\r"
	}
	if _, err := l.f.WriteString(text); err != nil {
		return fmt.Errorf("write pty: %w", err)
	}
	return nil
}

// Interrupt writes the terminal's interrupt character (Ctrl+C, 0x03)
// directly into the pty, the same byte a real keyboard would produce —
// this reaches the child's line discipline rather than signaling the Go
// process, so it works whether or not the child has installed its own
// SIGINT handler.
func (l *LocalPTY) Interrupt(_ context.Context) error {
	l.mu.Lock()
	dead := l.dead
	l.mu.Unlock()
	if dead {
		return ErrPaneGone
	}
	if _, err := l.f.Write([]byte{0x03}); err != nil {
		return fmt.Errorf("write interrupt: %w", err)
	}
	return nil
}

// Close terminates the underlying process and releases the pty file.
func (l *LocalPTY) Close() error {
	_ = l.f.Close()
	if l.cmd.Process != nil {
		_ = l.cmd.Process.Kill()
	}
	return l.cmd.Wait()
}
