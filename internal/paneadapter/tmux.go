package paneadapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TmuxAdapter drives one tmux pane via the tmux CLI: capture-pane for
// scrollback, send-keys for input. This is the adapter used against a real,
// locally-hosted multiplexer session.
type TmuxAdapter struct {
	Session string
	PaneID  string
}

// NewTmuxAdapter returns an Adapter bound to one pane of a named tmux
// session.
func NewTmuxAdapter(session, paneID string) *TmuxAdapter {
	return &TmuxAdapter{Session: session, PaneID: paneID}
}

// Alive checks that the tmux session still exists and that the target pane
// is among its current panes.
func (t *TmuxAdapter) Alive(ctx context.Context) bool {
	check := exec.CommandContext(ctx, "tmux", "has-session", "-t", t.Session)
	if err := check.Run(); err != nil {
		return false
	}
	out, err := exec.CommandContext(ctx, "tmux", "list-panes", "-t", t.Session, "-F", "#{pane_id}").Output()
	if err != nil {
		return false
	}
	for _, id := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if id == t.PaneID {
			return true
		}
	}
	return false
}

// CaptureRecent shells out to `tmux capture-pane` with -S to request the
// last maxLines lines of scrollback, including still-visible history.
func (t *TmuxAdapter) CaptureRecent(ctx context.Context, maxLines int) ([]string, error) {
	if !t.Alive(ctx) {
		return nil, ErrPaneGone
	}

	start := "-" + strconv.Itoa(maxLines)
	cmd := exec.CommandContext(ctx, "tmux", "capture-pane", "-p", "-t", t.PaneID, "-S", start)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tmux capture-pane %s: %w", t.PaneID, err)
	}

	text := stdout.String()
	if text == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n"), nil
}

// Send writes text into the pane. The text and the Enter keypress are sent
// as two separate tmux send-keys calls: `-l` treats every argument as
// literal, so a trailing "\n" would be delivered as a line feed rather than
// a submit. Sending the named key "Enter" afterward produces the carriage
// return interactive CLIs actually look for.
func (t *TmuxAdapter) Send(ctx context.Context, text string, pressEnter bool) error {
	if !t.Alive(ctx) {
		return ErrPaneGone
	}

	send := exec.CommandContext(ctx, "tmux", "send-keys", "-t", t.PaneID, "-l", text)
	if err := send.Run(); err != nil {
		return fmt.Errorf("tmux send-keys %s: %w", t.PaneID, err)
	}

	if !pressEnter {
		return nil
	}

	enter := exec.CommandContext(ctx, "tmux", "send-keys", "-t", t.PaneID, "Enter")
	if err := enter.Run(); err != nil {
		return fmt.Errorf("tmux send-keys Enter %s: %w", t.PaneID, err)
	}
	return nil
}

// Interrupt sends Ctrl+C to the pane — the undo mechanism behind
// auto-responder rollbacks and the confirmation-gated kill/restart
// operations.
func (t *TmuxAdapter) Interrupt(ctx context.Context) error {
	if !t.Alive(ctx) {
		return ErrPaneGone
	}
	cmd := exec.CommandContext(ctx, "tmux", "send-keys", "-t", t.PaneID, "C-c")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux send-keys C-c %s: %w", t.PaneID, err)
	}
	return nil
}
