// Package paneadapter exposes the two operations a pane monitor needs from
// whatever terminal multiplexer actually hosts a session: reading recent
// scrollback and injecting keystrokes.
package paneadapter

import (
	"context"
	"errors"
)

// ErrPaneGone is returned by CaptureRecent or Send when the underlying pane
// no longer exists. The owning monitor treats this as terminal: it stops
// polling and marks the session exited.
var ErrPaneGone = errors.New("pane gone")

// Adapter captures scrollback from, and sends keystrokes to, one terminal
// pane. Implementations must be safe for sequential use by a single pane
// monitor; concurrent use from multiple goroutines is not required.
type Adapter interface {
	// CaptureRecent returns the last maxLines lines currently visible in
	// the pane's scrollback, oldest first.
	CaptureRecent(ctx context.Context, maxLines int) ([]string, error)

	// Send delivers text into the pane. If pressEnter is true, a terminal
	// Enter keypress is sent as a separate, named key after the literal
	// text — two tmux calls are required because a literal send-keys
	// argument of "\n" is interpreted as a line feed, not a submit.
	Send(ctx context.Context, text string, pressEnter bool) error

	// Alive reports whether the pane still exists, independent of
	// CaptureRecent/Send failing for a transient reason.
	Alive(ctx context.Context) bool
}

// Interrupter is an optional capability: adapters that can deliver an
// interrupt signal (Ctrl+C) implement it. The auto-responder's undo
// affordance and the confirmation-gated kill/restart operations type-assert
// for this rather than requiring it of every Adapter, since not every
// hosting mechanism has an equivalent signal.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}
