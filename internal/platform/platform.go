// Package platform abstracts the single chat surface that Conductor bridges
// panes to. The transport itself — Telegram, Slack, a bare HTTP webhook,
// whatever operators actually run — is an adapter behind two small
// interfaces: one interface per concern, a Registry that resolves a named
// adapter, and
// disabled-by-default construction when required config is missing so the
// process always starts.
package platform

import (
	"context"
	"fmt"
)

// Keyboard is an inline set of buttons attached to a message, e.g. the
// permission-prompt keyboard (allow / deny / show-context) or the
// input-prompt keyboard (numbered choices).
type Keyboard struct {
	Buttons []Button
}

// Button is one inline keyboard button. Data is the opaque callback
// payload the platform returns verbatim when the button is pressed,
// conventionally `<prefix>:<argument>` (e.g. "confirm:abc123").
type Button struct {
	Label string
	Data  string
}

// OutboundMessage is one message to deliver to the operator.
type OutboundMessage struct {
	Text     string
	Keyboard *Keyboard
	// EditMessageID, if non-empty, asks the adapter to edit an
	// already-sent message (by platform message id) instead of sending a
	// new one — used for e.g. updating a permission-prompt message after
	// it's been acted on.
	EditMessageID string
}

// SendResult carries the platform's identifier for a sent message, used
// later for Event.PlatformMessageID and possible edit/delete.
type SendResult struct {
	MessageID string
}

// Notifier is the outbound half of a platform adapter: deliver a message
// and probe liveness. Implementations need not batch or redact — that is
// the Notifier component's job (internal/notifier), layered above this.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
	// Ping performs the platform's trivial "who am I" call, used by the
	// liveness checker to detect recovery after an outage.
	Ping(ctx context.Context) error
}

// InboundCommand is one user-originated message or callback, normalized
// across platforms.
type InboundCommand struct {
	// Text is the raw message text for a free-text command, empty for a
	// pure callback press.
	Text string
	// CallbackData is the button payload for a callback press, empty for
	// a free-text message.
	CallbackData string
	User         string
}

// CommandSource is the inbound half of a platform adapter: however the
// platform delivers user input (long-poll, webhook push, SSE), it is
// normalized into a channel of InboundCommand.
type CommandSource interface {
	Name() string
	Commands() <-chan InboundCommand
	Run(ctx context.Context) error
}

// Registry resolves named platform adapters. Exactly one is active at
// runtime in normal operation, but the registry itself supports several
// simultaneously registered (e.g. a real adapter plus the dev/test HTTP
// adapter side by side) the same way the git-provider registry supports
// both GitHub and Gitea.
type Registry struct {
	notifiers map[string]Notifier
	sources   map[string]CommandSource
}

// NewRegistry creates an empty Registry. Callers register adapters
// explicitly (constructed from config), rather than the registry reaching
// into the environment itself — Conductor's config loader already owns
// that concern.
func NewRegistry() *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
		sources:   make(map[string]CommandSource),
	}
}

// RegisterNotifier adds or replaces a Notifier under name.
func (r *Registry) RegisterNotifier(name string, n Notifier) {
	r.notifiers[name] = n
}

// RegisterCommandSource adds or replaces a CommandSource under name.
func (r *Registry) RegisterCommandSource(name string, c CommandSource) {
	r.sources[name] = c
}

// Notifier resolves a registered Notifier by name.
func (r *Registry) Notifier(name string) (Notifier, error) {
	n, ok := r.notifiers[name]
	if !ok {
		return nil, fmt.Errorf("platform notifier %q is not registered", name)
	}
	return n, nil
}

// CommandSource resolves a registered CommandSource by name.
func (r *Registry) CommandSource(name string) (CommandSource, error) {
	c, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("platform command source %q is not registered", name)
	}
	return c, nil
}
