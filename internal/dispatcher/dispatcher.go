// Package dispatcher implements the Event Dispatcher: the single
// component that wires a classified pane event to the auto-responder,
// notifier, AI adapter, token estimator, and store. It is the one place in
// the system that knows about every other component, matching the
// teacher's own "one component wires everything else" role for its
// escalation chain.
package dispatcher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joestump/conductor/internal/aiadapter"
	"github.com/joestump/conductor/internal/autoresponder"
	"github.com/joestump/conductor/internal/classifier"
	"github.com/joestump/conductor/internal/confirmation"
	"github.com/joestump/conductor/internal/monitor"
	"github.com/joestump/conductor/internal/notifier"
	"github.com/joestump/conductor/internal/paneadapter"
	"github.com/joestump/conductor/internal/platform"
	"github.com/joestump/conductor/internal/store"
	"github.com/joestump/conductor/internal/tokenestimator"
)

// Store is the subset of *store.Store the dispatcher needs.
type Store interface {
	InsertEvent(e *store.Event) (int64, error)
	InsertCommand(c *store.Command) (int64, error)
	UpdateSessionStatus(id, status, lastActivity string) error
	UpdateSessionSummary(id, summary string) error
	GetSession(id string) (*store.Session, error)
	ListSessions(activeOnly bool) ([]store.Session, error)
}

// Notifier is the subset of *notifier.Notifier the dispatcher needs.
type Notifier interface {
	SendImmediate(ctx context.Context, ev notifier.Event) error
	Send(ctx context.Context, ev notifier.Event, now time.Time)
}

// Summarizer is the subset of *aiadapter.Adapter the dispatcher needs.
type Summarizer interface {
	Summarize(ctx context.Context, text string) string
	Suggest(ctx context.Context, text string) []aiadapter.Suggestion
	ParseNL(ctx context.Context, message string, sessions []string, lastPrompt string) aiadapter.ParsedCommand
}

// TokenTracker is the subset of *tokenestimator.Estimator the dispatcher
// needs.
type TokenTracker interface {
	Observe(sessionID string, tier tokenestimator.Tier, numNewLines int)
}

// AutoResponder is the subset of *autoresponder.Responder the dispatcher
// needs.
type AutoResponder interface {
	Decide(ctx context.Context, promptText string) (autoresponder.Decision, error)
	Apply(ctx context.Context, sessionID string, adapter paneadapter.Adapter, dec autoresponder.Decision) error
}

// RuleStore is the subset of *store.Store needed by the auto-rule
// management methods (CreateAutoRule/ToggleAutoRule/DeleteAutoRule). It is
// a separate, narrower interface from Store so that existing Store
// implementations/fakes that predate rule management keep compiling.
type RuleStore interface {
	InsertAutoRule(r *store.AutoRule) (int64, error)
	SetAutoRuleEnabled(id int64, enabled bool) error
	DeleteAutoRule(id int64) error
}

// Dispatcher wires a classified detection to every downstream component.
type Dispatcher struct {
	store      Store
	notify     Notifier
	ai         Summarizer
	tokens     TokenTracker
	responder  AutoResponder
	panes      func(sessionID string) (paneadapter.Adapter, bool)
	sessionTier func(sessionID string) tokenestimator.Tier

	confirm *confirmation.Manager
	rules   RuleStore

	mu             sync.Mutex
	lastPrompting  string
	lastPromptedAt time.Time
}

// SetConfirmation wires the confirmation manager backing ConfirmAction and
// CancelConfirmation. Left unset, those methods are no-ops that report
// failure rather than panicking.
func (d *Dispatcher) SetConfirmation(m *confirmation.Manager) { d.confirm = m }

// SetRuleStore wires the store used by CreateAutoRule/ToggleAutoRule/
// DeleteAutoRule.
func (d *Dispatcher) SetRuleStore(r RuleStore) { d.rules = r }

// PauseSession marks a session paused, honored by the monitor's slower poll
// interval and the auto-responder's paused guard.
func (d *Dispatcher) PauseSession(id string) error {
	if err := d.store.UpdateSessionStatus(id, "paused", nowRFC3339()); err != nil {
		return fmt.Errorf("pause session: %w", err)
	}
	return nil
}

// ResumeSession marks a paused session running again.
func (d *Dispatcher) ResumeSession(id string) error {
	if err := d.store.UpdateSessionStatus(id, "running", nowRFC3339()); err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	return nil
}

// ConfirmAction consumes a pending destructive-action confirmation,
// reporting whether one was pending and unexpired.
func (d *Dispatcher) ConfirmAction(user, action, target string) bool {
	if d.confirm == nil {
		return false
	}
	return d.confirm.Confirm(user, action, target)
}

// CancelConfirmation removes a pending confirmation unconditionally.
func (d *Dispatcher) CancelConfirmation(user, action, target string) {
	if d.confirm != nil {
		d.confirm.Cancel(user, action, target)
	}
}

// RequestConfirmation records a new pending destructive-action
// confirmation with the given time-to-live.
func (d *Dispatcher) RequestConfirmation(user, action, target string, ttl time.Duration) {
	if d.confirm != nil {
		d.confirm.Request(user, action, target, ttl)
	}
}

// CreateAutoRule validates matchType and, for regex rules, the pattern's
// compilability, before inserting the rule.
func (d *Dispatcher) CreateAutoRule(pattern, response, matchType string) (int64, error) {
	if d.rules == nil {
		return 0, fmt.Errorf("auto-rule store is not wired")
	}
	if pattern == "" || response == "" {
		return 0, fmt.Errorf("pattern and response are required")
	}
	switch matchType {
	case "exact", "contains":
	case "regex":
		if _, err := regexp.Compile(pattern); err != nil {
			return 0, fmt.Errorf("invalid regex pattern: %w", err)
		}
	default:
		return 0, fmt.Errorf("match_type must be one of exact|contains|regex, got %q", matchType)
	}
	id, err := d.rules.InsertAutoRule(&store.AutoRule{Pattern: pattern, Response: response, MatchType: matchType, Enabled: true})
	if err != nil {
		return 0, fmt.Errorf("create auto-rule: %w", err)
	}
	return id, nil
}

// ToggleAutoRule enables or disables an existing rule.
func (d *Dispatcher) ToggleAutoRule(id int64, enabled bool) error {
	if d.rules == nil {
		return fmt.Errorf("auto-rule store is not wired")
	}
	if err := d.rules.SetAutoRuleEnabled(id, enabled); err != nil {
		return fmt.Errorf("toggle auto-rule: %w", err)
	}
	return nil
}

// DeleteAutoRule removes a rule permanently.
func (d *Dispatcher) DeleteAutoRule(id int64) error {
	if d.rules == nil {
		return fmt.Errorf("auto-rule store is not wired")
	}
	if err := d.rules.DeleteAutoRule(id); err != nil {
		return fmt.Errorf("delete auto-rule: %w", err)
	}
	return nil
}

// New creates a Dispatcher. panes resolves a session's live pane adapter;
// sessionTier resolves a session's plan tier for token accounting.
func New(s Store, n Notifier, ai Summarizer, tokens TokenTracker, responder AutoResponder,
	panes func(sessionID string) (paneadapter.Adapter, bool),
	sessionTier func(sessionID string) tokenestimator.Tier,
) *Dispatcher {
	return &Dispatcher{store: s, notify: n, ai: ai, tokens: tokens, responder: responder, panes: panes, sessionTier: sessionTier}
}

// HandleDetection processes one classified pane event, dispatching to the
// handler for its classifier type.
func (d *Dispatcher) HandleDetection(ctx context.Context, ev monitor.DetectionEvent) error {
	text := strings.Join(ev.NewLines, "\n")

	switch ev.Result.Type {
	case classifier.TypePermissionPrompt:
		d.rememberPrompting(ev.SessionID)
		if err := d.recordEvent(ev.SessionID, notifier.EventInputRequired, text); err != nil {
			return err
		}
		kb := permissionKeyboard()
		return d.notify.SendImmediate(ctx, notifier.Event{SessionID: ev.SessionID, Kind: notifier.EventInputRequired, Message: text, Keyboard: &kb})

	case classifier.TypeInputPrompt:
		handled, err := d.tryAutoRespond(ctx, ev.SessionID, text)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
		d.rememberPrompting(ev.SessionID)
		if err := d.recordEvent(ev.SessionID, notifier.EventInputRequired, text); err != nil {
			return err
		}
		kb := inputPromptKeyboard(text)
		return d.notify.SendImmediate(ctx, notifier.Event{SessionID: ev.SessionID, Kind: notifier.EventInputRequired, Message: text, Keyboard: &kb})

	case classifier.TypeRateLimit:
		if err := d.store.UpdateSessionStatus(ev.SessionID, "rate-limited", nowRFC3339()); err != nil {
			return fmt.Errorf("mark session rate-limited: %w", err)
		}
		if pane, ok := d.panes(ev.SessionID); ok {
			if interrupter, ok := pane.(paneadapter.Interrupter); ok {
				_ = interrupter.Interrupt(ctx) // best-effort auto-pause signal
			}
		}
		if err := d.recordEvent(ev.SessionID, notifier.EventRateLimit, text); err != nil {
			return err
		}
		kb := rateLimitKeyboard()
		return d.notify.SendImmediate(ctx, notifier.Event{SessionID: ev.SessionID, Kind: notifier.EventRateLimit, Message: text, Keyboard: &kb})

	case classifier.TypeError:
		if err := d.recordEvent(ev.SessionID, notifier.EventError, text); err != nil {
			return err
		}
		return d.notify.SendImmediate(ctx, notifier.Event{SessionID: ev.SessionID, Kind: notifier.EventError, Message: text})

	case classifier.TypeCompletion:
		return d.handleCompletion(ctx, ev)

	default:
		return nil
	}
}

// tryAutoRespond consults the auto-responder for an input-prompt
// classification before falling back to a notification. It reports
// handled=true when the auto-responder sent a reply into the pane, in
// which case the caller must not also emit an input-required notification.
func (d *Dispatcher) tryAutoRespond(ctx context.Context, sessionID, text string) (bool, error) {
	if d.responder == nil {
		return false, nil
	}
	dec, err := d.responder.Decide(ctx, text)
	if err != nil {
		return false, fmt.Errorf("auto-responder decide: %w", err)
	}
	if !dec.Respond {
		return false, nil
	}
	pane, ok := d.panes(sessionID)
	if !ok {
		return false, nil
	}
	if err := d.responder.Apply(ctx, sessionID, pane, dec); err != nil {
		return false, fmt.Errorf("auto-responder apply: %w", err)
	}

	ruleID := dec.RuleID
	ctxStr := strconv.FormatInt(ruleID, 10)
	if _, err := d.store.InsertCommand(&store.Command{
		SessionID: sessionID,
		Source:    "auto",
		Input:     dec.Response,
		Context:   &ctxStr,
		Timestamp: nowRFC3339(),
	}); err != nil {
		return false, fmt.Errorf("record auto-response command: %w", err)
	}
	if err := d.recordEvent(sessionID, notifier.EventAutoResponse, fmt.Sprintf("auto-replied %q (rule #%d)", dec.Response, ruleID)); err != nil {
		return false, err
	}
	d.notify.Send(ctx, notifier.Event{SessionID: sessionID, Kind: notifier.EventAutoResponse, Message: fmt.Sprintf("Auto-replied %q", dec.Response)}, time.Now())
	return true, nil
}

func (d *Dispatcher) handleCompletion(ctx context.Context, ev monitor.DetectionEvent) error {
	text := strings.Join(ev.NewLines, "\n")
	summary := d.ai.Summarize(ctx, text)
	suggestions := d.ai.Suggest(ctx, text)

	if err := d.store.UpdateSessionSummary(ev.SessionID, summary); err != nil {
		return fmt.Errorf("update session summary: %w", err)
	}
	tier := tokenestimator.TierPro
	if d.sessionTier != nil {
		tier = d.sessionTier(ev.SessionID)
	}
	d.tokens.Observe(ev.SessionID, tier, len(ev.NewLines))

	kb := suggestionKeyboard(suggestions)
	d.notify.Send(ctx, notifier.Event{SessionID: ev.SessionID, Kind: notifier.EventCompleted, Message: summary, Keyboard: &kb}, time.Now())
	return nil
}

func (d *Dispatcher) recordEvent(sessionID string, kind notifier.EventKind, message string) error {
	_, err := d.store.InsertEvent(&store.Event{SessionID: sessionID, EventType: string(kind), Message: message})
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (d *Dispatcher) rememberPrompting(sessionID string) {
	d.mu.Lock()
	d.lastPrompting = sessionID
	d.lastPromptedAt = time.Now()
	d.mu.Unlock()
}

// lastPromptingSessionMaxAge bounds how long a prior prompt counts toward
// ambiguous-message resolution.
const lastPromptingSessionMaxAge = 60 * time.Second

var replyLikePattern = regexp.MustCompile(`(?i)^\s*(y|yes|n|no|a|always|\d+)\s*$`)

// SessionRef is the minimal identity needed to resolve a user message to a
// session.
type SessionRef struct {
	ID     string
	Number int
	Alias  string
}

// ResolveSession implements the five-step ambiguous-session resolution
// priority order for a free-text user message.
func (d *Dispatcher) ResolveSession(ctx context.Context, message string, active []SessionRef) (string, bool) {
	d.mu.Lock()
	lastID, lastAt := d.lastPrompting, d.lastPromptedAt
	d.mu.Unlock()

	trimmed := strings.TrimSpace(message)

	// 1. Last prompting session, if recent and the message reads as a reply.
	if lastID != "" && time.Since(lastAt) <= lastPromptingSessionMaxAge && replyLikePattern.MatchString(trimmed) {
		return lastID, true
	}

	// 2. Explicit #N or alias substring.
	if strings.HasPrefix(trimmed, "#") {
		if n, err := strconv.Atoi(trimmed[1:]); err == nil {
			for _, s := range active {
				if s.Number == n {
					return s.ID, true
				}
			}
		}
	}
	lowerMsg := strings.ToLower(trimmed)
	for _, s := range active {
		if s.Alias != "" && strings.Contains(lowerMsg, strings.ToLower(s.Alias)) {
			return s.ID, true
		}
	}

	// 3. Exactly one active session.
	if len(active) == 1 {
		return active[0].ID, true
	}

	// 4. Ask the AI adapter for a guess, accepted only above confidence 0.8.
	if d.ai != nil {
		names := make([]string, len(active))
		for i, s := range active {
			names[i] = fmt.Sprintf("#%d %s", s.Number, s.Alias)
		}
		guess := d.ai.ParseNL(ctx, message, names, "")
		if !guess.Unknown && guess.Confidence > 0.8 && guess.Session != "" {
			for _, s := range active {
				if s.Alias == guess.Session || strconv.Itoa(s.Number) == guess.Session {
					return s.ID, true
				}
			}
		}
	}

	// 5. Caller must ask the user to pick.
	return "", false
}

func permissionKeyboard() platform.Keyboard {
	return platform.Keyboard{Buttons: []platform.Button{
		{Label: "Allow", Data: "perm:allow"},
		{Label: "Deny", Data: "perm:deny"},
		{Label: "Show context", Data: "perm:context"},
	}}
}

func rateLimitKeyboard() platform.Keyboard {
	return platform.Keyboard{Buttons: []platform.Button{
		{Label: "Resume now", Data: "rate:resume"},
		{Label: "Auto-resume in 15m", Data: "rate:resume15"},
		{Label: "Switch task", Data: "rate:switch"},
	}}
}

// inputPromptKeyboard synthesizes numbered-choice buttons from lines that
// look like "1) foo" / "2. bar", falling back to a plain yes/no pair when
// no numbered choices are detected.
var numberedChoicePattern = regexp.MustCompile(`(?m)^\s*(\d+)[).]\s+(.+)$`)

func inputPromptKeyboard(text string) platform.Keyboard {
	matches := numberedChoicePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return platform.Keyboard{Buttons: []platform.Button{
			{Label: "Yes", Data: "pick:y"},
			{Label: "No", Data: "pick:n"},
		}}
	}
	var buttons []platform.Button
	for _, m := range matches {
		buttons = append(buttons, platform.Button{Label: m[2], Data: "pick:" + m[1]})
	}
	return platform.Keyboard{Buttons: buttons}
}

func suggestionKeyboard(suggestions []aiadapter.Suggestion) platform.Keyboard {
	var buttons []platform.Button
	for i, s := range suggestions {
		buttons = append(buttons, platform.Button{Label: s.Label, Data: fmt.Sprintf("suggest:%d", i)})
	}
	buttons = append(buttons, platform.Button{Label: "Undo", Data: "undo:last"})
	return platform.Keyboard{Buttons: buttons}
}

func nowRFC3339() string { return time.Now().Format(time.RFC3339) }
