// Package autoresponder implements the Auto-Responder: an ordered
// set of hard-block guards followed by first-match rule evaluation, plus a
// time-limited undo affordance built on the pane adapter's interrupt
// signal.
package autoresponder

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/joestump/conductor/internal/classifier"
	"github.com/joestump/conductor/internal/paneadapter"
)

// MatchType is an AutoRule's pattern-matching mode.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// Rule is the subset of a stored AutoRule needed to evaluate a decision.
type Rule struct {
	ID        int64
	Pattern   string
	Response  string
	MatchType MatchType
	Enabled   bool
}

// matches reports whether text satisfies the rule's pattern under its
// match type. Regex patterns are expected to have already been validated
// (compiled) at rule-creation time by the store.
func (r Rule) matches(text string) bool {
	switch r.MatchType {
	case MatchExact:
		return strings.TrimSpace(text) == strings.TrimSpace(r.Pattern)
	case MatchContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(r.Pattern))
	case MatchRegex:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	default:
		return false
	}
}

// Reason names why Decide did or didn't respond.
type Reason string

const (
	ReasonMatched            Reason = "matched"
	ReasonPermissionPrompt   Reason = "permission-prompt"
	ReasonDestructiveKeyword Reason = "destructive-keyword"
	ReasonPaused             Reason = "paused"
	ReasonNoRule             Reason = "no rule"
)

// Decision is the outcome of Decide.
type Decision struct {
	Respond  bool
	Response string
	Reason   Reason
	RuleID   int64
}

// RuleSource supplies the enabled rules, in ascending id order, and records
// hits. It is satisfied by the store.
type RuleSource interface {
	EnabledRules(ctx context.Context) ([]Rule, error)
	IncrementHitCount(ctx context.Context, ruleID int64)
}

// Responder decides whether and how to auto-respond to a classified
// prompt, and manages the undo window for responses it sends.
type Responder struct {
	classifier *classifier.Classifier
	rules      RuleSource
	paused     func() bool
	undoTTL    time.Duration

	mu    sync.Mutex
	undos map[string]undoEntry // keyed by session id
}

type undoEntry struct {
	deadline time.Time
	adapter  paneadapter.Adapter
}

// New creates a Responder. paused reports the auto-responder's global
// pause flag; undoTTL defaults to 30s when <= 0.
func New(c *classifier.Classifier, rules RuleSource, paused func() bool, undoTTL time.Duration) *Responder {
	if undoTTL <= 0 {
		undoTTL = 30 * time.Second
	}
	return &Responder{
		classifier: c,
		rules:      rules,
		paused:     paused,
		undoTTL:    undoTTL,
		undos:      make(map[string]undoEntry),
	}
}

// Decide evaluates promptText against the hard-block guards and, if none
// fire, the enabled rules in id order. It does not send anything — callers
// apply the decision via Apply.
func (r *Responder) Decide(ctx context.Context, promptText string) (Decision, error) {
	result := r.classifier.Classify(promptText)
	if result.Type == classifier.TypePermissionPrompt {
		return Decision{Reason: ReasonPermissionPrompt}, nil
	}
	if r.classifier.HasDestructiveKeyword(promptText) {
		return Decision{Reason: ReasonDestructiveKeyword}, nil
	}
	if r.paused != nil && r.paused() {
		return Decision{Reason: ReasonPaused}, nil
	}

	rules, err := r.rules.EnabledRules(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("load auto-rules: %w", err)
	}
	for _, rule := range rules {
		if rule.matches(promptText) {
			r.rules.IncrementHitCount(ctx, rule.ID)
			return Decision{Respond: true, Response: rule.Response, Reason: ReasonMatched, RuleID: rule.ID}, nil
		}
	}
	return Decision{Reason: ReasonNoRule}, nil
}

// Apply sends dec.Response into the pane (if Respond is true) and opens an
// undo window for sessionID bound to adapter.
func (r *Responder) Apply(ctx context.Context, sessionID string, adapter paneadapter.Adapter, dec Decision) error {
	if !dec.Respond {
		return nil
	}
	if err := adapter.Send(ctx, dec.Response, true); err != nil {
		return fmt.Errorf("send auto-response: %w", err)
	}

	r.mu.Lock()
	r.undos[sessionID] = undoEntry{deadline: time.Now().Add(r.undoTTL), adapter: adapter}
	r.mu.Unlock()
	return nil
}

// Undo activates the undo affordance for sessionID, if it is still within
// its window: it sends an interrupt and consumes the window. It reports
// false if there is nothing to undo or the window has expired, or if the
// adapter cannot interrupt.
func (r *Responder) Undo(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	entry, ok := r.undos[sessionID]
	if ok {
		delete(r.undos, sessionID)
	}
	r.mu.Unlock()

	if !ok || time.Now().After(entry.deadline) {
		return false, nil
	}
	interrupter, ok := entry.adapter.(paneadapter.Interrupter)
	if !ok {
		return false, fmt.Errorf("pane adapter does not support interrupt")
	}
	if err := interrupter.Interrupt(ctx); err != nil {
		return false, fmt.Errorf("interrupt pane: %w", err)
	}
	return true, nil
}
