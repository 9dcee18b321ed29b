package autoresponder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joestump/conductor/internal/classifier"
)

type fakeRules struct {
	mu   sync.Mutex
	list []Rule
	hits map[int64]int
}

func (f *fakeRules) EnabledRules(ctx context.Context) ([]Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Rule(nil), f.list...), nil
}

func (f *fakeRules) IncrementHitCount(ctx context.Context, ruleID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hits == nil {
		f.hits = make(map[int64]int)
	}
	f.hits[ruleID]++
}

type fakeAdapter struct {
	sent        []string
	interrupted bool
	noInterrupt bool
}

func (f *fakeAdapter) CaptureRecent(ctx context.Context, maxLines int) ([]string, error) {
	return nil, nil
}
func (f *fakeAdapter) Send(ctx context.Context, text string, pressEnter bool) error {
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeAdapter) Alive(ctx context.Context) bool { return true }

type interruptibleAdapter struct{ fakeAdapter }

func (f *interruptibleAdapter) Interrupt(ctx context.Context) error {
	f.interrupted = true
	return nil
}

func TestDecideBlocksPermissionPrompt(t *testing.T) {
	r := New(classifier.New(), &fakeRules{}, nil, 0)
	dec, err := r.Decide(context.Background(), "Claude wants to run: rm -rf x\nAllow? (y/n/a)")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Respond || dec.Reason != ReasonPermissionPrompt {
		t.Fatalf("expected permission-prompt block, got %+v", dec)
	}
}

func TestDecideBlocksDestructiveKeyword(t *testing.T) {
	rules := &fakeRules{list: []Rule{{ID: 1, Pattern: "delete", MatchType: MatchContains, Response: "y", Enabled: true}}}
	r := New(classifier.New(), rules, nil, 0)
	dec, err := r.Decide(context.Background(), "Really delete the database?")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Respond || dec.Reason != ReasonDestructiveKeyword {
		t.Fatalf("expected destructive-keyword block even though a rule matches, got %+v", dec)
	}
}

func TestDecideBlocksWhenPaused(t *testing.T) {
	r := New(classifier.New(), &fakeRules{}, func() bool { return true }, 0)
	dec, err := r.Decide(context.Background(), "innocuous prompt")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Respond || dec.Reason != ReasonPaused {
		t.Fatalf("expected paused block, got %+v", dec)
	}
}

func TestDecideFirstRuleWins(t *testing.T) {
	rules := &fakeRules{list: []Rule{
		{ID: 1, Pattern: "proceed", MatchType: MatchContains, Response: "yes", Enabled: true},
		{ID: 2, Pattern: "proceed", MatchType: MatchContains, Response: "no", Enabled: true},
	}}
	r := New(classifier.New(), rules, nil, 0)
	dec, err := r.Decide(context.Background(), "Should I proceed?")
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Respond || dec.Response != "yes" || dec.RuleID != 1 {
		t.Fatalf("expected first rule to win, got %+v", dec)
	}
	if rules.hits[1] != 1 {
		t.Fatalf("expected rule 1's hit count incremented, got %d", rules.hits[1])
	}
}

func TestDecideNoRuleMatches(t *testing.T) {
	rules := &fakeRules{list: []Rule{{ID: 1, Pattern: "xyz", MatchType: MatchExact, Response: "y", Enabled: true}}}
	r := New(classifier.New(), rules, nil, 0)
	dec, err := r.Decide(context.Background(), "something unrelated")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Respond || dec.Reason != ReasonNoRule {
		t.Fatalf("expected no-rule result, got %+v", dec)
	}
}

func TestApplySendsAndOpensUndoWindow(t *testing.T) {
	r := New(classifier.New(), &fakeRules{}, nil, time.Minute)
	a := &interruptibleAdapter{}
	dec := Decision{Respond: true, Response: "y", Reason: ReasonMatched, RuleID: 1}
	if err := r.Apply(context.Background(), "s1", a, dec); err != nil {
		t.Fatal(err)
	}
	if len(a.sent) != 1 || a.sent[0] != "y" {
		t.Fatalf("expected response sent, got %v", a.sent)
	}

	ok, err := r.Undo(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !a.interrupted {
		t.Fatal("expected undo to interrupt the pane")
	}
}

func TestUndoExpiresAfterTTL(t *testing.T) {
	r := New(classifier.New(), &fakeRules{}, nil, time.Millisecond)
	a := &interruptibleAdapter{}
	dec := Decision{Respond: true, Response: "y", Reason: ReasonMatched}
	if err := r.Apply(context.Background(), "s1", a, dec); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	ok, err := r.Undo(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if ok || a.interrupted {
		t.Fatal("expected undo to fail once the TTL has elapsed")
	}
}

func TestUndoUnknownSessionFails(t *testing.T) {
	r := New(classifier.New(), &fakeRules{}, nil, time.Minute)
	ok, err := r.Undo(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected undo for an unknown session to fail")
	}
}

func TestUndoFailsWithoutInterrupter(t *testing.T) {
	r := New(classifier.New(), &fakeRules{}, nil, time.Minute)
	a := &fakeAdapter{}
	dec := Decision{Respond: true, Response: "y"}
	if err := r.Apply(context.Background(), "s1", a, dec); err != nil {
		t.Fatal(err)
	}
	_, err := r.Undo(context.Background(), "s1")
	if err == nil {
		t.Fatal("expected an error undoing through an adapter with no Interrupt support")
	}
}
