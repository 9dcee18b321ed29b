package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joestump/conductor/internal/platform"
	"github.com/joestump/conductor/internal/redact"
)

var errSendFailed = errors.New("send failed")

type fakePlatform struct {
	mu       sync.Mutex
	sent     []string
	fail     bool
	pingFail bool
}

func (f *fakePlatform) Name() string { return "fake" }

func (f *fakePlatform) Send(ctx context.Context, msg platform.OutboundMessage) (platform.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return platform.SendResult{}, errSendFailed
	}
	f.sent = append(f.sent, msg.Text)
	return platform.SendResult{MessageID: "m1"}, nil
}

func (f *fakePlatform) Ping(ctx context.Context) error {
	if f.pingFail {
		return errSendFailed
	}
	return nil
}

func (f *fakePlatform) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func fastConfig() Config {
	c := DefaultConfig()
	c.BatchWindow = 20 * time.Millisecond
	c.RetryBase = time.Millisecond
	c.RetryMax = 5 * time.Millisecond
	return c
}

func TestSendImmediateDelivers(t *testing.T) {
	p := &fakePlatform{}
	n := New(p, redact.New(nil), fastConfig())
	if err := n.SendImmediate(context.Background(), Event{Kind: EventError, Message: "boom"}); err != nil {
		t.Fatalf("SendImmediate: %v", err)
	}
	if got := p.sentMessages(); len(got) != 1 || got[0] != "boom" {
		t.Fatalf("expected [boom], got %v", got)
	}
}

func TestSendImmediateFailureEnqueuesOffline(t *testing.T) {
	p := &fakePlatform{fail: true}
	n := New(p, redact.New(nil), fastConfig())
	if err := n.SendImmediate(context.Background(), Event{Kind: EventError, Message: "boom"}); err == nil {
		t.Fatal("expected an error when the platform send fails")
	}
	if n.OfflineLen() != 1 {
		t.Fatalf("expected 1 queued event, got %d", n.OfflineLen())
	}
}

func TestSendBatchesAndFlushes(t *testing.T) {
	p := &fakePlatform{}
	n := New(p, redact.New(nil), fastConfig())
	n.Send(context.Background(), Event{Kind: EventCompleted, Message: "one"}, time.Now())
	n.Send(context.Background(), Event{Kind: EventCompleted, Message: "two"}, time.Now())

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(p.sentMessages()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := p.sentMessages()
	if len(got) != 1 {
		t.Fatalf("expected a single flushed message, got %v", got)
	}
	if got[0] != "one\n---\ntwo" {
		t.Fatalf("expected concatenated batch, got %q", got[0])
	}
}

func TestSendDropsCompletionDuringQuietHours(t *testing.T) {
	p := &fakePlatform{}
	cfg := fastConfig()
	cfg.QuietHours = QuietHours{Enabled: true, Start: "00:00", End: "23:59"}
	n := New(p, redact.New(nil), cfg)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n.Send(context.Background(), Event{Kind: EventCompleted, Message: "should be dropped"}, now)

	time.Sleep(50 * time.Millisecond)
	if len(p.sentMessages()) != 0 {
		t.Fatalf("expected quiet-hours completion event to be dropped, got %v", p.sentMessages())
	}
}

func TestQuietHoursWrapsMidnight(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "22:00", End: "07:00"}
	late := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	mid := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if !q.active(late) || !q.active(early) {
		t.Fatal("expected quiet hours to be active across the midnight wrap")
	}
	if q.active(mid) {
		t.Fatal("expected quiet hours to be inactive at noon")
	}
}

func TestRunLivenessCheckerDrainsOfflineQueue(t *testing.T) {
	p := &fakePlatform{fail: true}
	cfg := fastConfig()
	cfg.LivenessPeriod = 10 * time.Millisecond
	n := New(p, redact.New(nil), cfg)

	n.SendImmediate(context.Background(), Event{Kind: EventError, Message: "queued"})
	if n.OfflineLen() != 1 {
		t.Fatalf("expected the failed send to be queued, got %d", n.OfflineLen())
	}

	p.mu.Lock()
	p.fail = false
	p.mu.Unlock()

	done := make(chan struct{})
	go n.RunLivenessChecker(context.Background(), done)
	defer close(done)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if n.OfflineLen() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n.OfflineLen() != 0 {
		t.Fatal("expected the offline queue to drain once the platform recovers")
	}
	if len(p.sentMessages()) != 1 {
		t.Fatalf("expected the queued message to be delivered, got %v", p.sentMessages())
	}
}

func TestIsUrgent(t *testing.T) {
	cases := map[EventKind]bool{
		EventInputRequired: true,
		EventError:         true,
		EventRateLimit:     true,
		EventCompleted:     false,
		EventAutoResponse:  false,
		EventTokenWarning:  false,
		EventSystem:        false,
	}
	for kind, want := range cases {
		if got := IsUrgent(kind); got != want {
			t.Errorf("IsUrgent(%s) = %v, want %v", kind, got, want)
		}
	}
}

func TestErrorEscalatorFiresAtThreshold(t *testing.T) {
	e := NewErrorEscalator(time.Minute)
	now := time.Now()
	fired := false
	for i := 0; i < 5; i++ {
		if e.Record("transport-unreachable", now, 5) {
			fired = true
		}
	}
	if !fired {
		t.Fatal("expected escalation to fire at the 5th occurrence")
	}
}

func TestReportErrorSendsOneSystemAlertPerWindow(t *testing.T) {
	fp := &fakePlatform{}
	n := New(fp, redact.New(nil), DefaultConfig())

	for i := 0; i < errorEscalationThreshold; i++ {
		n.ReportError(context.Background(), "transport-unreachable")
	}
	fp.mu.Lock()
	sent := len(fp.sent)
	fp.mu.Unlock()
	if sent != 1 {
		t.Fatalf("expected exactly 1 escalation alert, got %d", sent)
	}

	// Further occurrences below the next threshold send nothing more.
	n.ReportError(context.Background(), "transport-unreachable")
	fp.mu.Lock()
	sent = len(fp.sent)
	fp.mu.Unlock()
	if sent != 1 {
		t.Fatalf("expected no additional alert before the next threshold, got %d", sent)
	}
}

func TestErrorEscalatorResetsWindow(t *testing.T) {
	e := NewErrorEscalator(10 * time.Millisecond)
	now := time.Now()
	e.Record("auth-denied", now, 5)
	if e.Record("auth-denied", now.Add(20*time.Millisecond), 5) {
		t.Fatal("expected count to reset once the window elapses")
	}
}
