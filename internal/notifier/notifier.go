// Package notifier implements the Notifier: redaction-gated,
// batching delivery to the single configured chat platform, with an
// offline queue and liveness-probed recovery when the platform is
// unreachable. Retry backoff uses an exponential-backoff library rather
// than a hand-rolled loop.
package notifier

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/joestump/conductor/internal/platform"
	"github.com/joestump/conductor/internal/redact"
)

// EventKind is the Event data-model's type enumeration.
type EventKind string

const (
	EventInputRequired EventKind = "input-required"
	EventTokenWarning  EventKind = "token-warning"
	EventError         EventKind = "error"
	EventCompleted     EventKind = "completed"
	EventRateLimit     EventKind = "rate-limit"
	EventAutoResponse  EventKind = "auto-response"
	EventSystem        EventKind = "system"
)

// Event is one notification to deliver (or batch) for a session.
type Event struct {
	SessionID string
	Kind      EventKind
	Message   string
	Keyboard  *platform.Keyboard
}

// QuietHours describes a daily delivery-suppression window in HH:MM,
//24-hour local time. Crossing midnight (e.g. 22:00-07:00) is supported.
type QuietHours struct {
	Enabled bool
	Start   string
	End     string
}

func (q QuietHours) active(now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err1 := time.Parse("15:04", q.Start)
	end, err2 := time.Parse("15:04", q.End)
	if err1 != nil || err2 != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()
	if s <= e {
		return cur >= s && cur < e
	}
	return cur >= s || cur < e
}

// Config tunes batching, retry, and liveness behavior.
type Config struct {
	BatchWindow    time.Duration
	LivenessPeriod time.Duration
	QuietHours     QuietHours
	RetryBase      time.Duration
	RetryMax       time.Duration
}

// DefaultConfig matches the preferences-file defaults.
func DefaultConfig() Config {
	return Config{
		BatchWindow:    5 * time.Second,
		LivenessPeriod: 30 * time.Second,
		RetryBase:      time.Second,
		RetryMax:       60 * time.Second,
	}
}

// Notifier batches, redacts, and delivers Events to a single platform
// adapter, queueing offline and draining on recovery.
type Notifier struct {
	cfg      Config
	platform platform.Notifier
	filter   *redact.Filter

	mu      sync.Mutex
	batch   []Event
	offline *list.List // of Event

	flushTimer *time.Timer
	escalator  *errorCounts
}

// New creates a Notifier delivering through p, redacting with filter.
func New(p platform.Notifier, filter *redact.Filter, cfg Config) *Notifier {
	return &Notifier{
		cfg:       cfg,
		platform:  p,
		filter:    filter,
		offline:   list.New(),
		escalator: NewErrorEscalator(5 * time.Minute),
	}
}

// errorEscalationThreshold is the repeat count within one window that
// triggers a single system alert, per kind.
const errorEscalationThreshold = 5

// ReportError records one occurrence of errKind (from the error taxonomy:
// transport-unreachable, transport-throttled, auth-denied, pane-lost,
// store-busy, classifier-miss) and, once that kind has recurred
// errorEscalationThreshold times within the current window, sends a single
// SendImmediate system alert and resets the kind's counter — so a
// pathological failure mode (e.g. a broken AI key) produces one
// notification, not one per attempt.
func (n *Notifier) ReportError(ctx context.Context, errKind string) {
	if n.escalator.Record(errKind, time.Now(), errorEscalationThreshold) {
		_ = n.SendImmediate(ctx, Event{
			Kind:    EventSystem,
			Message: "Repeated failures detected: " + errKind,
		})
	}
}

// urgentKinds must always bypass batching: permission-prompt, error, and
// rate-limit classifier events never wait for the batch window.
var urgentKinds = map[EventKind]bool{
	EventInputRequired: true,
	EventError:         true,
	EventRateLimit:     true,
}

// IsUrgent reports whether kind must be delivered via SendImmediate.
func IsUrgent(kind EventKind) bool { return urgentKinds[kind] }

// SendImmediate redacts and delivers ev without batching, retrying with
// exponential backoff before falling back to the offline queue. It is
// never subject to quiet hours.
func (n *Notifier) SendImmediate(ctx context.Context, ev Event) error {
	ev.Message = n.filter.Redact(ev.Message)
	if err := n.deliverWithBackoff(ctx, ev); err != nil {
		n.enqueueOffline(ev)
		return err
	}
	return nil
}

// Send redacts ev and enqueues it into the batch buffer, subject to quiet
// hours for completion and token-warning kinds.
func (n *Notifier) Send(ctx context.Context, ev Event, now time.Time) {
	if n.cfg.QuietHours.active(now) && (ev.Kind == EventCompleted || ev.Kind == EventTokenWarning) {
		return
	}
	ev.Message = n.filter.Redact(ev.Message)

	n.mu.Lock()
	n.batch = append(n.batch, ev)
	if n.flushTimer == nil {
		n.flushTimer = time.AfterFunc(n.cfg.BatchWindow, func() { n.flush(context.Background()) })
	}
	n.mu.Unlock()
}

// flush delivers the current batch as a single message (concatenated in
// arrival order when there are 2 or more) and resets the timer.
func (n *Notifier) flush(ctx context.Context) {
	n.mu.Lock()
	batch := n.batch
	n.batch = nil
	n.flushTimer = nil
	n.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var msg string
	if len(batch) == 1 {
		msg = batch[0].Message
	} else {
		for i, ev := range batch {
			if i > 0 {
				msg += "\n---\n"
			}
			msg += ev.Message
		}
	}

	combined := Event{SessionID: batch[0].SessionID, Kind: batch[len(batch)-1].Kind, Message: msg}
	if err := n.deliverWithBackoff(ctx, combined); err != nil {
		n.enqueueOffline(combined)
	}
}

// deliverWithBackoff attempts delivery with exponential backoff (1s base,
// doubling, capped at 60s) bounded to a handful of attempts so a single
// send does not block the caller indefinitely.
func (n *Notifier) deliverWithBackoff(ctx context.Context, ev Event) error {
	b := retry.NewExponential(n.cfg.RetryBase)
	b = retry.WithCappedDuration(n.cfg.RetryMax, b)
	b = retry.WithMaxRetries(4, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		_, err := n.platform.Send(ctx, platform.OutboundMessage{Text: ev.Message, Keyboard: ev.Keyboard})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (n *Notifier) enqueueOffline(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline.PushBack(ev)
}

// OfflineLen reports the number of events currently queued for delivery,
// for tests and the dashboard's status view.
func (n *Notifier) OfflineLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offline.Len()
}

// RunLivenessChecker blocks, probing the platform every LivenessPeriod and
// draining the offline queue FIFO with a small inter-message delay on
// success, until done is closed.
func (n *Notifier) RunLivenessChecker(ctx context.Context, done <-chan struct{}) {
	interval := n.cfg.LivenessPeriod
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.platform.Ping(ctx); err == nil {
				n.drainOffline(ctx)
			}
		}
	}
}

func (n *Notifier) drainOffline(ctx context.Context) {
	for {
		n.mu.Lock()
		front := n.offline.Front()
		if front == nil {
			n.mu.Unlock()
			return
		}
		ev := front.Value.(Event)
		n.offline.Remove(front)
		n.mu.Unlock()

		if _, err := n.platform.Send(ctx, platform.OutboundMessage{Text: ev.Message, Keyboard: ev.Keyboard}); err != nil {
			// Put the failed event back at the front, not the back: it was
			// the oldest queued message, and requeuing it behind events
			// that arrived later would break FIFO delivery order across
			// reconnects.
			n.mu.Lock()
			n.offline.PushFront(ev)
			n.mu.Unlock()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// errorCounts implements the Error Escalation counter: a
// process-wide kind→count-in-window map that triggers one system alert
// per kind per window instead of one per occurrence.
type errorCounts struct {
	mu     sync.Mutex
	window time.Duration
	counts map[string]*errorWindow
}

type errorWindow struct {
	count     int
	windowEnd time.Time
}

// NewErrorEscalator creates a counter with the given window (default 5
// minutes) and threshold (default 5).
func NewErrorEscalator(window time.Duration) *errorCounts {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &errorCounts{window: window, counts: make(map[string]*errorWindow)}
}

// Record reports one occurrence of errKind at now, returning true exactly
// once per window when the count reaches the escalation threshold (5).
func (e *errorCounts) Record(errKind string, now time.Time, threshold int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.counts[errKind]
	if !ok || now.After(w.windowEnd) {
		w = &errorWindow{windowEnd: now.Add(e.window)}
		e.counts[errKind] = w
	}
	w.count++
	if w.count >= threshold {
		delete(e.counts, errKind)
		return true
	}
	return false
}
