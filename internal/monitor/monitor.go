// Package monitor implements the Pane Monitor: one polling control
// loop per session, adaptively timed between active and idle states, that
// turns raw pane captures into classified dispatch events.
package monitor

import (
	"context"
	"time"

	"github.com/joestump/conductor/internal/classifier"
	"github.com/joestump/conductor/internal/outputbuffer"
	"github.com/joestump/conductor/internal/paneadapter"
)

// State is the monitor's own lifecycle state, distinct from the Session's
// persisted status.
type State string

const (
	StateStarting State = "starting"
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateEnding   State = "ending"
)

// Poll intervals, adaptively selected by how recently the pane produced
// new output.
const (
	PollActive      = 300 * time.Millisecond
	PollDefault     = 500 * time.Millisecond
	PollLongIdle    = 2 * time.Second
	PollPaused      = 5 * time.Second
	LongIdleAfter   = 5 * time.Minute
	CompletionAfter = 30 * time.Second
)

// DetectionEvent is what a Monitor emits onto the dispatcher channel:
// either a real classification, or a synthetic completion-candidate fired
// after a long enough idle period following activity.
type DetectionEvent struct {
	SessionID string
	Result    classifier.Result
	NewLines  []string
	Synthetic bool
}

// Monitor polls one pane, classifying new output and reporting state
// transitions and detections on Events.
type Monitor struct {
	SessionID  string
	adapter    paneadapter.Adapter
	buffer     *outputbuffer.Buffer
	classifier *classifier.Classifier

	Events chan<- DetectionEvent

	state        State
	idleSince    time.Time
	wasActive    bool
	firedSynth   bool
	maxLines     int
	pausedFunc   func() bool
}

// New creates a Monitor for one session's pane. pausedFunc, if non-nil, is
// polled each cycle to honor the session's paused status with the slower
// PollPaused interval.
func New(sessionID string, adapter paneadapter.Adapter, buf *outputbuffer.Buffer, c *classifier.Classifier, events chan<- DetectionEvent, pausedFunc func() bool) *Monitor {
	return &Monitor{
		SessionID:  sessionID,
		adapter:    adapter,
		buffer:     buf,
		classifier: c,
		Events:     events,
		state:      StateStarting,
		maxLines:   500,
		pausedFunc: pausedFunc,
	}
}

// State reports the monitor's current lifecycle state.
func (m *Monitor) State() State { return m.state }

// Run blocks, polling until ctx is canceled or the pane is lost.
func (m *Monitor) Run(ctx context.Context) {
	m.state = StateIdle
	m.idleSince = time.Now()

	for {
		select {
		case <-ctx.Done():
			m.state = StateEnding
			return
		default:
		}

		if !m.adapter.Alive(ctx) {
			m.state = StateEnding
			return
		}

		interval := m.nextInterval()
		m.tick(ctx)

		select {
		case <-ctx.Done():
			m.state = StateEnding
			return
		case <-time.After(interval):
		}
	}
}

func (m *Monitor) nextInterval() time.Duration {
	if m.pausedFunc != nil && m.pausedFunc() {
		return PollPaused
	}
	if m.state == StateActive {
		return PollActive
	}
	if time.Since(m.idleSince) >= LongIdleAfter {
		return PollLongIdle
	}
	return PollDefault
}

// tick runs one capture/classify cycle.
func (m *Monitor) tick(ctx context.Context) {
	captured, err := m.adapter.CaptureRecent(ctx, m.maxLines)
	if err != nil {
		m.state = StateEnding
		return
	}

	newLines := m.buffer.Process(captured)
	if len(newLines) > 0 {
		m.wasActive = true
		m.firedSynth = false
		m.state = StateActive
		m.idleSince = time.Now()

		text := joinLines(newLines)
		result := m.classifier.Classify(text)
		m.emit(DetectionEvent{SessionID: m.SessionID, Result: result, NewLines: newLines})
		return
	}

	// No new output this cycle.
	if m.state == StateActive {
		m.state = StateIdle
		m.idleSince = time.Now()
	}
	m.checkSynthetic()
}

// checkSynthetic emits a synthetic completion-candidate once a
// previously-active pane has been idle for at least CompletionAfter.
func (m *Monitor) checkSynthetic() {
	if m.wasActive && !m.firedSynth && time.Since(m.idleSince) >= CompletionAfter {
		m.firedSynth = true
		m.wasActive = false
		m.emit(DetectionEvent{
			SessionID: m.SessionID,
			Result:    classifier.Result{Type: classifier.TypeCompletion, Confidence: 1},
			Synthetic: true,
		})
	}
}

func (m *Monitor) emit(ev DetectionEvent) {
	select {
	case m.Events <- ev:
	default:
		// Dispatcher channel is full; dropping a detection is preferable
		// to blocking the monitor loop and starving every other pane.
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
