// Package sleepdetector implements the Sleep Detector: a
// monotonic-clock gap watchdog that fires a wake callback after the host
// has been suspended, so the rest of the system can re-verify which panes
// and processes actually survived.
package sleepdetector

import (
	"time"

	"github.com/mitchellh/go-ps"
)

const (
	// CheckInterval is how often the detector samples the clock.
	CheckInterval = time.Second
	// GapThreshold is the minimum observed wall-clock gap, beyond the
	// expected CheckInterval, that is treated as a host suspension rather
	// than scheduler jitter.
	GapThreshold = 15 * time.Second
)

// Detector watches for clock gaps and invokes onWake when one is found.
type Detector struct {
	now   func() time.Time
	sleep func(time.Duration)

	onWake func(gap time.Duration)
}

// New creates a Detector. onWake is called synchronously from the
// detector's own loop when a gap is found; callers that need to do
// anything beyond a quick health sweep should hand off to another
// goroutine from inside onWake.
func New(onWake func(gap time.Duration)) *Detector {
	return &Detector{
		now:    time.Now,
		sleep:  time.Sleep,
		onWake: onWake,
	}
}

// Run blocks, checking for clock gaps every CheckInterval until done is
// closed.
func (d *Detector) Run(done <-chan struct{}) {
	last := d.now()
	for {
		select {
		case <-done:
			return
		default:
		}
		d.sleep(CheckInterval)
		select {
		case <-done:
			return
		default:
		}
		now := d.now()
		gap := now.Sub(last)
		last = now
		if gap > CheckInterval+GapThreshold {
			if d.onWake != nil {
				d.onWake(gap)
			}
		}
	}
}

// PIDAlive reports whether pid still identifies a running process,
// cross-platform, via go-ps rather than a raw signal-0 check.
func PIDAlive(pid int) bool {
	proc, err := ps.FindProcess(pid)
	if err != nil || proc == nil {
		return false
	}
	return true
}

// SessionProbe is the minimal view of a session the health sweep needs.
type SessionProbe struct {
	ID  string
	PID int
	// PaneAlive is supplied by the caller (via the session's pane
	// adapter), since liveness of the multiplexer pane is a separate
	// question from PID liveness — a pane can outlive its original PID
	// (e.g. after a shell respawn) or vice versa.
	PaneAlive bool
}

// HealthSweep checks every session's PID and pane liveness, returning the
// ids of sessions that no longer have either — the caller marks these
// exited and notifies.
func HealthSweep(sessions []SessionProbe) []string {
	var missing []string
	for _, s := range sessions {
		if !s.PaneAlive && !PIDAlive(s.PID) {
			missing = append(missing, s.ID)
		}
	}
	return missing
}
