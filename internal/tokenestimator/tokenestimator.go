// Package tokenestimator implements the Token Estimator: a heuristic,
// conservative tracker of observed response cycles against a plan-tier
// budget. No reliable token counter is available from the underlying
// assistant process, so usage is inferred from the monitor's own
// idle-then-burst observations rather than measured directly.
package tokenestimator

import (
	"sync"
	"time"
)

// Tier names the supported plan tiers.
type Tier string

const (
	TierPro  Tier = "pro"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// tierLimits is the table-driven messages-per-window budget per tier.
var tierLimits = map[Tier]int{
	TierPro:  45,
	TierMid:  225,
	TierHigh: 900,
}

// Limit returns tier's messages-per-window budget, or the pro default if
// tier is unrecognized.
func Limit(tier Tier) int {
	if n, ok := tierLimits[tier]; ok {
		return n
	}
	return tierLimits[TierPro]
}

const (
	// IdleThreshold is the minimum quiet period before a burst of new
	// lines counts as the start of a fresh response cycle.
	IdleThreshold = 3 * time.Second
	// BurstMinLines is the minimum number of new lines in a burst for it
	// to count as a response cycle.
	BurstMinLines = 5
)

// Threshold names a usage-alert level.
type Threshold string

const (
	ThresholdNone     Threshold = "none"
	ThresholdWarning  Threshold = "warning"
	ThresholdDanger   Threshold = "danger"
	ThresholdCritical Threshold = "critical"
)

const (
	warningPct  = 80
	dangerPct   = 90
	criticalPct = 95
)

// Usage is the snapshot returned by GetUsage.
type Usage struct {
	Used           int
	Limit          int
	Percentage     float64
	ResetInSeconds int64
	Tier           Tier
}

type cycle struct {
	at time.Time
}

type sessionState struct {
	tier        Tier
	cycles      []cycle
	lastObserve time.Time
	idleSince   time.Time
	pendingNew  int
	inIdle      bool
	lastAlert   Threshold
}

// Estimator tracks response cycles per session over a rolling window.
type Estimator struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	byID    map[string]*sessionState
	onAlert func(sessionID string, t Threshold)
}

// New creates an Estimator with the given rolling window (default 5 hours
// when window <= 0).
func New(window time.Duration) *Estimator {
	if window <= 0 {
		window = 5 * time.Hour
	}
	return &Estimator{
		window: window,
		now:    time.Now,
		byID:   make(map[string]*sessionState),
	}
}

// OnAlert registers a callback invoked whenever CheckThresholds crosses
// into a new, higher threshold for a session.
func (e *Estimator) OnAlert(fn func(sessionID string, t Threshold)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = fn
}

func (e *Estimator) state(sessionID string, tier Tier) *sessionState {
	s, ok := e.byID[sessionID]
	if !ok {
		s = &sessionState{tier: tier}
		e.byID[sessionID] = s
	}
	if tier != "" {
		s.tier = tier
	}
	return s
}

// Observe reports that a monitor saw numNewLines new output lines for a
// session at this instant. It implements the idle-then-burst response
// cycle heuristic: a cycle is counted the moment a burst of at least
// BurstMinLines new lines follows a quiet period of at least
// IdleThreshold.
func (e *Estimator) Observe(sessionID string, tier Tier, numNewLines int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	s := e.state(sessionID, tier)

	if numNewLines == 0 {
		if !s.inIdle {
			s.inIdle = true
			s.idleSince = now
		}
		s.pendingNew = 0
		s.lastObserve = now
		return
	}

	wasIdleLongEnough := s.inIdle && now.Sub(s.idleSince) >= IdleThreshold
	s.pendingNew += numNewLines
	s.inIdle = false
	s.lastObserve = now

	if wasIdleLongEnough && s.pendingNew >= BurstMinLines {
		s.cycles = append(s.cycles, cycle{at: now})
		s.pendingNew = 0
	}
}

// prune drops cycles older than the rolling window, in place.
func (s *sessionState) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(s.cycles) && s.cycles[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.cycles = s.cycles[i:]
	}
}

// GetUsage reports usage for one session. If sessionID is empty, it
// aggregates every tracked session into a single global usage snapshot
// against the maximum tier limit observed.
func (e *Estimator) GetUsage(sessionID string) Usage {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	if sessionID != "" {
		s, ok := e.byID[sessionID]
		if !ok {
			return Usage{Tier: TierPro, Limit: Limit(TierPro)}
		}
		s.prune(now, e.window)
		limit := Limit(s.tier)
		return usageFrom(len(s.cycles), limit, s.tier, s.cycles, now, e.window)
	}

	var used int
	var tier Tier = TierPro
	var limit int
	var oldest *time.Time
	for _, s := range e.byID {
		s.prune(now, e.window)
		used += len(s.cycles)
		if l := Limit(s.tier); l > limit {
			limit = l
			tier = s.tier
		}
		if len(s.cycles) > 0 {
			if oldest == nil || s.cycles[0].at.Before(*oldest) {
				t := s.cycles[0].at
				oldest = &t
			}
		}
	}
	if limit == 0 {
		limit = Limit(TierPro)
	}
	resetIn := int64(0)
	if oldest != nil {
		resetIn = int64(oldest.Add(e.window).Sub(now).Seconds())
		if resetIn < 0 {
			resetIn = 0
		}
	}
	pct := 0.0
	if limit > 0 {
		pct = 100 * float64(used) / float64(limit)
	}
	return Usage{Used: used, Limit: limit, Percentage: pct, ResetInSeconds: resetIn, Tier: tier}
}

func usageFrom(used, limit int, tier Tier, cycles []cycle, now time.Time, window time.Duration) Usage {
	pct := 0.0
	if limit > 0 {
		pct = 100 * float64(used) / float64(limit)
	}
	resetIn := int64(0)
	if len(cycles) > 0 {
		resetIn = int64(cycles[0].at.Add(window).Sub(now).Seconds())
		if resetIn < 0 {
			resetIn = 0
		}
	}
	return Usage{Used: used, Limit: limit, Percentage: pct, ResetInSeconds: resetIn, Tier: tier}
}

// CheckThresholds evaluates every tracked session's percentage against the
// warning/danger/critical cutoffs and fires onAlert for sessions that have
// newly crossed into a higher threshold since the last call — a session
// holding steady at, say, 82% only fires once, not on every call. Falling
// back below a threshold (e.g. after the rolling window prunes old cycles)
// clears the session's last-fired level, so climbing back into it later
// fires again. It returns the highest threshold reached across all
// sessions this call.
func (e *Estimator) CheckThresholds() Threshold {
	e.mu.Lock()
	ids := make([]string, 0, len(e.byID))
	for id := range e.byID {
		ids = append(ids, id)
	}
	cb := e.onAlert
	e.mu.Unlock()

	highest := ThresholdNone
	for _, id := range ids {
		u := e.GetUsage(id)
		t := thresholdFor(u.Percentage)
		if rank(t) > rank(highest) {
			highest = t
		}

		e.mu.Lock()
		s, ok := e.byID[id]
		var last Threshold
		if ok {
			last = s.lastAlert
		}
		fire := ok && rank(t) > rank(last)
		if ok {
			s.lastAlert = t
		}
		e.mu.Unlock()

		if cb != nil && fire {
			cb(id, t)
		}
	}
	return highest
}

func thresholdFor(pct float64) Threshold {
	switch {
	case pct >= criticalPct:
		return ThresholdCritical
	case pct >= dangerPct:
		return ThresholdDanger
	case pct >= warningPct:
		return ThresholdWarning
	default:
		return ThresholdNone
	}
}

func rank(t Threshold) int {
	switch t {
	case ThresholdCritical:
		return 3
	case ThresholdDanger:
		return 2
	case ThresholdWarning:
		return 1
	default:
		return 0
	}
}
