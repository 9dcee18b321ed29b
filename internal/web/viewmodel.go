package web

import "github.com/joestump/conductor/internal/store"

// SessionView adapts a store.Session for template rendering.
type SessionView struct {
	ID           string
	Number       int
	Alias        string
	Type         string
	Status       string
	ColorToken   string
	TokenUsed    int
	TokenLimit   int
	TokenPct     int
	LastActivity string
	LastSummary  string
}

func newSessionView(s store.Session) SessionView {
	pct := 0
	if s.TokenLimit > 0 {
		pct = s.TokenUsed * 100 / s.TokenLimit
	}
	summary := ""
	if s.LastSummary != nil {
		summary = *s.LastSummary
	}
	return SessionView{
		ID:           s.ID,
		Number:       s.Number,
		Alias:        s.Alias,
		Type:         s.Type,
		Status:       s.Status,
		ColorToken:   s.ColorToken,
		TokenUsed:    s.TokenUsed,
		TokenLimit:   s.TokenLimit,
		TokenPct:     pct,
		LastActivity: s.LastActivity,
		LastSummary:  summary,
	}
}

func newSessionViews(sessions []store.Session) []SessionView {
	views := make([]SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = newSessionView(s)
	}
	return views
}

// CommandView adapts a store.Command for template rendering.
type CommandView struct {
	ID        int64
	Source    string
	Input     string
	Timestamp string
}

func newCommandViews(cmds []store.Command) []CommandView {
	views := make([]CommandView, len(cmds))
	for i, c := range cmds {
		views[i] = CommandView{ID: c.ID, Source: c.Source, Input: c.Input, Timestamp: c.Timestamp}
	}
	return views
}

// EventView adapts a store.Event for template rendering.
type EventView struct {
	ID           int64
	SessionID    string
	EventType    string
	Message      string
	Acknowledged bool
	Timestamp    string
}

func newEventViews(events []store.Event) []EventView {
	views := make([]EventView, len(events))
	for i, e := range events {
		views[i] = EventView{
			ID:           e.ID,
			SessionID:    e.SessionID,
			EventType:    e.EventType,
			Message:      e.Message,
			Acknowledged: e.Acknowledged,
			Timestamp:    e.Timestamp,
		}
	}
	return views
}

// AutoRuleView adapts a store.AutoRule for template rendering.
type AutoRuleView struct {
	ID        int64
	Pattern   string
	Response  string
	MatchType string
	Enabled   bool
	HitCount  int
}

func newAutoRuleViews(rules []store.AutoRule) []AutoRuleView {
	views := make([]AutoRuleView, len(rules))
	for i, r := range rules {
		views[i] = AutoRuleView{
			ID:        r.ID,
			Pattern:   r.Pattern,
			Response:  r.Response,
			MatchType: r.MatchType,
			Enabled:   r.Enabled,
			HitCount:  r.HitCount,
		}
	}
	return views
}
