package web

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joestump/conductor/internal/paneadapter"
	"github.com/joestump/conductor/internal/store"
)

type fakeStore struct {
	sessions []store.Session
	commands map[string][]store.Command
	events   []store.Event
	rules    []store.AutoRule
	acked    map[int64]bool
	nextRule int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{commands: map[string][]store.Command{}, acked: map[int64]bool{}}
}

func (f *fakeStore) ListSessions(activeOnly bool) ([]store.Session, error) { return f.sessions, nil }
func (f *fakeStore) GetSession(id string) (*store.Session, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) ListCommands(sessionID string, limit int) ([]store.Command, error) {
	return f.commands[sessionID], nil
}
func (f *fakeStore) InsertCommand(c *store.Command) (int64, error) {
	f.commands[c.SessionID] = append(f.commands[c.SessionID], *c)
	return int64(len(f.commands[c.SessionID])), nil
}
func (f *fakeStore) ListEvents(limit int, eventType *string) ([]store.Event, error) {
	if eventType == nil {
		return f.events, nil
	}
	var out []store.Event
	for _, e := range f.events {
		if e.EventType == *eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeStore) AcknowledgeEvent(id int64) error {
	f.acked[id] = true
	return nil
}
func (f *fakeStore) ListAutoRules() ([]store.AutoRule, error) { return f.rules, nil }
func (f *fakeStore) InsertAutoRule(r *store.AutoRule) (int64, error) {
	f.nextRule++
	r.ID = f.nextRule
	f.rules = append(f.rules, *r)
	return r.ID, nil
}
func (f *fakeStore) SetAutoRuleEnabled(id int64, enabled bool) error {
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules[i].Enabled = enabled
		}
	}
	return nil
}

type fakeHub struct{}

func (fakeHub) Subscribe(sessionID string) (<-chan string, func()) {
	ch := make(chan string)
	close(ch)
	return ch, func() {}
}

type fakePane struct {
	sent []string
}

func (f *fakePane) CaptureRecent(ctx context.Context, maxLines int) ([]string, error) { return nil, nil }
func (f *fakePane) Send(ctx context.Context, text string, pressEnter bool) error {
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakePane) Alive(ctx context.Context) bool { return true }

var _ paneadapter.Adapter = (*fakePane)(nil)

func TestHandleIndexListsSessions(t *testing.T) {
	st := newFakeStore()
	st.sessions = []store.Session{{ID: "s1", Number: 1, Alias: "build", Status: "running"}}
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "build") {
		t.Fatalf("expected session alias in body, got %s", w.Body.String())
	}
}

func TestHandleSessionDetailNotFound(t *testing.T) {
	st := newFakeStore()
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/sessions/missing", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleSessionDetailRendersSummary(t *testing.T) {
	st := newFakeStore()
	summary := "**done** building"
	st.sessions = []store.Session{{ID: "s1", Alias: "build", LastSummary: &summary}}
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/sessions/s1", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<strong>done</strong>") {
		t.Fatalf("expected markdown-rendered summary, got %s", w.Body.String())
	}
}

func TestHandleSessionSendWritesCommandAndPane(t *testing.T) {
	st := newFakeStore()
	st.sessions = []store.Session{{ID: "s1", Alias: "build"}}
	pane := &fakePane{}
	srv, err := New(st, fakeHub{}, func(id string) (paneadapter.Adapter, bool) {
		if id == "s1" {
			return pane, true
		}
		return nil, false
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/sessions/s1/send", strings.NewReader("input=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if len(pane.sent) != 1 || pane.sent[0] != "hello" {
		t.Fatalf("expected pane to receive 'hello', got %v", pane.sent)
	}
	if len(st.commands["s1"]) != 1 {
		t.Fatalf("expected command recorded, got %v", st.commands["s1"])
	}
}

func TestHandleSessionSendNoPaneReturnsGone(t *testing.T) {
	st := newFakeStore()
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/sessions/s1/send", strings.NewReader("input=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 410 {
		t.Fatalf("expected 410 Gone, got %d", w.Code)
	}
}

func TestHandleEventAckMarksAcknowledged(t *testing.T) {
	st := newFakeStore()
	st.events = []store.Event{{ID: 7, SessionID: "s1", EventType: "error", Message: "boom"}}
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/events/7/ack", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if !st.acked[7] {
		t.Fatal("expected event 7 to be acknowledged")
	}
}

func TestHandleRuleCreateRejectsEmptyPattern(t *testing.T) {
	st := newFakeStore()
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/rules", strings.NewReader("pattern=&response=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleRuleToggleDisables(t *testing.T) {
	st := newFakeStore()
	st.rules = []store.AutoRule{{ID: 1, Pattern: "y/n", Response: "y", Enabled: true}}
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/rules/1/toggle?enabled=false", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st.rules[0].Enabled {
		t.Fatal("expected rule to be disabled")
	}
}

func TestHandleAPISessionsReturnsJSON(t *testing.T) {
	st := newFakeStore()
	st.sessions = []store.Session{{ID: "s1", Alias: "build"}}
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"build"`) {
		t.Fatalf("expected alias in JSON body, got %s", w.Body.String())
	}
}

func TestHandleAPISessionDetailNotFound(t *testing.T) {
	st := newFakeStore()
	srv, err := New(st, fakeHub{}, func(string) (paneadapter.Adapter, bool) { return nil, false })
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/sessions/missing", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
