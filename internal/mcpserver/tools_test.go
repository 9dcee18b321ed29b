package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/conductor/internal/classifier"
	"github.com/joestump/conductor/internal/paneadapter"
	"github.com/joestump/conductor/internal/store"
)

type fakeStore struct {
	sessions []store.Session
	commands []store.Command
	acked    []int64
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
func (f *fakeStore) InsertCommand(c *store.Command) (int64, error) {
	f.commands = append(f.commands, *c)
	return int64(len(f.commands)), nil
}
func (f *fakeStore) AcknowledgeEvent(id int64) error {
	f.acked = append(f.acked, id)
	return nil
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

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, not TextContent", result.Content[0])
	}
	return tc.Text
}

func makeRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func TestHandleListSessions(t *testing.T) {
	st := &fakeStore{sessions: []store.Session{
		{ID: "s1", Number: 1, Alias: "build", Status: "running"},
		{ID: "s2", Number: 2, Alias: "deploy", Status: "paused"},
	}}
	s := NewServer(st, nil, nil)

	result, err := s.handleListSessions(context.Background(), makeRequest("list_sessions", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}

	var sessions []sessionResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestHandleSendKeysRefusesDestructiveKeyword(t *testing.T) {
	st := &fakeStore{sessions: []store.Session{{ID: "s1", Status: "running"}}}
	pane := &fakePane{}
	s := NewServer(st, func(string) (paneadapter.Adapter, bool) { return pane, true }, classifier.New())

	result, err := s.handleSendKeys(context.Background(), makeRequest("send_keys", map[string]any{
		"session_id": "s1", "text": "rm -rf /",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected refusal for destructive keyword")
	}
	if len(pane.sent) != 0 {
		t.Fatal("expected no keystrokes sent")
	}
}

func TestHandleSendKeysRefusesPausedSession(t *testing.T) {
	st := &fakeStore{sessions: []store.Session{{ID: "s1", Status: "paused"}}}
	pane := &fakePane{}
	s := NewServer(st, func(string) (paneadapter.Adapter, bool) { return pane, true }, classifier.New())

	result, err := s.handleSendKeys(context.Background(), makeRequest("send_keys", map[string]any{
		"session_id": "s1", "text": "hello",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected refusal for paused session")
	}
	if len(pane.sent) != 0 {
		t.Fatal("expected no keystrokes sent")
	}
}

func TestHandleSendKeysSuccess(t *testing.T) {
	st := &fakeStore{sessions: []store.Session{{ID: "s1", Status: "running"}}}
	pane := &fakePane{}
	s := NewServer(st, func(string) (paneadapter.Adapter, bool) { return pane, true }, classifier.New())

	result, err := s.handleSendKeys(context.Background(), makeRequest("send_keys", map[string]any{
		"session_id": "s1", "text": "go test ./...", "press_enter": true,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}
	if len(pane.sent) != 1 || pane.sent[0] != "go test ./..." {
		t.Fatalf("expected pane to receive the command, got %v", pane.sent)
	}
	if len(st.commands) != 1 {
		t.Fatalf("expected command recorded, got %d", len(st.commands))
	}
}

func TestHandleSendKeysUnknownSession(t *testing.T) {
	st := &fakeStore{}
	s := NewServer(st, nil, classifier.New())

	result, err := s.handleSendKeys(context.Background(), makeRequest("send_keys", map[string]any{
		"session_id": "missing", "text": "hello",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unknown session")
	}
}

func TestHandleAckEvent(t *testing.T) {
	st := &fakeStore{}
	s := NewServer(st, nil, nil)

	result, err := s.handleAckEvent(context.Background(), makeRequest("ack_event", map[string]any{
		"event_id": float64(42),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}
	if len(st.acked) != 1 || st.acked[0] != 42 {
		t.Fatalf("expected event 42 acknowledged, got %v", st.acked)
	}
}
