package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/joestump/conductor/internal/store"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(false)
	if err != nil {
		log.Printf("handleIndex: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	data := struct{ Sessions []SessionView }{Sessions: newSessionViews(sessions)}
	s.render(w, r, "index.html", data)
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.GetSession(id)
	if err != nil {
		log.Printf("handleSessionDetail: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	cmds, err := s.store.ListCommands(id, 50)
	if err != nil {
		log.Printf("handleSessionDetail: list commands: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Session  SessionView
		Commands []CommandView
	}{Session: newSessionView(*sess), Commands: newCommandViews(cmds)}
	s.render(w, r, "session_detail.html", data)
}

// handleSessionStream tails a pane's canonicalized output over SSE, fed by
// the Hub the dispatcher and monitors publish into.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = fmt.Fprintf(w, "retry: 30000\n\n")
	flusher.Flush()

	if s.hub == nil {
		_, _ = fmt.Fprintf(w, "data: [session %s] stream not connected\n\n", id)
		flusher.Flush()
		return
	}

	ch, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				_, _ = fmt.Fprintf(w, "event: done\ndata: session complete\n\n")
				flusher.Flush()
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}

// handleSessionSend is the dashboard's own input box: an operator-triggered
// Send, recorded as a Command the same way a slash-command reply is.
func (s *Server) handleSessionSend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	input := r.FormValue("input")
	if input == "" {
		http.Error(w, "input required", http.StatusBadRequest)
		return
	}

	adapter, ok := s.panes(id)
	if !ok {
		http.Error(w, "session has no live pane", http.StatusGone)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := adapter.Send(ctx, input, true); err != nil {
		log.Printf("handleSessionSend: %v", err)
		http.Error(w, "send failed", http.StatusBadGateway)
		return
	}

	if _, err := s.store.InsertCommand(&store.Command{SessionID: id, Source: "user", Input: input}); err != nil {
		log.Printf("handleSessionSend: record command: %v", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var eventType *string
	if t := r.URL.Query().Get("type"); t != "" {
		eventType = &t
	}
	events, err := s.store.ListEvents(100, eventType)
	if err != nil {
		log.Printf("handleEvents: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	data := struct{ Events []EventView }{Events: newEventViews(events)}
	s.render(w, r, "events.html", data)
}

func (s *Server) handleEventAck(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}
	if err := s.store.AcknowledgeEvent(id); err != nil {
		log.Printf("handleEventAck: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRulesList(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListAutoRules()
	if err != nil {
		log.Printf("handleRulesList: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	data := struct{ Rules []AutoRuleView }{Rules: newAutoRuleViews(rules)}
	s.render(w, r, "rules.html", data)
}

func (s *Server) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	rule := &store.AutoRule{
		Pattern:   r.FormValue("pattern"),
		Response:  r.FormValue("response"),
		MatchType: r.FormValue("match_type"),
		Enabled:   true,
	}
	if rule.Pattern == "" || rule.Response == "" {
		http.Error(w, "pattern and response are required", http.StatusBadRequest)
		return
	}
	if _, err := s.store.InsertAutoRule(rule); err != nil {
		log.Printf("handleRuleCreate: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.handleRulesList(w, r)
}

func (s *Server) handleRuleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	enabled := r.URL.Query().Get("enabled") == "true"
	if err := s.store.SetAutoRuleEnabled(id, enabled); err != nil {
		log.Printf("handleRuleToggle: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	s.handleRulesList(w, r)
}

// --- JSON API mirror, consumed by the slash-command layer and tests ---

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	sessions, err := s.store.ListSessions(activeOnly)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionViews(sessions))
}

func (s *Server) handleAPISessionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.GetSession(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("session %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(*sess))
}

func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	var eventType *string
	if t := r.URL.Query().Get("type"); t != "" {
		eventType = &t
	}
	events, err := s.store.ListEvents(100, eventType)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventViews(events))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
