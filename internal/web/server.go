// Package web implements the dashboard and control-plane HTTP server: a
// session list/detail view, a live SSE tail of each pane's canonicalized
// output, an event log, and auto-rule management, plus a JSON mirror of the
// same data under /api/v1 for the slash-command layer and tests.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"github.com/joestump/conductor/api"
	"github.com/joestump/conductor/internal/paneadapter"
	"github.com/joestump/conductor/internal/store"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// SSEHub is the interface the dashboard uses to subscribe to a pane's
// output stream.
type SSEHub interface {
	Subscribe(sessionID string) (<-chan string, func())
}

// Store is the subset of *store.Store the dashboard reads and writes.
type Store interface {
	ListSessions(activeOnly bool) ([]store.Session, error)
	GetSession(id string) (*store.Session, error)
	ListCommands(sessionID string, limit int) ([]store.Command, error)
	InsertCommand(c *store.Command) (int64, error)
	ListEvents(limit int, eventType *string) ([]store.Event, error)
	AcknowledgeEvent(id int64) error
	ListAutoRules() ([]store.AutoRule, error)
	InsertAutoRule(r *store.AutoRule) (int64, error)
	SetAutoRuleEnabled(id int64, enabled bool) error
}

// PaneLookup resolves a session's live pane adapter for operator-triggered
// sends from the dashboard's own input box. ok is false once the pane has
// exited or was never registered (e.g. after a restart).
type PaneLookup func(sessionID string) (paneadapter.Adapter, bool)

// Server is the dashboard and control-plane HTTP server.
type Server struct {
	store  Store
	hub    SSEHub
	panes  PaneLookup
	mux    *http.ServeMux
	tmpl   *template.Template
	md     goldmark.Markdown
	server *http.Server
}

// New builds a Server and registers its routes. It does not start
// listening; call Start for that.
func New(st Store, hub SSEHub, panes PaneLookup) (*Server, error) {
	s := &Server{
		store: st,
		hub:   hub,
		panes: panes,
		mux:   http.NewServeMux(),
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}

	funcMap := template.FuncMap{
		"eventBadgeClass": eventBadgeClass,
		"renderMarkdown":  s.renderMarkdown,
	}
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.tmpl = tmpl

	s.registerRoutes()
	return s, nil
}

func (s *Server) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func eventBadgeClass(kind string) string {
	switch kind {
	case "error", "rate-limit":
		return "badge-critical"
	case "input-required", "token-warning":
		return "badge-warning"
	default:
		return "badge-info"
	}
}

func (s *Server) registerRoutes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleSessionDetail)
	s.mux.HandleFunc("GET /sessions/{id}/stream", s.handleSessionStream)
	s.mux.HandleFunc("POST /sessions/{id}/send", s.handleSessionSend)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("POST /events/{id}/ack", s.handleEventAck)
	s.mux.HandleFunc("GET /rules", s.handleRulesList)
	s.mux.HandleFunc("POST /rules", s.handleRuleCreate)
	s.mux.HandleFunc("POST /rules/{id}/toggle", s.handleRuleToggle)

	s.mux.HandleFunc("GET /api/v1/sessions", s.handleAPISessions)
	s.mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleAPISessionDetail)
	s.mux.HandleFunc("GET /api/v1/events", s.handleAPIEvents)

	s.mux.HandleFunc("GET /api/openapi.yaml", s.handleOpenAPISpec)
	swaggerSub, _ := fs.Sub(api.SwaggerUIFS, "swagger-ui")
	s.mux.Handle("GET /api/docs/", http.StripPrefix("/api/docs/", http.FileServer(http.FS(swaggerSub))))
}

// render executes a content template. If the request carries an HX-Request
// header it writes just that fragment (HTMX partial swap); otherwise it
// wraps the fragment in the page layout.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("template %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	if r.Header.Get("HX-Request") != "" {
		_, _ = w.Write(buf.Bytes())
		return
	}

	layoutData := struct {
		Content template.HTML
	}{Content: template.HTML(buf.String())}
	if err := s.tmpl.ExecuteTemplate(w, "layout.html", layoutData); err != nil {
		log.Printf("layout+%s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPISpec)
}

// Start begins serving on addr. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{Addr: addr, Handler: s.mux}
	log.Printf("dashboard listening on %s", addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
