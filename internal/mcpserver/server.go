// Package mcpserver exposes a read-mostly view of Conductor over the Model
// Context Protocol: a Claude Code session running in one pane can list
// sibling sessions, nudge one with a gated keystroke send, and acknowledge
// an event, instead of shelling out to the multiplexer directly. It wraps
// internal/store and internal/paneadapter over stdio JSON-RPC via
// mark3labs/mcp-go, with the same destructive-keyword and paused-session
// guards the auto-responder enforces, rather than trusting the caller.
package mcpserver

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/joestump/conductor/internal/classifier"
	"github.com/joestump/conductor/internal/config"
	"github.com/joestump/conductor/internal/paneadapter"
	"github.com/joestump/conductor/internal/store"
)

// Store is the subset of *store.Store the MCP surface needs.
type Store interface {
	ListSessions(activeOnly bool) ([]store.Session, error)
	GetSession(id string) (*store.Session, error)
	InsertCommand(c *store.Command) (int64, error)
	AcknowledgeEvent(id int64) error
}

// Server holds the MCP server state: the session store, a pane lookup for
// send_keys, and the destructive-keyword guard shared with the
// auto-responder.
type Server struct {
	store      Store
	panes      func(sessionID string) (paneadapter.Adapter, bool)
	classifier *classifier.Classifier
}

// NewServer creates an MCP server backed by the given store and pane
// lookup.
func NewServer(st Store, panes func(sessionID string) (paneadapter.Adapter, bool), c *classifier.Classifier) *Server {
	return &Server{store: st, panes: panes, classifier: c}
}

// Run starts the MCP stdio server. It blocks until ctx is cancelled or
// stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	mcpServer := server.NewMCPServer(
		"conductor",
		config.Version,
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTools(
		server.ServerTool{Tool: listSessionsTool(), Handler: s.handleListSessions},
		server.ServerTool{Tool: sendKeysTool(), Handler: s.handleSendKeys},
		server.ServerTool{Tool: ackEventTool(), Handler: s.handleAckEvent},
	)

	stdio := server.NewStdioServer(mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
