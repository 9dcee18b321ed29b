package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/conductor/internal/store"
)

// --- Tool definitions ---

func listSessionsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list_sessions",
		"List Conductor-managed panes, including status, alias, and token usage.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"active_only": {
					"type": "boolean",
					"description": "If true, only return sessions that have not exited"
				}
			}
		}`),
	)
}

func sendKeysTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"send_keys",
		"Send keystrokes to another Conductor-managed pane. Refused for paused, rate-limited, or exited sessions, and for text containing a destructive keyword.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "Target session ID"
				},
				"text": {
					"type": "string",
					"description": "Literal text to send"
				},
				"press_enter": {
					"type": "boolean",
					"description": "Whether to submit with Enter after the text"
				}
			},
			"required": ["session_id", "text"]
		}`),
	)
}

func ackEventTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"ack_event",
		"Acknowledge a Conductor event by ID.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"event_id": {
					"type": "integer",
					"description": "Event ID to acknowledge"
				}
			},
			"required": ["event_id"]
		}`),
	)
}

// --- Tool handlers ---

type listSessionsArgs struct {
	ActiveOnly bool `json:"active_only"`
}

type sessionResult struct {
	ID           string `json:"id"`
	Number       int    `json:"number"`
	Alias        string `json:"alias"`
	Status       string `json:"status"`
	TokenUsed    int    `json:"token_used"`
	TokenLimit   int    `json:"token_limit"`
	LastActivity string `json:"last_activity"`
}

func (s *Server) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listSessionsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	sessions, err := s.store.ListSessions(args.ActiveOnly)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions: %v", err)), nil
	}

	results := make([]sessionResult, len(sessions))
	for i, sess := range sessions {
		results[i] = sessionResult{
			ID:           sess.ID,
			Number:       sess.Number,
			Alias:        sess.Alias,
			Status:       sess.Status,
			TokenUsed:    sess.TokenUsed,
			TokenLimit:   sess.TokenLimit,
			LastActivity: sess.LastActivity,
		}
	}
	return resultJSON(results)
}

type sendKeysArgs struct {
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	PressEnter bool   `json:"press_enter"`
}

type sendKeysResult struct {
	Sent bool `json:"sent"`
}

var blockedSendStatuses = map[string]bool{
	"paused":       true,
	"rate-limited": true,
	"exited":       true,
}

func (s *Server) handleSendKeys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sendKeysArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SessionID == "" || args.Text == "" {
		return mcp.NewToolResultError("session_id and text are required"), nil
	}

	if s.classifier != nil && s.classifier.HasDestructiveKeyword(args.Text) {
		return mcp.NewToolResultError("refused: text contains a destructive keyword"), nil
	}

	sess, err := s.store.GetSession(args.SessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("look up session: %v", err)), nil
	}
	if sess == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no such session %q", args.SessionID)), nil
	}
	if blockedSendStatuses[sess.Status] {
		return mcp.NewToolResultError(fmt.Sprintf("refused: session is %s", sess.Status)), nil
	}

	adapter, ok := s.panes(args.SessionID)
	if !ok {
		return mcp.NewToolResultError("session has no live pane"), nil
	}
	if err := adapter.Send(ctx, args.Text, args.PressEnter); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send: %v", err)), nil
	}

	if _, err := s.store.InsertCommand(&store.Command{SessionID: args.SessionID, Source: "system", Input: args.Text}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("record command: %v", err)), nil
	}

	return resultJSON(sendKeysResult{Sent: true})
}

type ackEventArgs struct {
	EventID int64 `json:"event_id"`
}

type ackEventResult struct {
	Acknowledged bool `json:"acknowledged"`
}

func (s *Server) handleAckEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args ackEventArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.EventID == 0 {
		return mcp.NewToolResultError("event_id is required"), nil
	}
	if err := s.store.AcknowledgeEvent(args.EventID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("acknowledge event: %v", err)), nil
	}
	return resultJSON(ackEventResult{Acknowledged: true})
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
