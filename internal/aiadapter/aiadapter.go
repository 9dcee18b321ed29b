// Package aiadapter implements the AI Adapter: three bounded-timeout
// operations over the Anthropic Messages API, each with a deterministic
// fallback so a slow or failing model never blocks or breaks the rest of
// the system.
package aiadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const (
	summarizeSystemPrompt = "You are a concise technical summarizer for terminal sessions. Summarize the following pane output in 2-4 sentences. Focus on: what command or task ran, what issues (if any) were found, and what the user should do next. Be specific. Output only the summary — no preamble."

	suggestSystemPrompt = "You suggest the next 1-3 shell or CLI commands a developer would plausibly run next, given the terminal output below. Respond with one suggestion per line, each formatted exactly as `label: command`. Output nothing else."

	parseNLSystemPrompt = "You map a short natural-language instruction onto one of the listed terminal sessions and a command to send. Respond with exactly one line of JSON: {\"session\":\"<alias-or-number-or-empty>\",\"command\":\"<text-to-send>\",\"confidence\":<0-1 float>}. If you cannot confidently map the instruction, respond with {\"command\":\"\",\"confidence\":0}."
)

// messagesAPI is the subset of *anthropic.Client this package calls,
// narrowed to an interface so tests can substitute a fake without reaching
// the network.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// realMessagesAPI adapts the real SDK client to messagesAPI.
type realMessagesAPI struct {
	client anthropic.Client
}

func (r realMessagesAPI) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return r.client.Messages.New(ctx, params)
}

// Suggestion is one suggested next command.
type Suggestion struct {
	Label   string
	Command string
}

// ParsedCommand is the outcome of ParseNL: either a resolved command with a
// confidence score, or Unknown.
type ParsedCommand struct {
	Session    string
	Command    string
	Args       string
	Confidence float64
	Unknown    bool
}

// Config tunes model selection, timeouts, and fallback sizing.
type Config struct {
	Model               string
	Timeout             time.Duration
	SummaryMaxTokens    int64
	SuggestionMaxTokens int64
	NLPMaxTokens        int64
	FallbackLines       int

	// OnError, if set, is called with the error-taxonomy kind
	// "transport-unreachable" whenever a call times out or the provider is
	// unreachable — it never changes the fallback behavior, only feeds the
	// notifier's error-escalation counter. AI errors never surface to
	// callers, but repeated failures still page once.
	OnError func(kind string)
}

// DefaultConfig matches the preferences-file defaults.
func DefaultConfig() Config {
	return Config{
		Model:               "claude-haiku-4-5",
		Timeout:             10 * time.Second,
		SummaryMaxTokens:    200,
		SuggestionMaxTokens: 150,
		NLPMaxTokens:        150,
		FallbackLines:       20,
	}
}

// Adapter wraps the Anthropic client with timeout-and-fallback semantics.
type Adapter struct {
	cfg Config
	api messagesAPI
}

// New creates an Adapter using the real Anthropic client, which reads its
// API key from ANTHROPIC_API_KEY via the SDK's default client options.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, api: realMessagesAPI{client: anthropic.NewClient()}}
}

func (a *Adapter) call(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	msg, err := a.api.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	})
	if err != nil {
		if a.cfg.OnError != nil {
			a.cfg.OnError("transport-unreachable")
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}

// Summarize returns a short summary of text, falling back to the last
// FallbackLines raw lines on timeout or transport error.
func (a *Adapter) Summarize(ctx context.Context, text string) string {
	out, err := a.call(ctx, summarizeSystemPrompt, text, a.cfg.SummaryMaxTokens)
	if err != nil {
		return a.rawFallback(text)
	}
	return strings.TrimSpace(out)
}

func (a *Adapter) rawFallback(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	n := a.cfg.FallbackLines
	if n <= 0 {
		n = 20
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Suggest returns 1-3 suggested next commands for context, or an empty
// slice on timeout or transport error.
func (a *Adapter) Suggest(ctx context.Context, text string) []Suggestion {
	out, err := a.call(ctx, suggestSystemPrompt, text, a.cfg.SuggestionMaxTokens)
	if err != nil {
		return nil
	}
	return parseSuggestions(out)
}

func parseSuggestions(raw string) []Suggestion {
	var out []Suggestion
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, cmd, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out = append(out, Suggestion{Label: strings.TrimSpace(label), Command: strings.TrimSpace(cmd)})
		if len(out) == 3 {
			break
		}
	}
	return out
}

// nlResponse is the JSON shape the model is instructed to return.
type nlResponse struct {
	Session    string      `json:"session"`
	Command    string      `json:"command"`
	Confidence json.Number `json:"confidence"`
}

// ParseNL maps a free-text instruction onto a session and command. The
// prompt lists every candidate session (as "#N alias") and the last
// prompt text seen, so the model can disambiguate. On timeout, transport
// error, or unparseable output, ParseNL returns Unknown.
func (a *Adapter) ParseNL(ctx context.Context, message string, sessions []string, lastPrompt string) ParsedCommand {
	user := fmt.Sprintf("Instruction: %s\n\nCandidate sessions:\n%s\n\nLast prompt text: %s",
		message, strings.Join(sessions, "\n"), lastPrompt)

	out, err := a.call(ctx, parseNLSystemPrompt, user, a.cfg.NLPMaxTokens)
	if err != nil {
		return ParsedCommand{Unknown: true}
	}

	var parsed nlResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &parsed); err != nil {
		return ParsedCommand{Unknown: true}
	}
	conf, err := strconv.ParseFloat(parsed.Confidence.String(), 64)
	if err != nil || parsed.Command == "" {
		return ParsedCommand{Unknown: true}
	}
	return ParsedCommand{Session: parsed.Session, Command: parsed.Command, Confidence: conf}
}
