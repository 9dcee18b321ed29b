package aiadapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

type fakeAPI struct {
	text string
	err  error
	slow time.Duration
}

func (f fakeAPI) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: f.text}},
	}, nil
}

func newTestAdapter(api messagesAPI) *Adapter {
	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	return &Adapter{cfg: cfg, api: api}
}

func TestSummarizeReturnsModelText(t *testing.T) {
	a := newTestAdapter(fakeAPI{text: "  did a thing  "})
	got := a.Summarize(context.Background(), "some pane output")
	if got != "did a thing" {
		t.Fatalf("Summarize() = %q", got)
	}
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	a := newTestAdapter(fakeAPI{err: errors.New("boom")})
	text := strings.Join([]string{"l1", "l2", "l3"}, "\n")
	got := a.Summarize(context.Background(), text)
	if got != text {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}

func TestSummarizeFallbackTrimsToFallbackLines(t *testing.T) {
	a := newTestAdapter(fakeAPI{err: errors.New("boom")})
	a.cfg.FallbackLines = 2
	got := a.Summarize(context.Background(), "l1\nl2\nl3\nl4")
	if got != "l3\nl4" {
		t.Fatalf("expected last 2 lines, got %q", got)
	}
}

func TestSummarizeFallsBackOnTimeout(t *testing.T) {
	a := newTestAdapter(fakeAPI{slow: 200 * time.Millisecond, text: "too slow"})
	got := a.Summarize(context.Background(), "l1\nl2")
	if got != "l1\nl2" {
		t.Fatalf("expected timeout fallback to raw lines, got %q", got)
	}
}

func TestSuggestParsesLabelCommandLines(t *testing.T) {
	a := newTestAdapter(fakeAPI{text: "run tests: go test ./...\nbuild: go build ./...\n\n"})
	got := a.Suggest(context.Background(), "context")
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", got)
	}
	if got[0].Label != "run tests" || got[0].Command != "go test ./..." {
		t.Fatalf("unexpected first suggestion: %+v", got[0])
	}
}

func TestSuggestEmptyOnError(t *testing.T) {
	a := newTestAdapter(fakeAPI{err: errors.New("boom")})
	got := a.Suggest(context.Background(), "context")
	if len(got) != 0 {
		t.Fatalf("expected no suggestions on error, got %v", got)
	}
}

func TestSuggestCapsAtThree(t *testing.T) {
	a := newTestAdapter(fakeAPI{text: "a: 1\nb: 2\nc: 3\nd: 4\n"})
	got := a.Suggest(context.Background(), "context")
	if len(got) != 3 {
		t.Fatalf("expected at most 3 suggestions, got %d", len(got))
	}
}

func TestParseNLReturnsParsedCommand(t *testing.T) {
	a := newTestAdapter(fakeAPI{text: `{"session":"2","command":"y","confidence":0.95}`})
	got := a.ParseNL(context.Background(), "yes go ahead", []string{"#1 build", "#2 deploy"}, "Continue? (y/n)")
	if got.Unknown || got.Session != "2" || got.Command != "y" || got.Confidence != 0.95 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestParseNLUnknownOnError(t *testing.T) {
	a := newTestAdapter(fakeAPI{err: errors.New("boom")})
	got := a.ParseNL(context.Background(), "do a thing", nil, "")
	if !got.Unknown {
		t.Fatal("expected Unknown on transport error")
	}
}

func TestParseNLUnknownOnUnparseableJSON(t *testing.T) {
	a := newTestAdapter(fakeAPI{text: "not json"})
	got := a.ParseNL(context.Background(), "do a thing", nil, "")
	if !got.Unknown {
		t.Fatal("expected Unknown for unparseable model output")
	}
}

func TestParseNLUnknownWhenCommandEmpty(t *testing.T) {
	a := newTestAdapter(fakeAPI{text: `{"command":"","confidence":0}`})
	got := a.ParseNL(context.Background(), "???", nil, "")
	if !got.Unknown {
		t.Fatal("expected Unknown when the model reports no command")
	}
}
