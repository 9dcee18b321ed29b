// Package redact applies a fixed secret-pattern table to every outbound
// notification message, alongside a dynamic, environment-derived credential
// dictionary that redacts values discovered at runtime.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

type namedPattern struct {
	kind string
	re   *regexp.Regexp
}

// defaultPatterns is the fixed table of Anthropic-style secret
// keys, generic sk-/key- tokens, forge tokens, npm tokens, AWS access
// keys, Slack tokens, bearer tokens, Authorization headers, env-style
// credential assignments, and PEM-armored private-key blocks.
var defaultPatterns = []namedPattern{
	{"anthropic-key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"secret-key", regexp.MustCompile(`\b(?:sk|key)-[A-Za-z0-9_-]{20,}\b`)},
	{"github-token", regexp.MustCompile(`\bgh[po]_[A-Za-z0-9]{20,}\b`)},
	{"npm-token", regexp.MustCompile(`\bnpm_[A-Za-z0-9]{20,}\b`)},
	{"aws-access-key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"slack-token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"bearer-token", regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+`)},
	{"auth-header", regexp.MustCompile(`(?i)Authorization:\s*\S+`)},
	{"credential-assignment", regexp.MustCompile(`(?i)\b(password|secret|token|api_key)\s*=\s*\S+`)},
	{"private-key", regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)},
}

// Filter redacts both the fixed pattern table and a dynamic dictionary of
// known-sensitive literal values (e.g. the secrets actually loaded into
// this process's config), each collected at construction time.
type Filter struct {
	patterns []namedPattern
	literals map[string]string
}

// New creates a Filter with the default pattern table plus any literal
// values supplied (typically the secrets loaded from config: the bot token
// and the AI provider key, which may not match any general pattern).
func New(literals map[string]string) *Filter {
	f := &Filter{
		patterns: defaultPatterns,
		literals: make(map[string]string, len(literals)),
	}
	for kind, value := range literals {
		if value == "" {
			continue
		}
		f.literals[value] = kind
	}
	return f
}

// Redact replaces every matching substring with [REDACTED:<kind>]. It is
// idempotent: running it twice produces the same output as running it
// once, since the replacement token itself matches none of the patterns.
func (f *Filter) Redact(input string) string {
	out := input
	for value, kind := range f.literals {
		out = strings.ReplaceAll(out, value, fmt.Sprintf("[REDACTED:%s]", kind))
	}
	for _, p := range f.patterns {
		out = p.re.ReplaceAllString(out, fmt.Sprintf("[REDACTED:%s]", p.kind))
	}
	return out
}
