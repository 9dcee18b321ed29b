// Package classifier is a pure function from captured text to a typed
// DetectionResult. It holds a pre-compiled
// table of regular expressions grouped into five priority tiers and
// returns the first tier that matches.
package classifier

import "regexp"

// Type is the detection result's classification.
type Type string

const (
	TypePermissionPrompt Type = "permission-prompt"
	TypeInputPrompt       Type = "input-prompt"
	TypeRateLimit         Type = "rate-limit"
	TypeError             Type = "error"
	TypeCompletion        Type = "completion"
	TypeNone              Type = "none"
)

// Result is the value produced by Classify.
type Result struct {
	Type       Type
	Match      string // matched text span
	Pattern    string // source pattern that fired (for diagnostics/tests)
	Confidence float64
}

var noneResult = Result{Type: TypeNone, Confidence: 0}

type tier struct {
	typ      Type
	patterns []*regexp.Regexp
}

// Classifier holds the pre-compiled priority tiers. The zero value is not
// usable; construct with New.
type Classifier struct {
	tiers       []tier
	destructive *regexp.Regexp
}

// New compiles the fixed pattern tables. Compilation cannot fail — every
// pattern here is a literal constant — so New never returns an error,
// unlike AutoRule regex patterns which are user-supplied and validated at
// the store layer instead.
func New() *Classifier {
	return &Classifier{
		tiers: []tier{
			{TypePermissionPrompt, compileAll(permissionPromptPatterns)},
			{TypeInputPrompt, compileAll(inputPromptPatterns)},
			{TypeRateLimit, compileAll(rateLimitPatterns)},
			{TypeError, compileAll(errorPatterns)},
			{TypeCompletion, compileAll(completionPatterns)},
		},
		destructive: regexp.MustCompile(destructiveKeywordPattern),
	}
}

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// Classify returns the first tier (in priority order) that matches any of
// its patterns against text. Tier order matters: a permission prompt may
// contain a literal "?" and so would also match input-prompt patterns —
// classifying permission-prompt first is what prevents an autonomous "yes"
// to a destructive tool-authorization request.
func (c *Classifier) Classify(text string) Result {
	for _, t := range c.tiers {
		for _, re := range t.patterns {
			if loc := re.FindStringIndex(text); loc != nil {
				return Result{
					Type:       t.typ,
					Match:      text[loc[0]:loc[1]],
					Pattern:    re.String(),
					Confidence: 1.0,
				}
			}
		}
	}
	return noneResult
}

// HasDestructiveKeyword returns true if any reserved destructive token
// appears in text, case-insensitively. This predicate is a hard safety
// gate consumed by the auto-responder — it is independent of, and
// consulted alongside, Classify.
func (c *Classifier) HasDestructiveKeyword(text string) bool {
	return c.destructive.MatchString(text)
}
