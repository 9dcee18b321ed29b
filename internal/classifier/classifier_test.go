package classifier

import "testing"

func TestClassifyPermissionPromptTakesPriorityOverInputPrompt(t *testing.T) {
	c := New()
	text := "Claude wants to run:\n  rm -rf node_modules\nAllow? (y/n/a)\n"
	got := c.Classify(text)
	if got.Type != TypePermissionPrompt {
		t.Fatalf("expected permission-prompt, got %s (matched %q)", got.Type, got.Match)
	}
}

func TestClassifyInputPrompt(t *testing.T) {
	c := New()
	got := c.Classify("Which environment should I target?")
	if got.Type != TypeInputPrompt {
		t.Fatalf("expected input-prompt, got %s", got.Type)
	}
}

func TestClassifyRateLimit(t *testing.T) {
	c := New()
	got := c.Classify("Error: rate limit exceeded, try again in 30 seconds")
	if got.Type != TypeRateLimit {
		t.Fatalf("expected rate-limit, got %s", got.Type)
	}
}

func TestClassifyError(t *testing.T) {
	c := New()
	got := c.Classify("panic: runtime error: index out of range")
	if got.Type != TypeError {
		t.Fatalf("expected error, got %s", got.Type)
	}
}

func TestClassifyCompletion(t *testing.T) {
	c := New()
	got := c.Classify("Build succeeded. Done in 4.2s")
	if got.Type != TypeCompletion {
		t.Fatalf("expected completion, got %s", got.Type)
	}
}

func TestClassifyNone(t *testing.T) {
	c := New()
	got := c.Classify("just some ordinary log output")
	if got.Type != TypeNone {
		t.Fatalf("expected none, got %s", got.Type)
	}
}

func TestClassifySimplePermissionPromptOverSimpleYesNo(t *testing.T) {
	c := New()
	got := c.Classify("Continue? (Y/n)")
	// A plain y/n prompt with no "wants to" phrasing is not a permission
	// prompt — it should fall through to input-prompt.
	if got.Type != TypeInputPrompt {
		t.Fatalf("expected input-prompt for plain y/n, got %s", got.Type)
	}
}

func TestHasDestructiveKeyword(t *testing.T) {
	c := New()
	cases := []struct {
		text string
		want bool
	}{
		{"Delete all records? (y/n)", true},
		{"rm -rf /var/tmp/cache", true},
		{"git push --force", false}, // "force push" requires that exact phrase
		{"force push to origin/main", true},
		{"Continue? (Y/n)", false},
		{"PRODUCTION deploy starting", true},
	}
	for _, tc := range cases {
		if got := c.HasDestructiveKeyword(tc.text); got != tc.want {
			t.Errorf("HasDestructiveKeyword(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
