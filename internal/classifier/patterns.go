package classifier

// Pattern tables, one per priority tier. All matching is
// case-insensitive via the `(?i)` inline flag; patterns are plain Go
// regexp (RE2), not anchored unless noted, mirroring the way the prompt
// patterns in the pack's terminal-driving tools match anywhere in a line
// rather than requiring a full-line match.

var permissionPromptPatterns = []string{
	`(?i)wants? to (run|edit|use|execute|write|modify|delete)`,
	`(?i)\ballow\b.*\?`,
	`(?i)\(y/n/a\)`,
	`(?i)\(y/n/always\)`,
	`(?i)requesting (permission|authorization)`,
	`(?i)do you want to (allow|proceed|continue)\b.*\?`,
	`(?i)tool (authorization|permission) (required|requested)`,
}

var inputPromptPatterns = []string{
	`(?i)(?:^|\n)\s*\d+[).]\s+\S`,       // numbered choice list, any line
	`\?\s*(\([^()\n]*\))?\s*$`,          // open question ending in ?, optionally followed by a (y/n)-style tail
	`(?:^|\n)\s*(>|❯)\s*$`,              // bare prompt glyph on its own line
	`(?i)\b(enter|type|provide|specify)\b.{0,40}:?\s*$`,
	`(?i)what would you like`,
	`(?i)how can i help`,
}

var rateLimitPatterns = []string{
	`(?i)rate limit`,
	`(?i)too many requests`,
	`(?i)quota exceeded`,
	`(?i)try again in \d+`,
	`(?i)\b429\b`,
	`(?i)\bcapacity\b`,
	`(?i)\bcooldown\b`,
	`(?i)limit will reset`,
}

var errorPatterns = []string{
	`(?i)\b(exception|traceback|panic)\b`,
	`(?i)exit(ed)? (code|status) [1-9]\d*`,
	`(?i)\bsignal (killed|terminated|segv|sigterm|sigkill)\b`,
	`(?i)^\s*error[:\s]`,
	`(?i)^\s*fatal[:\s]`,
	`(?i)connection (refused|reset|failed|timed out)`,
	`(?i)authentication failed`,
	`(?i)^\s*(goroutine \d+|at [\w.$]+\(.*:\d+\))`, // stack-trace leaders
}

var completionPatterns = []string{
	`(?i)build (succeeded|successful)`,
	`(?i)tests? pass(ing|ed)`,
	`(?i)done in [\d.]+\s*(s|ms)`,
	"✓|✔|✅",
	`(?i)successfully \w+ed\b`,
}

// destructiveKeywordPattern recognizes the ~17 reserved tokens whose mere
// presence disables autonomous reply, regardless of which tier the
// surrounding text classifies as.
const destructiveKeywordPattern = `(?i)\b(delete|remove|drop|truncate|destroy|overwrite|wipe|purge|uninstall|migrate|rollback|production|deploy|reset)\b|force push|hard reset|rm -rf`
