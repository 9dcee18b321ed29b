// Package config loads Conductor's runtime configuration from a secrets
// file, a hierarchical preferences file, environment variables, and CLI
// flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is the build version string, overridable via -ldflags.
var Version = "dev"

// AliasMap maps a working directory to a human alias.
type AliasMap map[string]string

// SoundConfig controls which event types trigger a notification sound.
type SoundConfig struct {
	InputRequired bool
	TokenWarning  bool
	Error         bool
	Completed     bool
}

// QuietHours configures a daily window during which non-urgent
// notifications are suppressed (see internal/notifier).
type QuietHours struct {
	Enabled  bool
	Start    string // "HH:MM"
	End      string // "HH:MM"
	Timezone string
}

// DefaultRule is a preconfigured auto-responder rule loaded at startup.
type DefaultRule struct {
	Pattern   string
	Response  string
	MatchType string // exact, contains, regex
}

// PaneConfig is one statically pre-configured pane to attach a session to
// at startup, so the first run has something to bridge without a separate
// registration command.
type PaneConfig struct {
	Alias      string
	WorkingDir string
	MuxSession string
	MuxPaneID  string
}

// Config holds every tunable Conductor's components need. It is
// constructed once at startup and passed into
// each component's constructor — there is no ambient global config.
type Config struct {
	// Secrets
	TelegramBotToken string
	TelegramUserID   int64
	AnthropicAPIKey  string
	LogLevel         string

	// sessions
	MaxConcurrent int
	DefaultType   string
	DefaultDir    string
	Aliases       AliasMap
	Panes         []PaneConfig

	// tokens
	PlanTier    string
	WarningPct  int
	DangerPct   int
	CriticalPct int
	WindowHours int

	// monitor
	PollIntervalMs           int
	ActivePollIntervalMs     int
	IdlePollIntervalMs       int
	OutputBufferMaxLines     int
	CompletionIdleThresholdS int

	// notifications
	BatchWindowS         int
	ConfirmationTimeoutS int
	QuietHours           QuietHours
	Sounds               SoundConfig

	// auto_responder
	AutoResponderEnabled bool
	DefaultRules         []DefaultRule

	// ai
	AIModel             string
	SummaryMaxTokens    int
	SuggestionMaxTokens int
	NLPMaxTokens        int
	AITimeoutSeconds    int
	FallbackLines       int

	// security
	RedactPatterns     []string
	ConfirmDestructive bool
	LogAllCommands     bool

	// logging
	LogFile       string
	LogMaxSizeMB  int
	BackupCount   int
	ConsoleOutput bool

	// state
	StateDir      string
	DashboardPort int
	MCPEnabled    bool
}

// Load reads configuration from viper, which by the time this is called has
// already merged (highest to lowest precedence) CLI flags, CONDUCTOR_*
// env vars, the preferences file, and the secrets file — all bound by
// cmd/conductor/main.go the same way claudeops binds CLAUDEOPS_* vars.
func Load() Config {
	return Config{
		TelegramBotToken: viper.GetString("telegram_bot_token"),
		TelegramUserID:   viper.GetInt64("telegram_user_id"),
		AnthropicAPIKey:  viper.GetString("anthropic_api_key"),
		LogLevel:         viper.GetString("log_level"),

		MaxConcurrent: viper.GetInt("sessions.max_concurrent"),
		DefaultType:   viper.GetString("sessions.default_type"),
		DefaultDir:    viper.GetString("sessions.default_dir"),
		Aliases:       viper.GetStringMapString("sessions.aliases"),
		Panes:         decodePanes(),

		PlanTier:    viper.GetString("tokens.plan_tier"),
		WarningPct:  viper.GetInt("tokens.warning_pct"),
		DangerPct:   viper.GetInt("tokens.danger_pct"),
		CriticalPct: viper.GetInt("tokens.critical_pct"),
		WindowHours: viper.GetInt("tokens.window_hours"),

		PollIntervalMs:           viper.GetInt("monitor.poll_interval_ms"),
		ActivePollIntervalMs:     viper.GetInt("monitor.active_poll_interval_ms"),
		IdlePollIntervalMs:       viper.GetInt("monitor.idle_poll_interval_ms"),
		OutputBufferMaxLines:     viper.GetInt("monitor.output_buffer_max_lines"),
		CompletionIdleThresholdS: viper.GetInt("monitor.completion_idle_threshold_s"),

		BatchWindowS:         viper.GetInt("notifications.batch_window_s"),
		ConfirmationTimeoutS: viper.GetInt("notifications.confirmation_timeout_s"),
		QuietHours: QuietHours{
			Enabled:  viper.GetBool("notifications.quiet_hours.enabled"),
			Start:    viper.GetString("notifications.quiet_hours.start"),
			End:      viper.GetString("notifications.quiet_hours.end"),
			Timezone: viper.GetString("notifications.quiet_hours.timezone"),
		},
		Sounds: SoundConfig{
			InputRequired: viper.GetBool("notifications.sounds.input_required"),
			TokenWarning:  viper.GetBool("notifications.sounds.token_warning"),
			Error:         viper.GetBool("notifications.sounds.error"),
			Completed:     viper.GetBool("notifications.sounds.completed"),
		},

		AutoResponderEnabled: viper.GetBool("auto_responder.enabled"),
		DefaultRules:         decodeDefaultRules(),

		AIModel:             viper.GetString("ai.model"),
		SummaryMaxTokens:    viper.GetInt("ai.summary_max_tokens"),
		SuggestionMaxTokens: viper.GetInt("ai.suggestion_max_tokens"),
		NLPMaxTokens:        viper.GetInt("ai.nlp_max_tokens"),
		AITimeoutSeconds:    viper.GetInt("ai.timeout_seconds"),
		FallbackLines:       viper.GetInt("ai.fallback_lines"),

		RedactPatterns:     viper.GetStringSlice("security.redact_patterns"),
		ConfirmDestructive: viper.GetBool("security.confirm_destructive"),
		LogAllCommands:     viper.GetBool("security.log_all_commands"),

		LogFile:       viper.GetString("logging.file"),
		LogMaxSizeMB:  viper.GetInt("logging.max_size_mb"),
		BackupCount:   viper.GetInt("logging.backup_count"),
		ConsoleOutput: viper.GetBool("logging.console_output"),

		StateDir:      viper.GetString("state_dir"),
		DashboardPort: viper.GetInt("dashboard_port"),
		MCPEnabled:    viper.GetBool("mcp_enabled"),
	}
}

func decodePanes() []PaneConfig {
	raw, ok := viper.Get("sessions.panes").([]any)
	if !ok {
		return nil
	}
	panes := make([]PaneConfig, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		panes = append(panes, PaneConfig{
			Alias:      fmt.Sprintf("%v", m["alias"]),
			WorkingDir: fmt.Sprintf("%v", m["working_dir"]),
			MuxSession: fmt.Sprintf("%v", m["mux_session"]),
			MuxPaneID:  fmt.Sprintf("%v", m["mux_pane_id"]),
		})
	}
	return panes
}

func decodeDefaultRules() []DefaultRule {
	raw, ok := viper.Get("auto_responder.default_rules").([]any)
	if !ok {
		return nil
	}
	rules := make([]DefaultRule, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rules = append(rules, DefaultRule{
			Pattern:   fmt.Sprintf("%v", m["pattern"]),
			Response:  fmt.Sprintf("%v", m["response"]),
			MatchType: fmt.Sprintf("%v", m["match_type"]),
		})
	}
	return rules
}

// AITimeout returns the AI Adapter's per-call timeout as a duration.
func (c Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

// Validate checks that required secrets and ranges are sane. It is the
// only place config-invalid errors are raised; callers should exit
// with code 64 on error.
func (c Config) Validate() error {
	var missing []string
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.TelegramUserID == 0 {
		missing = append(missing, "TELEGRAM_USER_ID")
	}
	if c.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("sessions.max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	switch c.PlanTier {
	case "pro", "mid", "high":
	default:
		return fmt.Errorf("tokens.plan_tier must be one of pro|mid|high, got %q", c.PlanTier)
	}
	return nil
}
