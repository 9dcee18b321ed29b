package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Defaults installs viper defaults for every preferences key, matching the
// values documented in the configuration reference.
func Defaults() {
	viper.SetDefault("sessions.max_concurrent", 8)
	viper.SetDefault("sessions.default_type", "assistant-cli")
	viper.SetDefault("sessions.default_dir", "")

	viper.SetDefault("tokens.plan_tier", "pro")
	viper.SetDefault("tokens.warning_pct", 80)
	viper.SetDefault("tokens.danger_pct", 90)
	viper.SetDefault("tokens.critical_pct", 95)
	viper.SetDefault("tokens.window_hours", 5)

	viper.SetDefault("monitor.poll_interval_ms", 500)
	viper.SetDefault("monitor.active_poll_interval_ms", 300)
	viper.SetDefault("monitor.idle_poll_interval_ms", 2000)
	viper.SetDefault("monitor.output_buffer_max_lines", 5000)
	viper.SetDefault("monitor.completion_idle_threshold_s", 30)

	viper.SetDefault("notifications.batch_window_s", 5)
	viper.SetDefault("notifications.confirmation_timeout_s", 30)
	viper.SetDefault("notifications.quiet_hours.enabled", false)
	viper.SetDefault("notifications.quiet_hours.start", "22:00")
	viper.SetDefault("notifications.quiet_hours.end", "08:00")
	viper.SetDefault("notifications.quiet_hours.timezone", "Local")
	viper.SetDefault("notifications.sounds.input_required", true)
	viper.SetDefault("notifications.sounds.token_warning", true)
	viper.SetDefault("notifications.sounds.error", true)
	viper.SetDefault("notifications.sounds.completed", false)

	viper.SetDefault("auto_responder.enabled", true)

	viper.SetDefault("ai.model", "claude-haiku-4-5")
	viper.SetDefault("ai.summary_max_tokens", 300)
	viper.SetDefault("ai.suggestion_max_tokens", 200)
	viper.SetDefault("ai.nlp_max_tokens", 200)
	viper.SetDefault("ai.timeout_seconds", 10)
	viper.SetDefault("ai.fallback_lines", 20)

	viper.SetDefault("security.confirm_destructive", true)
	viper.SetDefault("security.log_all_commands", true)

	viper.SetDefault("logging.max_size_mb", 10)
	viper.SetDefault("logging.backup_count", 3)
	viper.SetDefault("logging.console_output", true)

	viper.SetDefault("state_dir", defaultStateDir())
	viper.SetDefault("dashboard_port", 8080)
	viper.SetDefault("mcp_enabled", true)
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return home + "/.conductor"
}

// ReadSecrets loads flat KEY=value lines from path into viper. Missing files
// are tolerated (secrets may arrive entirely through the environment); any
// other read error is fatal at startup per the config-invalid error kind.
func ReadSecrets(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets file %s: %w", path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"'`)
		viper.Set(key, val)
	}
	return nil
}

// ReadPreferences loads the hierarchical YAML preferences file into viper
// and arranges for a handful of hot-reloadable keys to take effect
// immediately on edit, without a daemon restart.
func ReadPreferences(path string, onChange func()) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read preferences file %s: %w", path, err)
	}
	if onChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			onChange()
		})
		viper.WatchConfig()
	}
	return nil
}
