package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joestump/conductor/internal/aiadapter"
	"github.com/joestump/conductor/internal/autoresponder"
	"github.com/joestump/conductor/internal/classifier"
	"github.com/joestump/conductor/internal/confirmation"
	"github.com/joestump/conductor/internal/config"
	"github.com/joestump/conductor/internal/dispatcher"
	"github.com/joestump/conductor/internal/hub"
	"github.com/joestump/conductor/internal/mcpserver"
	"github.com/joestump/conductor/internal/monitor"
	"github.com/joestump/conductor/internal/notifier"
	"github.com/joestump/conductor/internal/outputbuffer"
	"github.com/joestump/conductor/internal/paneadapter"
	"github.com/joestump/conductor/internal/platform"
	"github.com/joestump/conductor/internal/platform/httpadapter"
	"github.com/joestump/conductor/internal/redact"
	"github.com/joestump/conductor/internal/sleepdetector"
	"github.com/joestump/conductor/internal/store"
	"github.com/joestump/conductor/internal/tokenestimator"
	"github.com/joestump/conductor/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "conductor",
		Short: "Bridges locally-hosted terminal panes to a single chat platform",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("secrets-file", defaultPath("secrets.env"), "path to the flat KEY=value secrets file")
	f.String("config-file", defaultPath("config.yaml"), "path to the hierarchical preferences file")
	f.String("state-dir", defaultStateDir(), "directory for the embedded database")
	f.Int("dashboard-port", 8080, "HTTP port for the dashboard/control-plane server")
	f.Bool("mcp-enabled", true, "expose the MCP control surface over stdio")
	f.Int("max-concurrent", 8, "maximum number of non-exited sessions")
	f.String("plan-tier", "pro", "AI provider plan tier: pro, mid, or high")
	f.Bool("auto-responder-enabled", true, "globally enable the auto-responder")
	f.String("log-level", "info", "log verbosity")
	f.String("platform-webhook-url", "", "dev HTTP platform adapter: outbound delivery URL")
	f.String("platform-auth-token", "", "dev HTTP platform adapter: bearer token for inbound requests")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("state_dir", "state-dir")
	bindFlag("dashboard_port", "dashboard-port")
	bindFlag("mcp_enabled", "mcp-enabled")
	bindFlag("sessions.max_concurrent", "max-concurrent")
	bindFlag("tokens.plan_tier", "plan-tier")
	bindFlag("auto_responder.enabled", "auto-responder-enabled")
	bindFlag("log_level", "log-level")
	bindFlag("platform.webhook_url", "platform-webhook-url")
	bindFlag("platform.auth_token", "platform-auth-token")

	viper.SetEnvPrefix("CONDUCTOR")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".conductor")
}

func defaultPath(name string) string {
	return filepath.Join(defaultStateDir(), name)
}

func run(cmd *cobra.Command, args []string) error {
	config.Defaults()

	secretsFile := viper.GetString("secrets_file")
	if secretsFile == "" {
		secretsFile = cmd.Flags().Lookup("secrets-file").Value.String()
	}
	if err := config.ReadSecrets(secretsFile); err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}

	var cfg config.Config
	reload := func() { cfg = config.Load() }

	prefsFile := cmd.Flags().Lookup("config-file").Value.String()
	if err := config.ReadPreferences(prefsFile, reload); err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	cfg = config.Load()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("Conductor %s starting", config.Version)
	log.Printf("  State dir: %s", cfg.StateDir)
	log.Printf("  Dashboard: :%d", cfg.DashboardPort)
	log.Printf("  Plan tier: %s", cfg.PlanTier)
	log.Printf("  Auto-responder enabled: %t", cfg.AutoResponderEnabled)

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.StateDir, "conductor.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close() //nolint:errcheck

	filter := redact.New(withPatterns(cfg))

	sseHub := hub.New()
	cls := classifier.New()
	tokens := tokenestimator.New(time.Duration(cfg.WindowHours) * time.Hour)
	confirmMgr := confirmation.New()

	webhookURL := viper.GetString("platform.webhook_url")
	authToken := viper.GetString("platform.auth_token")
	httpPlatform := httpadapter.New(webhookURL, authToken)

	registry := platform.NewRegistry()
	registry.RegisterNotifier("http", httpPlatform)
	registry.RegisterCommandSource("http", httpPlatform)

	notifyCfg := notifier.DefaultConfig()
	notifyCfg.QuietHours = notifier.QuietHours{
		Enabled: cfg.QuietHours.Enabled,
		Start:   cfg.QuietHours.Start,
		End:     cfg.QuietHours.End,
	}
	notify := notifier.New(httpPlatform, filter, notifyCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Critical usage (>=95%) must transition the session to rate-limited
	// within one tick; warning/danger only notify. The critical case is
	// delivered as EventSystem rather than EventTokenWarning: it reports a
	// status transition Conductor itself just made, not the batched
	// usage-nearing-limit notice token-warning otherwise means, so it earns
	// SendImmediate on its own terms instead of reading as an exception to
	// the urgent-kinds table.
	tokens.OnAlert(func(sessionID string, th tokenestimator.Threshold) {
		if th == tokenestimator.ThresholdCritical {
			if err := st.UpdateSessionStatus(sessionID, "rate-limited", time.Now().Format(time.RFC3339)); err != nil {
				log.Printf("mark session %s rate-limited on critical token usage: %v", sessionID, err)
			}
			msg := fmt.Sprintf("Session %s auto-paused: token usage reached the critical threshold", sessionID)
			_ = notify.SendImmediate(ctx, notifier.Event{SessionID: sessionID, Kind: notifier.EventSystem, Message: msg})
			return
		}
		msg := fmt.Sprintf("Token usage for session %s crossed %s threshold", sessionID, th)
		notify.Send(ctx, notifier.Event{SessionID: sessionID, Kind: notifier.EventTokenWarning, Message: msg}, time.Now())
	})

	ai := aiadapter.New(aiadapter.Config{
		Model:               cfg.AIModel,
		Timeout:             cfg.AITimeout(),
		SummaryMaxTokens:    int64(cfg.SummaryMaxTokens),
		SuggestionMaxTokens: int64(cfg.SuggestionMaxTokens),
		NLPMaxTokens:        int64(cfg.NLPMaxTokens),
		FallbackLines:       cfg.FallbackLines,
		OnError:             func(kind string) { notify.ReportError(ctx, kind) },
	})

	sessions := newSessionRegistry(st)

	responder := autoresponder.New(cls, storeRuleSource{st}, func() bool { return !cfg.AutoResponderEnabled }, 30*time.Second)

	disp := dispatcher.New(st, notify, ai, tokens, responder,
		sessions.lookupPane,
		func(sessionID string) tokenestimator.Tier { return tokenestimator.Tier(cfg.PlanTier) },
	)
	disp.SetConfirmation(confirmMgr)
	disp.SetRuleStore(st)

	detections := make(chan monitor.DetectionEvent, 256)
	sessions.start(ctx, cfg, cls, detections, sseHub)

	for _, pc := range cfg.Panes {
		if _, err := sessions.attach(ctx, cfg, cls, detections, sseHub, pc); err != nil {
			log.Printf("attach pane %q: %v", pc.Alias, err)
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-detections:
				for _, line := range ev.NewLines {
					sseHub.Publish(ev.SessionID, line)
				}
				if err := disp.HandleDetection(ctx, ev); err != nil {
					log.Printf("dispatch event for session %s: %v", ev.SessionID, err)
				}
			}
		}
	}()

	go notify.RunLivenessChecker(ctx, ctx.Done())
	go confirmMgr.Run(ctx.Done(), 10*time.Second)

	tokenCheckTicker := time.NewTicker(30 * time.Second)
	defer tokenCheckTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-tokenCheckTicker.C:
				tokens.CheckThresholds()
			}
		}
	}()

	detector := sleepdetector.New(func(gap time.Duration) {
		log.Printf("host was asleep for %s, re-verifying session liveness", gap)
		sessions.healthSweep(ctx)
	})
	go detector.Run(ctx.Done())

	pruneTicker := time.NewTicker(24 * time.Hour)
	defer pruneTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pruneTicker.C:
				if err := st.Prune(30 * 24 * time.Hour); err != nil {
					log.Printf("prune old rows: %v", err)
				}
			}
		}
	}()

	webServer, err := web.New(st, sseHub, sessions.lookupPane)
	if err != nil {
		return fmt.Errorf("build dashboard: %w", err)
	}
	go func() {
		if err := webServer.Start(fmt.Sprintf(":%d", cfg.DashboardPort)); err != nil && err != http.ErrServerClosed {
			log.Printf("dashboard server error: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/platform/http/webhook", httpPlatform)
	platformServer := &http.Server{Addr: ":8081", Handler: mux}
	go func() {
		if err := platformServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("platform adapter server error: %v", err)
		}
	}()

	var mcpServer *mcpserver.Server
	if cfg.MCPEnabled {
		mcpServer = mcpserver.NewServer(st, sessions.lookupPane, cls)
		go func() {
			if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("mcp server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("received %s, shutting down...", sig)
	cancel()
	sessions.stopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("dashboard shutdown: %v", err)
	}
	if err := platformServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("platform adapter shutdown: %v", err)
	}

	return nil
}

// withPatterns folds the configured dynamic redaction literals together
// with the secrets that must always be redacted regardless of preferences.
func withPatterns(cfg config.Config) map[string]string {
	return map[string]string{
		"telegram-bot-token": cfg.TelegramBotToken,
		"anthropic-api-key":  cfg.AnthropicAPIKey,
	}
}

// storeRuleSource adapts *store.Store to autoresponder.RuleSource, whose
// methods take a context the store itself does not need.
type storeRuleSource struct {
	st *store.Store
}

func (s storeRuleSource) EnabledRules(ctx context.Context) ([]autoresponder.Rule, error) {
	rows, err := s.st.ListAutoRules()
	if err != nil {
		return nil, err
	}
	rules := make([]autoresponder.Rule, 0, len(rows))
	for _, r := range rows {
		if !r.Enabled {
			continue
		}
		rules = append(rules, autoresponder.Rule{
			ID:        r.ID,
			Pattern:   r.Pattern,
			Response:  r.Response,
			MatchType: autoresponder.MatchType(r.MatchType),
			Enabled:   r.Enabled,
		})
	}
	return rules, nil
}

func (s storeRuleSource) IncrementHitCount(ctx context.Context, ruleID int64) {
	_ = s.st.IncrementAutoRuleHitCount(ruleID)
}

// colorPalette is the 6-element palette color tokens are drawn from,
// reused on teardown rather than growing unbounded.
var colorPalette = [6]string{"red", "green", "yellow", "blue", "magenta", "cyan"}

// managedSession is a live pane's running state: its adapter and the
// cancel function for its monitor goroutine.
type managedSession struct {
	adapter paneadapter.Adapter
	pid     int
	cancel  context.CancelFunc
}

// sessionRegistry tracks every attached pane's live adapter alongside the
// persisted Session row, so the dashboard, the MCP surface, and the
// dispatcher can all resolve a session id to a live pane without knowing
// how it was created.
type sessionRegistry struct {
	st *store.Store

	mu   sync.Mutex
	live map[string]*managedSession
}

func newSessionRegistry(st *store.Store) *sessionRegistry {
	return &sessionRegistry{st: st, live: make(map[string]*managedSession)}
}

// start is a placeholder hook kept separate from attach so the caller can
// extend startup sequencing (e.g. resuming previously-persisted sessions)
// without changing attach's signature.
func (r *sessionRegistry) start(ctx context.Context, cfg config.Config, cls *classifier.Classifier, detections chan<- monitor.DetectionEvent, h *hub.Hub) {
}

func (r *sessionRegistry) lookupPane(sessionID string) (paneadapter.Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.live[sessionID]
	if !ok {
		return nil, false
	}
	return m.adapter, true
}

func (r *sessionRegistry) assignColor() string {
	used := map[string]bool{}
	sessions, _ := r.st.ListSessions(true)
	for _, s := range sessions {
		used[s.ColorToken] = true
	}
	for _, c := range colorPalette {
		if !used[c] {
			return c
		}
	}
	return colorPalette[0]
}

// attach registers a new session backed by a tmux pane, persists its
// Session row, and starts a Pane Monitor goroutine whose detections flow
// into detections. The run loop's detection consumer publishes each
// detection's raw new lines into h for the dashboard's SSE tail; attach
// itself only closes out h's subscribers once the monitor exits.
func (r *sessionRegistry) attach(ctx context.Context, cfg config.Config, cls *classifier.Classifier, detections chan<- monitor.DetectionEvent, h *hub.Hub, pc config.PaneConfig) (string, error) {
	r.mu.Lock()
	active := len(r.live)
	r.mu.Unlock()
	if active >= cfg.MaxConcurrent {
		return "", fmt.Errorf("max_concurrent (%d) reached", cfg.MaxConcurrent)
	}

	adapter := paneadapter.NewTmuxAdapter(pc.MuxSession, pc.MuxPaneID)
	if !adapter.Alive(ctx) {
		return "", fmt.Errorf("pane %s:%s is not alive", pc.MuxSession, pc.MuxPaneID)
	}

	number, err := r.st.NextSessionNumber()
	if err != nil {
		return "", fmt.Errorf("allocate session number: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().Format(time.RFC3339)
	sess := &store.Session{
		ID:           id,
		Number:       number,
		Alias:        aliasFor(pc, cfg),
		Type:         "assistant-cli",
		WorkingDir:   pc.WorkingDir,
		MuxSession:   pc.MuxSession,
		MuxPaneID:    pc.MuxPaneID,
		Status:       "running",
		ColorToken:   r.assignColor(),
		TokenLimit:   tokenestimator.Limit(tokenestimator.Tier(cfg.PlanTier)),
		LastActivity: now,
	}
	if err := r.st.InsertSession(sess); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.live[id] = &managedSession{adapter: adapter, cancel: cancel}
	r.mu.Unlock()

	buf := outputbuffer.New(cfg.OutputBufferMaxLines, 0)
	pausedFunc := func() bool {
		current, err := r.st.GetSession(id)
		return err == nil && current != nil && current.Status == "paused"
	}
	mon := monitor.New(id, adapter, buf, cls, detections, pausedFunc)

	go func() {
		mon.Run(sessCtx)
		_ = r.st.UpdateSessionStatus(id, "exited", time.Now().Format(time.RFC3339))
		h.Close(id)
		r.mu.Lock()
		delete(r.live, id)
		r.mu.Unlock()
	}()

	return id, nil
}

func aliasFor(pc config.PaneConfig, cfg config.Config) string {
	if pc.Alias != "" {
		return pc.Alias
	}
	if alias, ok := cfg.Aliases[pc.WorkingDir]; ok {
		return alias
	}
	return filepath.Base(pc.WorkingDir)
}

func (r *sessionRegistry) healthSweep(ctx context.Context) {
	r.mu.Lock()
	probes := make([]sleepdetector.SessionProbe, 0, len(r.live))
	for id, m := range r.live {
		probes = append(probes, sleepdetector.SessionProbe{ID: id, PID: m.pid, PaneAlive: m.adapter.Alive(ctx)})
	}
	r.mu.Unlock()

	for _, missing := range sleepdetector.HealthSweep(probes) {
		_ = r.st.UpdateSessionStatus(missing, "exited", time.Now().Format(time.RFC3339))
		r.mu.Lock()
		if m, ok := r.live[missing]; ok {
			m.cancel()
			delete(r.live, missing)
		}
		r.mu.Unlock()
	}
}

func (r *sessionRegistry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.live {
		m.cancel()
		delete(r.live, id)
	}
}
