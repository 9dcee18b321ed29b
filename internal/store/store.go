// Package store is Conductor's embedded relational persistence layer: the
// sessions, commands, auto_rules, and events tables behind a single-writer
// SQLite connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store wraps a sql.DB connection to the SQLite database.
type Store struct {
	conn *sql.DB
}

// Session is a managed terminal process.
type Session struct {
	ID           string
	Number       int
	Alias        string
	Type         string // assistant-cli, interactive-shell, one-shot
	WorkingDir   string
	MuxSession   string
	MuxPaneID    string
	PID          int
	Status       string // running, paused, waiting, error, exited, rate-limited
	ColorToken   string
	TokenUsed    int
	TokenLimit   int
	LastActivity string
	LastSummary  *string
	CreatedAt    string
	UpdatedAt    string
}

// Command is an append-only audit record of bytes sent to a pane.
type Command struct {
	ID        int64
	SessionID string
	Source    string // user, auto, system
	Input     string
	Context   *string
	Timestamp string
}

// AutoRule is an auto-responder rule.
type AutoRule struct {
	ID        int64
	Pattern   string
	Response  string
	MatchType string // regex, contains, exact
	Enabled   bool
	HitCount  int
	CreatedAt string
}

// Event is a notification record.
type Event struct {
	ID                 int64
	SessionID          string
	EventType          string // input-required, token-warning, error, completed, rate-limit, auto-response, system
	Message            string
	Acknowledged       bool
	PlatformMessageID  *string
	Timestamp          string
}

// BusyTimeout is the default lock-wait applied to every connection, per
// the store requirements.
const BusyTimeout = 5 * time.Second

// Open creates a new Store connection and runs all pending migrations.
// It uses WAL journal mode and a single write connection, matching the
// single writer-goroutine acceptance criterion: SQLite itself
// serializes writers, and capping pool size to 1 makes that serialization
// explicit rather than incidental.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)", path, BusyTimeout.Milliseconds())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := bootstrapFromLegacy(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bootstrap legacy migrations: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Prune deletes Commands and Events older than the given age. It is called
// once at boot: a boot-time pruner that deletes Commands and
// Events older than 30 days".
func (s *Store) Prune(olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	if _, err := s.conn.Exec(`DELETE FROM commands WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("prune commands: %w", err)
	}
	if _, err := s.conn.Exec(`DELETE FROM events WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}

// --- Session methods ---

const sessionColumns = `id, number, alias, type, working_dir, mux_session, mux_pane_id, pid, status, color_token, token_used, token_limit, last_activity, last_summary, created_at, updated_at`

func scanSession(scanner interface{ Scan(...any) error }, sess *Session) error {
	return scanner.Scan(&sess.ID, &sess.Number, &sess.Alias, &sess.Type, &sess.WorkingDir, &sess.MuxSession, &sess.MuxPaneID, &sess.PID, &sess.Status, &sess.ColorToken, &sess.TokenUsed, &sess.TokenLimit, &sess.LastActivity, &sess.LastSummary, &sess.CreatedAt, &sess.UpdatedAt)
}

// InsertSession creates a new session record.
func (s *Store) InsertSession(sess *Session) error {
	_, err := s.conn.Exec(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Number, sess.Alias, sess.Type, sess.WorkingDir, sess.MuxSession, sess.MuxPaneID, sess.PID, sess.Status, sess.ColorToken, sess.TokenUsed, sess.TokenLimit, sess.LastActivity, sess.LastSummary, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a single session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	sess := &Session{}
	row := s.conn.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if err := scanSession(row, sess); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns sessions ordered by number ascending, optionally
// filtered to non-exited sessions only.
func (s *Store) ListSessions(activeOnly bool) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if activeOnly {
		query += ` WHERE status != 'exited'`
	}
	query += ` ORDER BY number ASC`

	rows, err := s.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := scanSession(rows, &sess); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSessionStatus updates only the status and last-activity fields.
func (s *Store) UpdateSessionStatus(id, status string, lastActivity string) error {
	_, err := s.conn.Exec(
		`UPDATE sessions SET status = ?, last_activity = ?, updated_at = ? WHERE id = ?`,
		status, lastActivity, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("update session status %s: %w", id, err)
	}
	return nil
}

// UpdateSessionSummary stores an AI-generated summary for a session.
func (s *Store) UpdateSessionSummary(id, summary string) error {
	_, err := s.conn.Exec(
		`UPDATE sessions SET last_summary = ?, updated_at = ? WHERE id = ?`,
		summary, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("update session summary %s: %w", id, err)
	}
	return nil
}

// UpdateSessionTokens stores the token estimator's latest usage figures.
func (s *Store) UpdateSessionTokens(id string, used, limit int) error {
	_, err := s.conn.Exec(
		`UPDATE sessions SET token_used = ?, token_limit = ?, updated_at = ? WHERE id = ?`,
		used, limit, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("update session tokens %s: %w", id, err)
	}
	return nil
}

// DeleteSession removes a session row (cascades to its commands/events).
func (s *Store) DeleteSession(id string) error {
	_, err := s.conn.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// NextSessionNumber returns the lowest positive integer not currently in
// use by a non-exited session, satisfying the "numbers are unique among
// non-exited sessions are never reused after deletion.
func (s *Store) NextSessionNumber() (int, error) {
	rows, err := s.conn.Query(`SELECT number FROM sessions WHERE status != 'exited' ORDER BY number ASC`)
	if err != nil {
		return 0, fmt.Errorf("list session numbers: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	used := make(map[int]bool)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan session number: %w", err)
		}
		used[n] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for n := 1; ; n++ {
		if !used[n] {
			return n, nil
		}
	}
}

// --- Command methods ---

// InsertCommand records an append-only audit row.
func (s *Store) InsertCommand(c *Command) (int64, error) {
	res, err := s.conn.Exec(
		`INSERT INTO commands (session_id, source, input, context, timestamp) VALUES (?, ?, ?, ?, ?)`,
		c.SessionID, c.Source, c.Input, c.Context, c.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert command: %w", err)
	}
	return res.LastInsertId()
}

// ListCommands returns commands for a session ordered oldest-first.
func (s *Store) ListCommands(sessionID string, limit int) ([]Command, error) {
	rows, err := s.conn.Query(
		`SELECT id, session_id, source, input, context, timestamp FROM commands WHERE session_id = ? ORDER BY timestamp ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var commands []Command
	for rows.Next() {
		var c Command
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Source, &c.Input, &c.Context, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// --- AutoRule methods ---

// InsertAutoRule validates the rule (compiling any regex pattern) and
// inserts it. Invalid regex is rejected at creation.
func (s *Store) InsertAutoRule(r *AutoRule) (int64, error) {
	if r.MatchType == "regex" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return 0, fmt.Errorf("invalid regex pattern %q: %w", r.Pattern, err)
		}
	}
	res, err := s.conn.Exec(
		`INSERT INTO auto_rules (pattern, response, match_type, enabled, hit_count, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		r.Pattern, r.Response, r.MatchType, boolToInt(r.Enabled), r.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert auto rule: %w", err)
	}
	return res.LastInsertId()
}

// ListAutoRules returns all rules ordered by id ascending (first-match-wins
// order for the auto-responder).
func (s *Store) ListAutoRules() ([]AutoRule, error) {
	rows, err := s.conn.Query(`SELECT id, pattern, response, match_type, enabled, hit_count, created_at FROM auto_rules ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list auto rules: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var rules []AutoRule
	for rows.Next() {
		var r AutoRule
		var enabled int
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Response, &r.MatchType, &enabled, &r.HitCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan auto rule: %w", err)
		}
		r.Enabled = enabled == 1
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ToggleAutoRule flips (or sets) a rule's enabled flag.
func (s *Store) SetAutoRuleEnabled(id int64, enabled bool) error {
	_, err := s.conn.Exec(`UPDATE auto_rules SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("set auto rule enabled %d: %w", id, err)
	}
	return nil
}

// DeleteAutoRule removes a rule.
func (s *Store) DeleteAutoRule(id int64) error {
	_, err := s.conn.Exec(`DELETE FROM auto_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete auto rule %d: %w", id, err)
	}
	return nil
}

// IncrementAutoRuleHitCount bumps a rule's hit counter. The auto-responder
// calls this asynchronously: a rule match must never block on the
// store write.
func (s *Store) IncrementAutoRuleHitCount(id int64) error {
	_, err := s.conn.Exec(`UPDATE auto_rules SET hit_count = hit_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment auto rule hit count %d: %w", id, err)
	}
	return nil
}

// --- Event methods ---

// InsertEvent stores a notification record.
func (s *Store) InsertEvent(e *Event) (int64, error) {
	res, err := s.conn.Exec(
		`INSERT INTO events (session_id, event_type, message, acknowledged, platform_message_id, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.EventType, e.Message, boolToInt(e.Acknowledged), e.PlatformMessageID, e.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// ListEvents returns events ordered newest-first, with optional type filter.
func (s *Store) ListEvents(limit int, eventType *string) ([]Event, error) {
	query := `SELECT id, session_id, event_type, message, acknowledged, platform_message_id, timestamp FROM events WHERE 1=1`
	var args []any
	if eventType != nil {
		query += ` AND event_type = ?`
		args = append(args, *eventType)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var events []Event
	for rows.Next() {
		var e Event
		var ack int
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Message, &ack, &e.PlatformMessageID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Acknowledged = ack == 1
		events = append(events, e)
	}
	return events, rows.Err()
}

// AcknowledgeEvent marks an event as acknowledged.
func (s *Store) AcknowledgeEvent(id int64) error {
	_, err := s.conn.Exec(`UPDATE events SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("acknowledge event %d: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
