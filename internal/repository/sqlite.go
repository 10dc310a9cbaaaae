// Package store provides the SQLite-backed repository of the consultation service:
// users for the identity provider, conversation turns and the consultation audit trail.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/identity"
)

// SQLiteStore implements the repositories using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	memory := isMemoryDSN(dsn)
	if !memory {
		dsn = fileDSN(dsn)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}

// fileDSN sets the connection parameters that let concurrent connections
// write to one database file: WAL, a busy timeout, IMMEDIATE write
// transactions and foreign keys on every connection. Shared-cache mode is
// dropped because its table locks fail with SQLITE_LOCKED instead of waiting
// for the busy timeout. Parameters already present in dsn are kept.
func fileDSN(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}
	if params.Get("cache") == "shared" {
		params.Del("cache")
	}
	defaults := map[string]string{
		"_journal_mode": "WAL",
		"_busy_timeout": "5000",
		"_txlock":       "immediate",
		"_foreign_keys": "1",
	}
	for k, v := range defaults {
		if !params.Has(k) {
			params.Set(k, v)
		}
	}
	return base + "?" + params.Encode()
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			role TEXT NOT NULL DEFAULT 'USER',
			token_hash TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			message TEXT NOT NULL,
			response TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_ts ON turns(ts)`,
		`CREATE TABLE IF NOT EXISTS consultations (
			request_id TEXT PRIMARY KEY,
			user_id TEXT,
			anonymous INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error_kind TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_consultations_user ON consultations(user_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (request_id) REFERENCES consultations(request_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SeedUser inserts or replaces a user whose credential is token.
func (s *SQLiteStore) SeedUser(ctx context.Context, userID string, role domain.Role, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, role, token_hash) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET role = excluded.role, token_hash = excluded.token_hash`,
		userID, role, identity.HashToken(token))
	return err
}

// GetUserByTokenHash retrieves a user by the hash of its credential.
func (s *SQLiteStore) GetUserByTokenHash(ctx context.Context, tokenHash string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, role, token_hash FROM users WHERE token_hash = ?`,
		tokenHash).Scan(&user.UserID, &user.Role, &user.TokenHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Lookup implements identity.Provider on top of the users table.
func (s *SQLiteStore) Lookup(ctx context.Context, token string) (domain.CallerIdentity, error) {
	user, err := s.GetUserByTokenHash(ctx, identity.HashToken(token))
	if err != nil {
		return domain.CallerIdentity{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return domain.CallerIdentity{}, identity.ErrNotFound
	}
	return domain.CallerIdentity{ID: user.UserID, Role: user.Role}, nil
}

// AppendTurn inserts turn and trims the user's history to the newest keep
// turns in one transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn domain.Turn, keep int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (user_id, ts, message, response) VALUES (?, ?, ?, ?)`,
		turn.UserID, turn.Timestamp.UnixNano(), turn.Message, turn.Response); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	if keep > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM turns WHERE user_id = ? AND id NOT IN (
				SELECT id FROM turns WHERE user_id = ? ORDER BY id DESC LIMIT ?
			)`,
			turn.UserID, turn.UserID, keep); err != nil {
			return fmt.Errorf("failed to trim turns: %w", err)
		}
	}

	return tx.Commit()
}

// ListTurns returns the turns of a user, oldest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, userID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, ts, message, response FROM turns WHERE user_id = ? ORDER BY id ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var ts int64
		if err := rows.Scan(&t.UserID, &ts, &t.Message, &t.Response); err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(0, ts)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteTurns drops every turn of a user.
func (s *SQLiteStore) DeleteTurns(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE user_id = ?`, userID)
	return err
}

// PurgeTurnsBefore drops every turn older than cutoff and returns how many were removed.
func (s *SQLiteStore) PurgeTurnsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CreateConsultation creates a new consultation record.
func (s *SQLiteStore) CreateConsultation(ctx context.Context, c *domain.Consultation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultations (request_id, user_id, anonymous, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		c.RequestID, nullString(c.UserID), c.Anonymous, c.Status, c.StartedAt)
	return err
}

// UpdateConsultationStatus updates the state of a consultation.
func (s *SQLiteStore) UpdateConsultationStatus(ctx context.Context, requestID string, status domain.ConsultState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE consultations SET status = ? WHERE request_id = ?`,
		status, requestID)
	return err
}

// UpdateConsultationUser records the resolved caller of a consultation.
func (s *SQLiteStore) UpdateConsultationUser(ctx context.Context, requestID, userID string, anonymous bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE consultations SET user_id = ?, anonymous = ? WHERE request_id = ?`,
		nullString(userID), anonymous, requestID)
	return err
}

// CompleteConsultation moves a consultation to a terminal state.
func (s *SQLiteStore) CompleteConsultation(ctx context.Context, requestID string, status domain.ConsultState, kind domain.ErrorKind) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE consultations SET status = ?, ended_at = ?, error_kind = ? WHERE request_id = ?`,
		status, time.Now(), nullString(string(kind)), requestID)
	return err
}

// GetConsultation retrieves a consultation by request ID.
func (s *SQLiteStore) GetConsultation(ctx context.Context, requestID string) (*domain.Consultation, error) {
	var c domain.Consultation
	var userID, kind sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT request_id, user_id, anonymous, status, started_at, ended_at, error_kind FROM consultations WHERE request_id = ?`,
		requestID).Scan(&c.RequestID, &userID, &c.Anonymous, &c.Status, &c.StartedAt, &endedAt, &kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.UserID = userID.String
	c.ErrorKind = domain.ErrorKind(kind.String)
	if endedAt.Valid {
		c.EndedAt = &endedAt.Time
	}
	return &c, nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, request_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RequestID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a consultation.
func (s *SQLiteStore) GetEvents(ctx context.Context, requestID string, afterTs int64, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, request_id, ts, type, payload FROM events WHERE request_id = ?`
	args := []interface{}{requestID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.RequestID, &e.Ts, &e.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			e.Payload = []byte(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
