package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agora-protocol/relay/internal/models"
)

// SQLiteStore handles SQLite mailbox operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/agora.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/agora.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS envelopes (
		id          TEXT PRIMARY KEY,
		recipient   TEXT NOT NULL,
		sender      TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		in_reply_to TEXT,
		ts          INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_envelopes_recipient_ts ON envelopes(recipient, ts);
	CREATE INDEX IF NOT EXISTS idx_envelopes_ts ON envelopes(ts);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append inserts an envelope.
func (s *SQLiteStore) Append(ctx context.Context, env *models.Envelope) error {
	var inReplyTo sql.NullString
	if env.InReplyTo != "" {
		inReplyTo = sql.NullString{String: env.InReplyTo, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO envelopes (id, recipient, sender, sender_name, type, payload, in_reply_to, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, env.ID, env.To, env.From, env.FromName, env.Type, string(env.Payload), inReplyTo, env.Timestamp)
	return err
}

// Query retrieves envelopes newer than since, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, recipient string, since int64, limit int) ([]models.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, sender, sender_name, type, payload, in_reply_to, ts
		FROM envelopes
		WHERE recipient = ? AND ts > ?
		ORDER BY ts ASC
		LIMIT ?
	`, recipient, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envelopes := make([]models.Envelope, 0, limit)
	for rows.Next() {
		var (
			env       models.Envelope
			payload   string
			inReplyTo sql.NullString
		)
		err := rows.Scan(
			&env.ID,
			&env.To,
			&env.From,
			&env.FromName,
			&env.Type,
			&payload,
			&inReplyTo,
			&env.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		env.Payload = []byte(payload)
		env.InReplyTo = inReplyTo.String
		envelopes = append(envelopes, env)
	}

	return envelopes, rows.Err()
}

// LastTimestamp returns the newest timestamp in a mailbox.
func (s *SQLiteStore) LastTimestamp(ctx context.Context, recipient string) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ts), 0) FROM envelopes WHERE recipient = ?
	`, recipient).Scan(&ts)
	return ts, err
}

// Purge deletes envelopes older than before.
func (s *SQLiteStore) Purge(ctx context.Context, before int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM envelopes WHERE ts < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
