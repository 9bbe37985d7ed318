package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora-protocol/relay/internal/models"
)

// postgresSchema is applied by RunMigrations. The payload column is JSON
// rather than JSONB so the sender's bytes come back unchanged.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS envelopes (
	id           TEXT PRIMARY KEY,
	recipient    TEXT NOT NULL,
	sender       TEXT NOT NULL,
	sender_name  TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL,
	payload      JSON NOT NULL,
	in_reply_to  TEXT,
	ts           BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_envelopes_recipient_ts ON envelopes (recipient, ts);
CREATE INDEX IF NOT EXISTS idx_envelopes_ts ON envelopes (ts);
`

// RunMigrations creates the envelope schema if it does not exist.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, postgresSchema)
	return err
}

// PostgresStore handles PostgreSQL mailbox operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append inserts an envelope.
func (s *PostgresStore) Append(ctx context.Context, env *models.Envelope) error {
	var inReplyTo *string
	if env.InReplyTo != "" {
		inReplyTo = &env.InReplyTo
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO envelopes (id, recipient, sender, sender_name, type, payload, in_reply_to, ts)
		VALUES ($1, $2, $3, $4, $5, $6::json, $7, $8)
	`, env.ID, env.To, env.From, env.FromName, env.Type, string(env.Payload), inReplyTo, env.Timestamp)
	return err
}

// Query retrieves envelopes newer than since, oldest first.
func (s *PostgresStore) Query(ctx context.Context, recipient string, since int64, limit int) ([]models.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient, sender, sender_name, type, payload::text, in_reply_to, ts
		FROM envelopes
		WHERE recipient = $1 AND ts > $2
		ORDER BY ts ASC
		LIMIT $3
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
			inReplyTo *string
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
		if inReplyTo != nil {
			env.InReplyTo = *inReplyTo
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, rows.Err()
}

// LastTimestamp returns the newest timestamp in a mailbox.
func (s *PostgresStore) LastTimestamp(ctx context.Context, recipient string) (int64, error) {
	var ts int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(ts), 0) FROM envelopes WHERE recipient = $1
	`, recipient).Scan(&ts)
	return ts, err
}

// Purge deletes envelopes older than before.
func (s *PostgresStore) Purge(ctx context.Context, before int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM envelopes WHERE ts < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
