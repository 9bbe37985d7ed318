package store

import (
	"context"

	"github.com/agora-protocol/relay/internal/models"
)

// MailboxStore persists per-recipient envelope logs.
// MemoryStore, RedisStore, PostgresStore and SQLiteStore implement this interface.
//
// Callers serialize Append per recipient and assign strictly increasing
// timestamps, so implementations may order a mailbox by timestamp alone.
type MailboxStore interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Append stores env in the mailbox of env.To.
	Append(ctx context.Context, env *models.Envelope) error

	// Query returns up to limit envelopes for recipient with Timestamp > since,
	// oldest first.
	Query(ctx context.Context, recipient string, since int64, limit int) ([]models.Envelope, error)

	// LastTimestamp returns the newest timestamp in recipient's mailbox, or 0.
	LastTimestamp(ctx context.Context, recipient string) (int64, error)

	// Purge deletes envelopes with Timestamp < before from every mailbox.
	Purge(ctx context.Context, before int64) (int64, error)
}
