// Package relay implements the session, presence and mailbox core of the
// agent relay: agents register a key pair for a bearer token, discover
// online peers, send envelopes to any public key and poll their mailbox
// with a since cursor.
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agora-protocol/relay/internal/models"
	"github.com/agora-protocol/relay/internal/store"
)

// Options configures a Relay. Zero values select the defaults.
type Options struct {
	SessionTTL      time.Duration
	MaxPayloadBytes int
	RecipientPolicy RecipientPolicy
	// Retention is how long envelopes are kept; zero keeps them forever.
	Retention time.Duration
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Relay wires the verifier, session manager, presence directory, mailboxes
// and router together. It is safe for concurrent use.
type Relay struct {
	Sessions  *Manager
	Presence  *Directory
	Mailboxes *Mailboxes
	Router    *Router

	retention time.Duration
	logger    zerolog.Logger
}

// New creates a relay backed by s.
func New(s store.MailboxStore, opts Options) *Relay {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger.With().Str("component", "relay").Logger()

	presence := NewDirectory(now)
	sessions := NewManager(presence, opts.SessionTTL, now, logger)
	mailboxes := NewMailboxes(s, now)
	router := NewRouter(mailboxes, sessions, opts.RecipientPolicy, opts.MaxPayloadBytes, logger)

	return &Relay{
		Sessions:  sessions,
		Presence:  presence,
		Mailboxes: mailboxes,
		Router:    router,
		retention: opts.Retention,
		logger:    logger,
	}
}

// Register opens a session. See Manager.Register.
func (r *Relay) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	return r.Sessions.Register(ctx, req)
}

// Authenticate resolves a bearer token. See Manager.Authenticate.
func (r *Relay) Authenticate(token string) (*models.Session, error) {
	return r.Sessions.Authenticate(token)
}

// Disconnect ends the session holding token, if any.
func (r *Relay) Disconnect(token string) {
	r.Sessions.Disconnect(token)
}

// Peers lists online agents other than the caller.
func (r *Relay) Peers(session *models.Session) []models.Peer {
	return r.Presence.List(session.PublicKey)
}

// Send routes an envelope from the session's agent.
func (r *Relay) Send(ctx context.Context, session *models.Session, req SendRequest) (*models.Envelope, error) {
	return r.Router.Send(ctx, session, req)
}

// Messages polls the session's own mailbox.
func (r *Relay) Messages(ctx context.Context, session *models.Session, since int64, limit int) ([]models.Envelope, error) {
	return r.Mailboxes.Query(ctx, session.PublicKey, since, limit)
}
