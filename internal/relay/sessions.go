package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agora-protocol/relay/internal/crypto"
	"github.com/agora-protocol/relay/internal/metrics"
	"github.com/agora-protocol/relay/internal/models"
)

const (
	// DefaultSessionTTL is how long a registration stays valid.
	DefaultSessionTTL = 24 * time.Hour

	maxMetadataKeys  = 32
	maxMetadataBytes = 4096
)

// RegisterRequest carries the fields of a registration.
type RegisterRequest struct {
	PublicKey  string
	PrivateKey string
	Name       string
	Metadata   map[string]any
}

// Registration is the result of a successful Register.
type Registration struct {
	Token     string
	ExpiresAt time.Time
	Peers     []models.Peer
	Session   *models.Session
}

// Manager owns the session table. Lookups by token take the read lock
// only; registration, disconnect and eviction take the write lock.
//
// Lock order: Manager.mu, then Directory.mu.
type Manager struct {
	mu      sync.RWMutex
	byToken map[string]*models.Session // keyed by token hash
	byKey   map[string]*models.Session
	known   map[string]struct{}

	presence *Directory
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewManager creates a session manager publishing into presence.
func NewManager(presence *Directory, ttl time.Duration, now func() time.Time, logger zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		byToken:  make(map[string]*models.Session),
		byKey:    make(map[string]*models.Session),
		known:    make(map[string]struct{}),
		presence: presence,
		ttl:      ttl,
		now:      now,
		logger:   logger,
	}
}

// Register verifies the key pair and opens a session for it, replacing any
// session already held by the same public key.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	if req.PublicKey == "" {
		return nil, newError(KindMissingField, "publicKey is required", nil)
	}
	if req.PrivateKey == "" {
		return nil, newError(KindMissingField, "privateKey is required", nil)
	}

	pub, err := crypto.VerifyKeyPair(req.PublicKey, req.PrivateKey)
	switch {
	case errors.Is(err, crypto.ErrKeyPairMismatch):
		return nil, newError(KindInvalidKeyPair, "private key does not match public key", err)
	case err != nil:
		return nil, newError(KindMalformedKey, "keys must be hex-encoded DER Ed25519 keys", err)
	}

	publicKey, err := crypto.MarshalPublicKey(pub)
	if err != nil {
		return nil, newError(KindMalformedKey, "cannot encode public key", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, newError(KindMissingField, "name is required", nil)
	}

	if err := checkMetadata(req.Metadata); err != nil {
		return nil, err
	}

	token, err := crypto.NewToken()
	if err != nil {
		return nil, unavailable("token generation", err)
	}

	now := m.now()
	session := &models.Session{
		ID:        crypto.NewUUIDv7(),
		TokenHash: crypto.HashToken(token),
		PublicKey: publicKey,
		Name:      name,
		Metadata:  req.Metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	old := m.byKey[publicKey]
	if old != nil {
		delete(m.byToken, old.TokenHash)
	}
	m.byToken[session.TokenHash] = session
	m.byKey[publicKey] = session
	m.known[publicKey] = struct{}{}
	m.presence.Publish(models.Peer{
		PublicKey: publicKey,
		Name:      session.Name,
		Metadata:  session.Metadata,
	}, session.ID, session.ExpiresAt)
	active := len(m.byToken)
	m.mu.Unlock()

	metrics.SessionsRegistered.Inc()
	metrics.ActiveSessions.Set(float64(active))

	if old != nil {
		metrics.SessionsEnded.WithLabelValues("superseded").Inc()
		m.logger.Info().
			Str("session", session.ID.String()).
			Str("replaced", old.ID.String()).
			Str("name", session.Name).
			Msg("session superseded")
	} else {
		m.logger.Info().
			Str("session", session.ID.String()).
			Str("name", session.Name).
			Msg("session registered")
	}

	return &Registration{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Peers:     m.presence.List(publicKey),
		Session:   session,
	}, nil
}

// Authenticate resolves a bearer token to its session and refreshes the
// holder's presence. An expired session is evicted and reported as Expired
// once; afterwards its token is simply unknown.
func (m *Manager) Authenticate(token string) (*models.Session, error) {
	if token == "" {
		return nil, newError(KindInvalidToken, "missing bearer token", nil)
	}

	hash := crypto.HashToken(token)

	m.mu.RLock()
	session := m.byToken[hash]
	m.mu.RUnlock()

	if session == nil {
		return nil, newError(KindInvalidToken, "unknown or revoked token", nil)
	}

	if session.Expired(m.now()) {
		if m.end(session, "expired") {
			m.logger.Info().Str("session", session.ID.String()).Msg("session expired")
		}
		return nil, newError(KindExpired, "session expired", nil)
	}

	m.presence.Touch(session.PublicKey)
	return session, nil
}

// Disconnect revokes a token. Unknown tokens are ignored.
func (m *Manager) Disconnect(token string) {
	hash := crypto.HashToken(token)

	m.mu.RLock()
	session := m.byToken[hash]
	m.mu.RUnlock()

	if session != nil && m.end(session, "disconnect") {
		m.logger.Info().Str("session", session.ID.String()).Msg("session disconnected")
	}
}

// Sweep evicts every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var expired []*models.Session
	for _, s := range m.byToken {
		if s.Expired(now) {
			expired = append(expired, s)
		}
	}
	for _, s := range expired {
		m.removeLocked(s)
	}
	active := len(m.byToken)
	m.mu.Unlock()

	if len(expired) > 0 {
		metrics.SessionsEnded.WithLabelValues("expired").Add(float64(len(expired)))
		metrics.ActiveSessions.Set(float64(active))
	}
	return len(expired)
}

// Known reports whether publicKey has registered since the relay started.
func (m *Manager) Known(publicKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.known[publicKey]
	return ok
}

// Active returns the number of sessions that have not expired, swept or not.
func (m *Manager) Active() int {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.byToken {
		if !s.Expired(now) {
			n++
		}
	}
	return n
}

// end removes session if it is still current. It reports whether this
// call removed it, so concurrent evictions count once.
func (m *Manager) end(session *models.Session, reason string) bool {
	m.mu.Lock()
	removed := m.byToken[session.TokenHash] == session
	if removed {
		m.removeLocked(session)
	}
	active := len(m.byToken)
	m.mu.Unlock()

	if removed {
		metrics.SessionsEnded.WithLabelValues(reason).Inc()
		metrics.ActiveSessions.Set(float64(active))
	}
	return removed
}

func (m *Manager) removeLocked(session *models.Session) {
	delete(m.byToken, session.TokenHash)
	if m.byKey[session.PublicKey] == session {
		delete(m.byKey, session.PublicKey)
	}
	m.presence.Remove(session.PublicKey, session.ID)
}

func checkMetadata(metadata map[string]any) error {
	if len(metadata) > maxMetadataKeys {
		return newError(KindLimitExceeded, "metadata has too many keys", nil)
	}
	if len(metadata) == 0 {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return newError(KindInvalidField, "metadata is not valid JSON", err)
	}
	if len(data) > maxMetadataBytes {
		return newError(KindLimitExceeded, "metadata too large", nil)
	}
	return nil
}
