package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agora-protocol/relay/internal/crypto"
	"github.com/agora-protocol/relay/internal/metrics"
	"github.com/agora-protocol/relay/internal/models"
)

const (
	// DefaultMaxPayloadBytes bounds the encoded size of an envelope payload.
	DefaultMaxPayloadBytes = 64 * 1024

	// DefaultEnvelopeType is used when a send omits the type.
	DefaultEnvelopeType = "publish"

	maxTypeLength      = 64
	maxInReplyToLength = 128
)

// RecipientPolicy decides which recipients a send may address.
type RecipientPolicy string

const (
	// RecipientsAny accepts every well-formed public key (store-and-forward).
	RecipientsAny RecipientPolicy = "any"
	// RecipientsKnown accepts only keys that have registered at least once.
	RecipientsKnown RecipientPolicy = "known"
)

// ParseRecipientPolicy validates a policy name.
func ParseRecipientPolicy(s string) (RecipientPolicy, error) {
	switch p := RecipientPolicy(s); p {
	case RecipientsAny, RecipientsKnown:
		return p, nil
	case "":
		return RecipientsAny, nil
	}
	return "", fmt.Errorf("unknown recipient policy %q", s)
}

// SendRequest carries the fields of a send.
type SendRequest struct {
	To        string
	Type      string
	Payload   json.RawMessage
	InReplyTo string
}

// Router validates sends and appends them to the recipient's mailbox.
type Router struct {
	mailboxes  *Mailboxes
	sessions   *Manager
	policy     RecipientPolicy
	maxPayload int
	logger     zerolog.Logger
}

// NewRouter creates a router.
func NewRouter(mailboxes *Mailboxes, sessions *Manager, policy RecipientPolicy, maxPayload int, logger zerolog.Logger) *Router {
	if policy == "" {
		policy = RecipientsAny
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadBytes
	}
	return &Router{
		mailboxes:  mailboxes,
		sessions:   sessions,
		policy:     policy,
		maxPayload: maxPayload,
		logger:     logger,
	}
}

// Send routes a message from sender to req.To and returns the stored envelope.
// The recipient does not need to be online.
func (r *Router) Send(ctx context.Context, sender *models.Session, req SendRequest) (*models.Envelope, error) {
	if req.To == "" {
		return nil, newError(KindMissingField, "to is required", nil)
	}
	payload := bytes.TrimSpace(req.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, newError(KindMissingField, "payload is required", nil)
	}

	to, err := crypto.CanonicalPublicKey(req.To)
	if err != nil {
		return nil, newError(KindInvalidRecipient, "to must be a hex-encoded DER Ed25519 public key", err)
	}

	if len(payload) > r.maxPayload {
		return nil, newError(KindPayloadTooLarge, fmt.Sprintf("payload exceeds %d bytes", r.maxPayload), nil)
	}
	if !json.Valid(payload) {
		return nil, newError(KindInvalidField, "payload must be valid JSON", nil)
	}

	msgType := req.Type
	if msgType == "" {
		msgType = DefaultEnvelopeType
	}
	if len(msgType) > maxTypeLength {
		return nil, newError(KindLimitExceeded, fmt.Sprintf("type exceeds %d characters", maxTypeLength), nil)
	}
	if len(req.InReplyTo) > maxInReplyToLength {
		return nil, newError(KindLimitExceeded, fmt.Sprintf("inReplyTo exceeds %d characters", maxInReplyToLength), nil)
	}

	if r.policy == RecipientsKnown && !r.sessions.Known(to) {
		return nil, newError(KindInvalidRecipient, "recipient has never registered", nil)
	}

	env := &models.Envelope{
		From:      sender.PublicKey,
		FromName:  sender.Name,
		To:        to,
		Type:      msgType,
		Payload:   append(json.RawMessage(nil), payload...),
		InReplyTo: req.InReplyTo,
	}

	if err := r.mailboxes.Append(ctx, env); err != nil {
		r.logger.Error().Err(err).Str("type", msgType).Msg("envelope append failed")
		return nil, err
	}

	metrics.EnvelopesRouted.Inc()
	metrics.PayloadBytes.Observe(float64(len(payload)))

	return env, nil
}
