package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agora-protocol/relay/internal/api/middleware"
	"github.com/agora-protocol/relay/internal/relay"
)

// SendRequest represents the send request body.
type SendRequest struct {
	To        string          `json:"to"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	InReplyTo string          `json:"inReplyTo,omitempty"`
}

// SendResponse identifies the stored envelope.
type SendResponse struct {
	EnvelopeID string `json:"envelopeId"`
	Timestamp  int64  `json:"timestamp"`
}

// Send routes an envelope to the recipient's mailbox.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())

	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}

	env, err := h.relay.Send(r.Context(), session, relay.SendRequest{
		To:        req.To,
		Type:      req.Type,
		Payload:   req.Payload,
		InReplyTo: req.InReplyTo,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, SendResponse{
		EnvelopeID: env.ID,
		Timestamp:  env.Timestamp,
	})
}
