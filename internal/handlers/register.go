package handlers

import (
	"net/http"
	"time"

	"github.com/agora-protocol/relay/internal/models"
	"github.com/agora-protocol/relay/internal/relay"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	PublicKey  string         `json:"publicKey"`
	PrivateKey string         `json:"privateKey"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Peers     []models.Peer `json:"peers"`
}

// Register verifies the caller's key pair and opens a session.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	reg, err := h.relay.Register(r.Context(), relay.RegisterRequest{
		PublicKey:  req.PublicKey,
		PrivateKey: req.PrivateKey,
		Name:       sanitizeName(req.Name),
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, RegisterResponse{
		Token:     reg.Token,
		ExpiresAt: reg.ExpiresAt.UTC(),
		Peers:     reg.Peers,
	})
}
