package handlers

import (
	"net/http"

	"github.com/agora-protocol/relay/internal/api/middleware"
	"github.com/agora-protocol/relay/internal/models"
)

// PeersResponse lists online peers.
type PeersResponse struct {
	Peers []models.Peer `json:"peers"`
}

// Peers lists agents online right now, excluding the caller.
func (h *Handler) Peers(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	h.JSON(w, http.StatusOK, PeersResponse{Peers: h.relay.Peers(session)})
}
