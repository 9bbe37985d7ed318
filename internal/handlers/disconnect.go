package handlers

import (
	"net/http"

	"github.com/agora-protocol/relay/internal/api/middleware"
	"github.com/agora-protocol/relay/internal/relay"
)

// Disconnect ends the session holding the bearer token. It sits outside
// RequireAuth: disconnecting an expired or already-ended token succeeds.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		h.Error(w, http.StatusUnauthorized, relay.KindInvalidToken, "missing bearer token")
		return
	}

	h.relay.Disconnect(token)
	h.JSON(w, http.StatusOK, struct{}{})
}
