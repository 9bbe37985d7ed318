package handlers

import (
	"net/http"
	"strconv"

	"github.com/agora-protocol/relay/internal/api/middleware"
	"github.com/agora-protocol/relay/internal/metrics"
	"github.com/agora-protocol/relay/internal/models"
	"github.com/agora-protocol/relay/internal/relay"
)

// MessagesResponse carries a page of the caller's mailbox.
type MessagesResponse struct {
	Messages []models.Envelope `json:"messages"`
}

// Messages returns envelopes newer than ?since= (Unix ms, exclusive),
// oldest first, at most ?limit= of them.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	query := r.URL.Query()

	var since int64
	if s := query.Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			h.Error(w, http.StatusBadRequest, relay.KindInvalidField, "since must be a non-negative integer")
			return
		}
		since = v
	}

	limit := relay.DefaultQueryLimit
	if l := query.Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			h.Error(w, http.StatusBadRequest, relay.KindInvalidField, "limit must be a positive integer")
			return
		}
		limit = v
	}

	envelopes, err := h.relay.Messages(r.Context(), session, since, limit)
	if err != nil {
		h.fail(w, err)
		return
	}

	metrics.EnvelopesDelivered.Add(float64(len(envelopes)))
	h.JSON(w, http.StatusOK, MessagesResponse{Messages: envelopes})
}
