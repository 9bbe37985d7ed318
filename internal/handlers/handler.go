package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/agora-protocol/relay/internal/api/middleware"
	"github.com/agora-protocol/relay/internal/relay"
	"github.com/agora-protocol/relay/internal/store"
)

const maxNameLength = 100

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	relay   *relay.Relay
	redis   *store.RedisStore
	logger  zerolog.Logger
	started time.Time
}

// NewHandler creates a new Handler. redis may be nil when the relay runs
// without Redis.
func NewHandler(r *relay.Relay, redis *store.RedisStore, logger zerolog.Logger) *Handler {
	return &Handler{
		relay:   r,
		redis:   redis,
		logger:  logger,
		started: time.Now(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response carrying the relay error kind.
func (h *Handler) Error(w http.ResponseWriter, status int, kind relay.Kind, message string) {
	middleware.JSONError(w, status, string(kind), message)
}

// fail maps a relay error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var re *relay.Error
	if !errors.As(err, &re) {
		h.logger.Error().Err(err).Msg("unexpected handler error")
		h.Error(w, http.StatusServiceUnavailable, relay.KindServiceUnavailable, "service unavailable")
		return
	}

	status := http.StatusBadRequest
	switch re.Class() {
	case relay.ClassAuth:
		status = http.StatusUnauthorized
	case relay.ClassUnavailable:
		h.logger.Error().Err(err).Msg("relay backend failure")
		h.Error(w, http.StatusServiceUnavailable, re.Kind, re.Message)
		return
	}
	if re.Kind == relay.KindPayloadTooLarge {
		status = http.StatusRequestEntityTooLarge
	}
	h.Error(w, status, re.Kind, re.Message)
}

// decode reads a JSON body into v and writes the error response itself
// when it cannot.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(w, http.StatusRequestEntityTooLarge, relay.KindPayloadTooLarge, "request body too large")
		return false
	}
	h.Error(w, http.StatusBadRequest, relay.KindInvalidField, "invalid JSON body")
	return false
}

// sanitizeName trims and limits name to 100 bytes, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > maxNameLength {
		name = name[:maxNameLength]
		// Don't split a multi-byte rune.
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
	}

	return name
}
