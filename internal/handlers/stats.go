package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse summarizes relay activity.
type StatsResponse struct {
	ActiveSessions int    `json:"activeSessions"`
	OnlinePeers    int    `json:"onlinePeers"`
	LastActivity   string `json:"lastActivity"`
	Uptime         string `json:"uptime"`
}

// Stats reports session and presence counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	peers := h.relay.Presence.List("")

	var lastSeen int64
	for _, p := range peers {
		if p.LastSeen > lastSeen {
			lastSeen = p.LastSeen
		}
	}

	lastActivity := "no activity yet"
	if lastSeen > 0 {
		lastActivity = formatTimeAgo(time.UnixMilli(lastSeen))
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		ActiveSessions: h.relay.Sessions.Active(),
		OnlinePeers:    len(peers),
		LastActivity:   lastActivity,
		Uptime:         time.Since(h.started).Truncate(time.Second).String(),
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
