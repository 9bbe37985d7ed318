package relay

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often expired sessions and old mail are removed.
const DefaultSweepInterval = time.Minute

// SweepOnce evicts expired sessions and, when retention is enabled, purges
// envelopes older than the retention window.
func (r *Relay) SweepOnce(ctx context.Context) {
	if n := r.Sessions.Sweep(); n > 0 {
		r.logger.Info().Int("sessions", n).Msg("expired sessions evicted")
	}

	if r.retention <= 0 {
		return
	}

	removed, err := r.Mailboxes.Purge(ctx, r.retention)
	if err != nil {
		r.logger.Error().Err(err).Msg("mailbox purge failed")
		return
	}
	if removed > 0 {
		r.logger.Info().Int64("envelopes", removed).Dur("retention", r.retention).Msg("old envelopes purged")
	}
}

// RunSweeper calls SweepOnce every interval until ctx is done.
func (r *Relay) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Debug().Dur("interval", interval).Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("sweeper stopped")
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}
