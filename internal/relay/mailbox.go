package relay

import (
	"context"
	"sync"
	"time"

	"github.com/agora-protocol/relay/internal/crypto"
	"github.com/agora-protocol/relay/internal/metrics"
	"github.com/agora-protocol/relay/internal/models"
	"github.com/agora-protocol/relay/internal/store"
)

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 100
)

// mailboxClock serializes appends to one recipient and remembers the last
// timestamp handed out. A retired clock has been dropped by Purge and must
// not issue timestamps.
type mailboxClock struct {
	mu      sync.Mutex
	last    int64
	loaded  bool
	retired bool
}

// Mailboxes assigns envelope ids and timestamps and appends envelopes to
// the backing store. Appends to one recipient are serialized; appends to
// different recipients never contend.
type Mailboxes struct {
	store store.MailboxStore

	mu     sync.Mutex
	clocks map[string]*mailboxClock

	now func() time.Time
}

// NewMailboxes wraps a store.
func NewMailboxes(s store.MailboxStore, now func() time.Time) *Mailboxes {
	if now == nil {
		now = time.Now
	}
	return &Mailboxes{
		store:  s,
		clocks: make(map[string]*mailboxClock),
		now:    now,
	}
}

func (m *Mailboxes) clock(recipient string) *mailboxClock {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.clocks[recipient]
	if c == nil {
		c = &mailboxClock{}
		m.clocks[recipient] = c
	}
	return c
}

// lockClock returns the live clock for recipient, locked.
func (m *Mailboxes) lockClock(recipient string) *mailboxClock {
	for {
		c := m.clock(recipient)
		c.mu.Lock()
		if !c.retired {
			return c
		}
		c.mu.Unlock()
	}
}

// dropIdleClocks forgets clocks whose newest timestamp is older than before.
// Their mailboxes were just emptied, so a fresh clock reloads from the store.
// Busy clocks are skipped until the next purge.
func (m *Mailboxes) dropIdleClocks(before int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, c := range m.clocks {
		if !c.mu.TryLock() {
			continue
		}
		if c.last < before {
			c.retired = true
			delete(m.clocks, key)
		}
		c.mu.Unlock()
	}
}

// Append stamps env with an id (if unset) and a timestamp strictly greater
// than any earlier envelope in the same mailbox, then stores it.
func (m *Mailboxes) Append(ctx context.Context, env *models.Envelope) error {
	c := m.lockClock(env.To)
	defer c.mu.Unlock()

	if !c.loaded {
		var last int64
		err := m.timed("last", func() (err error) {
			last, err = m.store.LastTimestamp(ctx, env.To)
			return err
		})
		if err != nil {
			return unavailable("mailbox read", err)
		}
		c.last = last
		c.loaded = true
	}

	ts := m.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}

	if env.ID == "" {
		env.ID = crypto.NewEnvelopeID()
	}
	env.Timestamp = ts

	// A failed append may still have been persisted; never reuse its timestamp.
	c.last = ts

	if err := m.timed("append", func() error { return m.store.Append(ctx, env) }); err != nil {
		return unavailable("mailbox append", err)
	}
	return nil
}

// Query returns envelopes for recipient newer than since. A limit outside
// 1..MaxQueryLimit is replaced by the default or clamped to the maximum.
func (m *Mailboxes) Query(ctx context.Context, recipient string, since int64, limit int) ([]models.Envelope, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	if since < 0 {
		since = 0
	}

	var envelopes []models.Envelope
	err := m.timed("query", func() (err error) {
		envelopes, err = m.store.Query(ctx, recipient, since, limit)
		return err
	})
	if err != nil {
		return nil, unavailable("mailbox query", err)
	}
	if envelopes == nil {
		envelopes = []models.Envelope{}
	}
	return envelopes, nil
}

// Purge drops envelopes older than retention, then forgets the clocks of
// mailboxes left empty.
func (m *Mailboxes) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	before := m.now().Add(-retention).UnixMilli()

	var removed int64
	err := m.timed("purge", func() (err error) {
		removed, err = m.store.Purge(ctx, before)
		return err
	})
	if err != nil {
		return removed, unavailable("mailbox purge", err)
	}
	metrics.EnvelopesPurged.Add(float64(removed))
	m.dropIdleClocks(before)
	return removed, nil
}

// Ping checks the backing store.
func (m *Mailboxes) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Mailboxes) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.MailboxLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}
