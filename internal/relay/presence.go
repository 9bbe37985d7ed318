package relay

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agora-protocol/relay/internal/models"
)

type presenceEntry struct {
	peer      models.Peer // LastSeen is kept in lastSeen instead
	sessionID uuid.UUID
	expiresAt time.Time
	seq       uint64
	lastSeen  atomic.Int64
}

// live reports whether the entry's session is still valid at now. A zero
// expiresAt never lapses.
func (e *presenceEntry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// Directory tracks the agents that currently hold an active session.
// Touch only needs the read lock, so polling agents never serialize on it.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*presenceEntry
	seq     uint64
	now     func() time.Time
}

// NewDirectory creates an empty presence directory.
func NewDirectory(now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		entries: make(map[string]*presenceEntry),
		now:     now,
	}
}

// Publish adds or replaces the peer record for a session that lapses at
// expiresAt. A replaced record moves to the end of the listing order.
func (d *Directory) Publish(peer models.Peer, sessionID uuid.UUID, expiresAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	e := &presenceEntry{peer: peer, sessionID: sessionID, expiresAt: expiresAt, seq: d.seq}
	e.peer.LastSeen = 0
	e.lastSeen.Store(d.now().UnixMilli())
	d.entries[peer.PublicKey] = e
}

// Remove deletes the peer record for publicKey if it still belongs to
// sessionID. It reports whether a record was removed.
func (d *Directory) Remove(publicKey string, sessionID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[publicKey]
	if !ok || e.sessionID != sessionID {
		return false
	}
	delete(d.entries, publicKey)
	return true
}

// Touch marks publicKey as seen now.
func (d *Directory) Touch(publicKey string) {
	d.mu.RLock()
	e := d.entries[publicKey]
	d.mu.RUnlock()

	if e != nil {
		e.lastSeen.Store(d.now().UnixMilli())
	}
}

// List returns the online peers in insertion order, omitting excluding.
// Peers whose session has lapsed are left out even before they are swept.
func (d *Directory) List(excluding string) []models.Peer {
	now := d.now()

	d.mu.RLock()
	entries := make([]*presenceEntry, 0, len(d.entries))
	for key, e := range d.entries {
		if key == excluding || !e.live(now) {
			continue
		}
		entries = append(entries, e)
	}
	d.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	peers := make([]models.Peer, len(entries))
	for i, e := range entries {
		peers[i] = e.peer
		peers[i].LastSeen = e.lastSeen.Load()
	}
	return peers
}

// Len returns the number of online peers.
func (d *Directory) Len() int {
	now := d.now()

	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, e := range d.entries {
		if e.live(now) {
			n++
		}
	}
	return n
}
