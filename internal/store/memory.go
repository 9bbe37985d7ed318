package store

import (
	"context"
	"sort"
	"sync"

	"github.com/agora-protocol/relay/internal/models"
)

// memoryMailbox is one recipient's log, sorted by Timestamp. A dropped
// mailbox has been removed from the store by Purge.
type memoryMailbox struct {
	mu        sync.RWMutex
	envelopes []models.Envelope
	dropped   bool
}

// MemoryStore keeps mailboxes in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	mailboxes map[string]*memoryMailbox
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mailboxes: make(map[string]*memoryMailbox)}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) mailbox(recipient string, create bool) *memoryMailbox {
	s.mu.RLock()
	mb := s.mailboxes[recipient]
	s.mu.RUnlock()
	if mb != nil || !create {
		return mb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if mb = s.mailboxes[recipient]; mb == nil {
		mb = &memoryMailbox{}
		s.mailboxes[recipient] = mb
	}
	return mb
}

// Append stores an envelope.
func (s *MemoryStore) Append(ctx context.Context, env *models.Envelope) error {
	mb := s.mailbox(env.To, true)
	mb.mu.Lock()
	for mb.dropped {
		mb.mu.Unlock()
		mb = s.mailbox(env.To, true)
		mb.mu.Lock()
	}
	defer mb.mu.Unlock()

	// Keep the slice sorted even if a caller appends out of order.
	i := sort.Search(len(mb.envelopes), func(i int) bool {
		return mb.envelopes[i].Timestamp > env.Timestamp
	})
	mb.envelopes = append(mb.envelopes, models.Envelope{})
	copy(mb.envelopes[i+1:], mb.envelopes[i:])
	mb.envelopes[i] = *env
	return nil
}

// Query returns envelopes newer than since.
func (s *MemoryStore) Query(ctx context.Context, recipient string, since int64, limit int) ([]models.Envelope, error) {
	mb := s.mailbox(recipient, false)
	if mb == nil {
		return []models.Envelope{}, nil
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	start := sort.Search(len(mb.envelopes), func(i int) bool {
		return mb.envelopes[i].Timestamp > since
	})
	end := len(mb.envelopes)
	if limit > 0 && end-start > limit {
		end = start + limit
	}

	out := make([]models.Envelope, end-start)
	copy(out, mb.envelopes[start:end])
	return out, nil
}

// LastTimestamp returns the newest timestamp for recipient.
func (s *MemoryStore) LastTimestamp(ctx context.Context, recipient string) (int64, error) {
	mb := s.mailbox(recipient, false)
	if mb == nil {
		return 0, nil
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if len(mb.envelopes) == 0 {
		return 0, nil
	}
	return mb.envelopes[len(mb.envelopes)-1].Timestamp, nil
}

// Purge drops envelopes older than before and forgets mailboxes left empty.
func (s *MemoryStore) Purge(ctx context.Context, before int64) (int64, error) {
	s.mu.RLock()
	boxes := make(map[string]*memoryMailbox, len(s.mailboxes))
	for key, mb := range s.mailboxes {
		boxes[key] = mb
	}
	s.mu.RUnlock()

	var removed int64
	var emptied []string
	for key, mb := range boxes {
		mb.mu.Lock()
		n := sort.Search(len(mb.envelopes), func(i int) bool {
			return mb.envelopes[i].Timestamp >= before
		})
		if n > 0 {
			mb.envelopes = append([]models.Envelope(nil), mb.envelopes[n:]...)
			removed += int64(n)
		}
		if len(mb.envelopes) == 0 {
			emptied = append(emptied, key)
		}
		mb.mu.Unlock()
	}

	if len(emptied) > 0 {
		s.mu.Lock()
		for _, key := range emptied {
			mb := s.mailboxes[key]
			if mb == nil {
				continue
			}
			mb.mu.Lock()
			if len(mb.envelopes) == 0 {
				mb.dropped = true
				delete(s.mailboxes, key)
			}
			mb.mu.Unlock()
		}
		s.mu.Unlock()
	}

	return removed, nil
}
