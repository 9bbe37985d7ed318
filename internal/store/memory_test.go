package store

import (
	"context"
	"sync"
	"testing"

	"github.com/agora-protocol/relay/internal/models"
)

func TestMemoryStore(t *testing.T) {
	testMailboxStore(t, NewMemoryStore())
}

func TestMemoryStoreOutOfOrderAppend(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, ts := range []int64{30, 10, 20} {
		if err := s.Append(ctx, envelope(bob, ts)); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := s.Query(ctx, bob, 0, 10)
	for i, want := range []int64{10, 20, 30} {
		if got[i].Timestamp != want {
			t.Fatalf("position %d: expected %d, got %d", i, want, got[i].Timestamp)
		}
	}
}

func TestMemoryStoreConcurrentRecipients(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		recipient := bob + string(rune('a'+r))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ts := int64(1); ts <= 200; ts++ {
				if err := s.Append(ctx, envelope(recipient, ts)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for r := 0; r < 8; r++ {
		got, _ := s.Query(ctx, bob+string(rune('a'+r)), 0, 1000)
		if len(got) != 200 {
			t.Fatalf("recipient %d: expected 200 envelopes, got %d", r, len(got))
		}
	}
}

func TestMemoryStorePurgeForgetsEmptyMailboxes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, env := range []*models.Envelope{envelope(bob, 10), envelope(alice, 10), envelope(alice, 50)} {
		if err := s.Append(ctx, env); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Purge(ctx, 20); err != nil {
		t.Fatal(err)
	}
	if s.mailbox(bob, false) != nil {
		t.Fatal("emptied mailbox still held")
	}
	if s.mailbox(alice, false) == nil {
		t.Fatal("non-empty mailbox dropped")
	}

	// A dropped mailbox is recreated on the next append.
	if err := s.Append(ctx, envelope(bob, 60)); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Query(ctx, bob, 0, 10); len(got) != 1 || got[0].Timestamp != 60 {
		t.Fatalf("unexpected mailbox after re-append %+v", got)
	}
}
