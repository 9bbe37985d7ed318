package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/agora-protocol/relay/internal/models"
)

const (
	alice = "302a300506032b6570032100aa"
	bob   = "302a300506032b6570032100bb"
)

func envelope(to string, ts int64) *models.Envelope {
	return &models.Envelope{
		ID:        fmt.Sprintf("env-%s-%d", to[len(to)-2:], ts),
		From:      alice,
		FromName:  "alice",
		To:        to,
		Type:      "publish",
		Payload:   json.RawMessage(fmt.Sprintf(`{"n":%d}`, ts)),
		Timestamp: ts,
	}
}

// testMailboxStore runs the behaviour every MailboxStore must share.
func testMailboxStore(t *testing.T, s MailboxStore) {
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	t.Run("empty mailbox", func(t *testing.T) {
		got, err := s.Query(ctx, "302a-nobody", 0, 50)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no envelopes, got %d", len(got))
		}
		last, err := s.LastTimestamp(ctx, "302a-nobody")
		if err != nil {
			t.Fatal(err)
		}
		if last != 0 {
			t.Fatalf("expected 0, got %d", last)
		}
	})

	for ts := int64(1000); ts <= 1010; ts++ {
		if err := s.Append(ctx, envelope(bob, ts)); err != nil {
			t.Fatal(err)
		}
	}
	reply := envelope(alice, 2000)
	reply.From = bob
	reply.InReplyTo = "env-bb-1000"
	if err := s.Append(ctx, reply); err != nil {
		t.Fatal(err)
	}

	t.Run("ordered and isolated per recipient", func(t *testing.T) {
		got, err := s.Query(ctx, bob, 0, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 11 {
			t.Fatalf("expected 11 envelopes, got %d", len(got))
		}
		for i, env := range got {
			if env.Timestamp != int64(1000+i) {
				t.Fatalf("envelope %d has timestamp %d", i, env.Timestamp)
			}
			if env.To != bob {
				t.Fatalf("envelope for %s delivered to bob", env.To)
			}
		}
	})

	t.Run("since is exclusive", func(t *testing.T) {
		got, err := s.Query(ctx, bob, 1005, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 5 || got[0].Timestamp != 1006 {
			t.Fatalf("expected 5 envelopes starting at 1006, got %d", len(got))
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.Query(ctx, bob, 0, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 || got[2].Timestamp != 1002 {
			t.Fatalf("expected first 3 envelopes, got %d", len(got))
		}
	})

	t.Run("fields round-trip", func(t *testing.T) {
		got, err := s.Query(ctx, alice, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 envelope, got %d", len(got))
		}
		env := got[0]
		if env.ID != reply.ID || env.From != bob || env.FromName != "alice" || env.Type != "publish" {
			t.Fatalf("unexpected envelope %+v", env)
		}
		if env.InReplyTo != "env-bb-1000" {
			t.Fatalf("expected inReplyTo env-bb-1000, got %q", env.InReplyTo)
		}
		if string(env.Payload) != `{"n":2000}` {
			t.Fatalf("payload changed: %s", env.Payload)
		}
	})

	t.Run("last timestamp", func(t *testing.T) {
		last, err := s.LastTimestamp(ctx, bob)
		if err != nil {
			t.Fatal(err)
		}
		if last != 1010 {
			t.Fatalf("expected 1010, got %d", last)
		}
	})

	t.Run("purge", func(t *testing.T) {
		removed, err := s.Purge(ctx, 1005)
		if err != nil {
			t.Fatal(err)
		}
		if removed != 5 {
			t.Fatalf("expected 5 removed, got %d", removed)
		}
		got, err := s.Query(ctx, bob, 0, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 6 || got[0].Timestamp != 1005 {
			t.Fatalf("expected 6 envelopes from 1005, got %d", len(got))
		}
		if got, _ := s.Query(ctx, alice, 0, 10); len(got) != 1 {
			t.Fatal("purge removed a newer envelope")
		}
	})
}
