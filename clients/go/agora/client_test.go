package agora

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agora-protocol/relay/internal/api"
	"github.com/agora-protocol/relay/internal/config"
	"github.com/agora-protocol/relay/internal/relay"
	"github.com/agora-protocol/relay/internal/store"
)

func newTestRelay(t *testing.T) *httptest.Server {
	t.Helper()
	cfg, err := config.FromEnv(func(key string) string {
		if key == "RATE_LIMIT_WHITELIST" {
			return "127.0.0.1,::1"
		}
		return ""
	})
	if err != nil {
		t.Fatal(err)
	}

	rl := relay.New(store.NewMemoryStore(), relay.Options{Logger: zerolog.Nop()})
	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), cfg, rl, nil))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	t.Setenv("AGORA_CONFIG", t.TempDir())
	return NewClient(baseURL)
}

func TestClientConversation(t *testing.T) {
	srv := newTestRelay(t)
	ctx := context.Background()

	alice := newTestClient(t, srv.URL)
	bob := newTestClient(t, srv.URL)

	if _, err := alice.Connect(ctx, "alice", map[string]any{"role": "publisher"}); err != nil {
		t.Fatal(err)
	}
	resp, err := bob.Connect(ctx, "bob", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Peers) != 1 || resp.Peers[0].Name != "alice" || resp.Peers[0].Metadata["role"] != "publisher" {
		t.Fatalf("expected alice in peers, got %+v", resp.Peers)
	}

	peers, err := alice.Peers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].PublicKey != bob.PublicKey {
		t.Fatalf("expected bob in peers, got %+v", peers)
	}

	sent, err := alice.Send(ctx, SendRequest{To: bob.PublicKey, Type: "publish", Payload: map[string]string{"text": "Hi!"}})
	if err != nil {
		t.Fatal(err)
	}

	inbox, err := bob.Poll(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 || inbox[0].ID != sent.EnvelopeID || inbox[0].FromName != "alice" {
		t.Fatalf("unexpected inbox %+v", inbox)
	}

	if _, err := bob.SendSealed(ctx, inbox[0].From, "reply", []byte("for your eyes only"), inbox[0].ID); err != nil {
		t.Fatal(err)
	}

	replies, err := alice.Poll(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 1 || replies[0].InReplyTo != sent.EnvelopeID || !IsSealed(replies[0].Payload) {
		t.Fatalf("unexpected replies %+v", replies)
	}
	plaintext, err := alice.Open(replies[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(plaintext) != "for your eyes only" {
		t.Fatalf("unexpected plaintext %q", plaintext)
	}

	// Polling past the newest timestamp returns nothing.
	more, err := alice.Poll(ctx, replies[0].Timestamp, 0)
	if err != nil || len(more) != 0 {
		t.Fatalf("expected no further messages, got %v %v", more, err)
	}

	oldToken := alice.Token
	if err := alice.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if alice.Token != "" {
		t.Fatal("token should be cleared after disconnect")
	}

	alice.Token = oldToken
	_, err = alice.Send(ctx, SendRequest{To: bob.PublicKey, Payload: 1})
	if !IsKind(err, "InvalidToken") {
		t.Fatalf("expected InvalidToken, got %v", err)
	}
}

func TestClientRequiresConnection(t *testing.T) {
	srv := newTestRelay(t)
	c := newTestClient(t, srv.URL)

	if _, err := c.Peers(context.Background()); !IsKind(err, "InvalidToken") {
		t.Fatalf("expected InvalidToken, got %v", err)
	}
}

func TestClientAPIErrors(t *testing.T) {
	srv := newTestRelay(t)
	ctx := context.Background()
	c := newTestClient(t, srv.URL)

	if _, err := c.Connect(ctx, "c", nil); err != nil {
		t.Fatal(err)
	}

	_, err := c.Send(ctx, SendRequest{To: "not-a-key", Payload: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 400 || apiErr.Kind != "InvalidRecipient" {
		t.Fatalf("expected 400 InvalidRecipient, got %v", err)
	}
}

func TestClientConfigPersistence(t *testing.T) {
	srv := newTestRelay(t)
	dir := t.TempDir()
	t.Setenv("AGORA_CONFIG", dir)

	c := NewClient(srv.URL)
	if _, err := c.Connect(context.Background(), "persisted", nil); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, "private.key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected 0600 key file, got %v", info.Mode().Perm())
	}

	reloaded := NewClient(srv.URL)
	if reloaded.PublicKey != c.PublicKey || reloaded.Token != c.Token || reloaded.Name != "persisted" {
		t.Fatalf("identity not reloaded: %+v", reloaded)
	}

	// The saved session keeps working.
	if _, err := reloaded.Peers(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigRejectsMismatchedKeys(t *testing.T) {
	dir := t.TempDir()
	pub, _ := generateTestKeypair(t)
	_, priv := generateTestKeypair(t)

	data, _ := json.Marshal(Config{PublicKey: pub})
	os.WriteFile(filepath.Join(dir, "agent.json"), data, 0600)
	os.WriteFile(filepath.Join(dir, "private.key"), []byte(priv), 0600)

	c := &Client{ConfigDir: dir}
	if err := c.LoadConfig(); err == nil {
		t.Fatal("expected mismatched identity to be rejected")
	}
}

func TestClientHealth(t *testing.T) {
	srv := newTestRelay(t)
	c := newTestClient(t, srv.URL)

	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %s", resp.Status)
	}
}
