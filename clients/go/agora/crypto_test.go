package agora

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/agora-protocol/relay/internal/crypto"
)

func generateTestKeypair(t *testing.T) (string, string) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return pub, priv
}

func wireBytes(t *testing.T, payload json.RawMessage) []byte {
	t.Helper()
	var sp sealedPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		t.Fatal(err)
	}
	wire, err := base64.StdEncoding.DecodeString(sp.Sealed)
	if err != nil {
		t.Fatal(err)
	}
	return wire
}

func sealedFromWire(wire []byte) json.RawMessage {
	data, _ := json.Marshal(sealedPayload{Sealed: base64.StdEncoding.EncodeToString(wire)})
	return data
}

func TestSealRoundTrip(t *testing.T) {
	bobPub, bobPriv := generateTestKeypair(t)

	sealed, err := SealPayload([]byte("Hello Bob!"), bobPub)
	if err != nil {
		t.Fatal(err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed payload, got %s", sealed)
	}

	pt, err := OpenPayload(sealed, bobPriv)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "Hello Bob!" {
		t.Fatalf("expected 'Hello Bob!', got %q", pt)
	}
}

func TestSealWireFormat(t *testing.T) {
	pub, _ := generateTestKeypair(t)

	sealed, err := SealPayload([]byte("test"), pub)
	if err != nil {
		t.Fatal(err)
	}
	// 32 (eph pk) + 12 (nonce) + 4 (plaintext) + 16 (tag) = 64
	if n := len(wireBytes(t, sealed)); n != 64 {
		t.Fatalf("expected wire length 64, got %d", n)
	}
}

func TestSealIsRandomized(t *testing.T) {
	pub, priv := generateTestKeypair(t)

	ct1, _ := SealPayload([]byte("same"), pub)
	ct2, _ := SealPayload([]byte("same"), pub)
	if string(ct1) == string(ct2) {
		t.Fatal("ciphertexts should differ for same plaintext")
	}

	pt1, _ := OpenPayload(ct1, priv)
	pt2, _ := OpenPayload(ct2, priv)
	if string(pt1) != "same" || string(pt2) != "same" {
		t.Fatal("both should decrypt to 'same'")
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	pub, _ := generateTestKeypair(t)
	_, wrongPriv := generateTestKeypair(t)

	sealed, _ := SealPayload([]byte("secret"), pub)

	_, err := OpenPayload(sealed, wrongPriv)
	if err == nil {
		t.Fatal("expected error with wrong key")
	}
	if !ErrCrypto(err) {
		t.Fatalf("expected CryptoError, got %T", err)
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	pub, priv := generateTestKeypair(t)

	sealed, _ := SealPayload([]byte("secret"), pub)
	wire := wireBytes(t, sealed)
	wire[len(wire)-1] ^= 0xFF

	if _, err := OpenPayload(sealedFromWire(wire), priv); err == nil {
		t.Fatal("expected error with tampered ciphertext")
	}
}

func TestOpenTruncatedCiphertext(t *testing.T) {
	_, priv := generateTestKeypair(t)

	if _, err := OpenPayload(sealedFromWire(make([]byte, 30)), priv); err == nil {
		t.Fatal("expected error with truncated ciphertext")
	}
}

func TestOpenUnsealedPayload(t *testing.T) {
	_, priv := generateTestKeypair(t)

	for _, payload := range []string{`{"text":"hi"}`, `42`, `{"sealed":""}`} {
		if IsSealed(json.RawMessage(payload)) {
			t.Fatalf("%s reported as sealed", payload)
		}
		if _, err := OpenPayload(json.RawMessage(payload), priv); !ErrCrypto(err) {
			t.Fatalf("expected CryptoError for %s, got %v", payload, err)
		}
	}
}

func TestSealEmptyAndUnicode(t *testing.T) {
	pub, priv := generateTestKeypair(t)

	for _, msg := range []string{"", "Hello \U0001F30D❤️ 日本語", strings.Repeat("A", 8000)} {
		sealed, err := SealPayload([]byte(msg), pub)
		if err != nil {
			t.Fatal(err)
		}
		pt, err := OpenPayload(sealed, priv)
		if err != nil {
			t.Fatal(err)
		}
		if string(pt) != msg {
			t.Fatalf("round-trip mismatch for %d byte message", len(msg))
		}
	}
}

func TestSealInvalidRecipient(t *testing.T) {
	_, priv := generateTestKeypair(t)

	for _, key := range []string{"", "302a00", priv} {
		_, err := SealPayload([]byte("test"), key)
		if !ErrCrypto(err) {
			t.Fatalf("expected CryptoError for %q, got %v", key, err)
		}
	}
}

func TestSealBidirectional(t *testing.T) {
	alicePub, alicePriv := generateTestKeypair(t)
	bobPub, bobPriv := generateTestKeypair(t)

	ct1, _ := SealPayload([]byte("Hi Bob"), bobPub)
	if pt, err := OpenPayload(ct1, bobPriv); err != nil || string(pt) != "Hi Bob" {
		t.Fatal("Alice->Bob failed")
	}

	ct2, _ := SealPayload([]byte("Hi Alice"), alicePub)
	if pt, err := OpenPayload(ct2, alicePriv); err != nil || string(pt) != "Hi Alice" {
		t.Fatal("Bob->Alice failed")
	}
}
