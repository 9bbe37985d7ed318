package agora

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/agora-protocol/relay/internal/crypto"
)

const (
	sealVersion      = "agora-sealed-v1"
	ephemeralPKSize  = 32
	nonceSize        = chacha20poly1305.NonceSize
	keySize          = chacha20poly1305.KeySize
	tagSize          = chacha20poly1305.Overhead
	minCiphertextLen = ephemeralPKSize + nonceSize + tagSize // 60
)

// CryptoError represents a sealing or opening failure.
type CryptoError struct {
	Message string
}

func (e *CryptoError) Error() string {
	return e.Message
}

// ErrCrypto checks if an error is a CryptoError.
func ErrCrypto(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// sealedPayload is the JSON shape the relay stores for a sealed message.
type sealedPayload struct {
	Sealed string `json:"sealed"`
}

func ed25519PubToX25519(edPub ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}
	return p.BytesMontgomery(), nil
}

func ed25519SeedToX25519Private(seed []byte) []byte {
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// deriveKey derives the AEAD key with HKDF-SHA256, salted with both public halves.
func deriveKey(sharedSecret, ephemeralPK, recipientX25519PK []byte) ([]byte, error) {
	salt := make([]byte, 0, len(ephemeralPK)+len(recipientX25519PK))
	salt = append(salt, ephemeralPK...)
	salt = append(salt, recipientX25519PK...)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, salt, []byte(sealVersion)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// SealPayload encrypts plaintext for the holder of recipientPublicKey (DER
// hex) and returns a payload of the form {"sealed": "<base64>"}. The relay
// stores it like any other JSON.
func SealPayload(plaintext []byte, recipientPublicKey string) (json.RawMessage, error) {
	recipientEdPub, err := crypto.ParsePublicKey(recipientPublicKey)
	if err != nil {
		return nil, &CryptoError{Message: fmt.Sprintf("invalid recipient public key: %v", err)}
	}

	recipientX25519Pub, err := ed25519PubToX25519(recipientEdPub)
	if err != nil {
		return nil, &CryptoError{Message: fmt.Sprintf("failed to convert recipient key: %v", err)}
	}

	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return nil, err
	}
	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	sharedSecret, err := curve25519.X25519(ephPriv[:], recipientX25519Pub)
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(sharedSecret, ephPub, recipientX25519Pub)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	// Wire format: ephemeral_pk[32] + nonce[12] + ciphertext[N+16]
	wire := make([]byte, 0, ephemeralPKSize+nonceSize+len(plaintext)+tagSize)
	wire = append(wire, ephPub...)
	wire = append(wire, nonce...)
	wire = aead.Seal(wire, nonce, plaintext, nil)

	return json.Marshal(sealedPayload{Sealed: base64.StdEncoding.EncodeToString(wire)})
}

// IsSealed reports whether payload was produced by SealPayload.
func IsSealed(payload json.RawMessage) bool {
	var sp sealedPayload
	return json.Unmarshal(payload, &sp) == nil && sp.Sealed != ""
}

// OpenPayload decrypts a sealed payload with the recipient's private key (DER hex).
func OpenPayload(payload json.RawMessage, privateKey string) ([]byte, error) {
	var sp sealedPayload
	if err := json.Unmarshal(payload, &sp); err != nil || sp.Sealed == "" {
		return nil, &CryptoError{Message: "payload is not sealed"}
	}

	priv, err := crypto.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, &CryptoError{Message: fmt.Sprintf("invalid private key: %v", err)}
	}

	wire, err := base64.StdEncoding.DecodeString(sp.Sealed)
	if err != nil {
		return nil, &CryptoError{Message: fmt.Sprintf("invalid base64 ciphertext: %v", err)}
	}
	if len(wire) < minCiphertextLen {
		return nil, &CryptoError{Message: fmt.Sprintf("ciphertext too short: %d bytes, minimum %d", len(wire), minCiphertextLen)}
	}

	ephPK := wire[:ephemeralPKSize]
	nonce := wire[ephemeralPKSize : ephemeralPKSize+nonceSize]
	ciphertext := wire[ephemeralPKSize+nonceSize:]

	ownX25519Priv := ed25519SeedToX25519Private(priv.Seed())
	ownX25519Pub, err := curve25519.X25519(ownX25519Priv, curve25519.Basepoint)
	if err != nil {
		return nil, &CryptoError{Message: fmt.Sprintf("failed to derive X25519 public key: %v", err)}
	}

	sharedSecret, err := curve25519.X25519(ownX25519Priv, ephPK)
	if err != nil {
		return nil, &CryptoError{Message: "decryption failed: invalid ephemeral key"}
	}

	key, err := deriveKey(sharedSecret, ephPK, ownX25519Pub)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Message: "decryption failed: wrong key or tampered ciphertext"}
	}
	return plaintext, nil
}
