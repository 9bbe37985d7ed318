package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedKey    = errors.New("malformed Ed25519 key")
	ErrKeyPairMismatch = errors.New("private key does not match public key")
)

// Hex prefixes of DER-encoded Ed25519 keys. Public keys are SubjectPublicKeyInfo
// (44 bytes), private keys are PKCS#8 (48 bytes).
const (
	PublicKeyPrefix  = "302a"
	PrivateKeyPrefix = "302e"
)

// keyPairChallenge is signed with the private half during VerifyKeyPair.
var keyPairChallenge = []byte("agora-relay/register")

// ParsePublicKey decodes a hex-encoded DER SubjectPublicKeyInfo Ed25519 key.
func ParsePublicKey(publicKeyHex string) (ed25519.PublicKey, error) {
	der, err := decodeHex(publicKeyHex, PublicKeyPrefix)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an Ed25519 public key", ErrMalformedKey)
	}
	return pub, nil
}

// ParsePrivateKey decodes a hex-encoded DER PKCS#8 Ed25519 key.
func ParsePrivateKey(privateKeyHex string) (ed25519.PrivateKey, error) {
	der, err := decodeHex(privateKeyHex, PrivateKeyPrefix)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an Ed25519 private key", ErrMalformedKey)
	}
	return priv, nil
}

// VerifyKeyPair checks that privateKeyHex is the private half of publicKeyHex.
// It returns the parsed public key on success.
func VerifyKeyPair(publicKeyHex, privateKeyHex string) (ed25519.PublicKey, error) {
	pub, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return nil, err
	}
	priv, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	derived, ok := priv.Public().(ed25519.PublicKey)
	if !ok || !bytes.Equal(derived, pub) {
		return nil, ErrKeyPairMismatch
	}

	sig := ed25519.Sign(priv, keyPairChallenge)
	if !ed25519.Verify(pub, keyPairChallenge, sig) {
		return nil, ErrKeyPairMismatch
	}

	return pub, nil
}

// MarshalPublicKey encodes a public key in the relay's canonical form:
// lowercase hex of its DER SubjectPublicKeyInfo.
func MarshalPublicKey(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(der), nil
}

// MarshalPrivateKey encodes a private key as lowercase hex of its DER PKCS#8 form.
func MarshalPrivateKey(priv ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(der), nil
}

// GenerateKeyPair creates a fresh Ed25519 key pair in the hex DER encoding
// agents register with.
func GenerateKeyPair() (publicKeyHex, privateKeyHex string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	if publicKeyHex, err = MarshalPublicKey(pub); err != nil {
		return "", "", err
	}
	if privateKeyHex, err = MarshalPrivateKey(priv); err != nil {
		return "", "", err
	}
	return publicKeyHex, privateKeyHex, nil
}

// CanonicalPublicKey validates publicKeyHex and returns its canonical encoding,
// so that differently-cased spellings of one key name the same agent.
func CanonicalPublicKey(publicKeyHex string) (string, error) {
	pub, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return "", err
	}
	return MarshalPublicKey(pub)
}

func decodeHex(s, prefix string) ([]byte, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("%w: expected hex DER starting with %s", ErrMalformedKey, prefix)
	}
	der, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex encoding", ErrMalformedKey)
	}
	return der, nil
}
