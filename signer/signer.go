// Package signer provides a sign/verify façade over control-plane payloads
// exchanged alongside the carrier handshake: canonical-JSON signing with
// Ed25519 by default, a secp256k1 ECDSA fallback for keystores that can't
// produce an Ed25519 key, JWK publication of the public key, and bearer-token
// parsing for short-lived control tokens.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Algorithm identifies which signature scheme a Signer uses.
type Algorithm string

const (
	AlgEd25519        Algorithm = "ed25519"
	AlgSecp256k1ECDSA Algorithm = "secp256k1-ecdsa"
)

// ErrVerifyKeyMismatch is returned by ParseBearerWithKey when the public key
// does not decode to an Ed25519 key of the expected length. Verify reports
// such a key as false instead.
var ErrVerifyKeyMismatch = errors.New("signer: public key has wrong length for algorithm")

// KeySource produces signing key material. The default source generates an
// Ed25519 key pair; callers with a keystore that cannot produce Ed25519 keys
// (e.g. some PKCS#11 tokens) supply a KeySource whose GenerateEd25519
// returns an error, triggering the secp256k1 fallback in New.
type KeySource interface {
	GenerateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error)
}

// defaultKeySource generates a fresh Ed25519 key pair via crypto/rand.
type defaultKeySource struct{}

func (defaultKeySource) GenerateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Signer signs and verifies canonical-JSON payloads.
type Signer struct {
	alg Algorithm

	ed25519Pub  ed25519.PublicKey
	ed25519Priv ed25519.PrivateKey

	secpPriv *secp256k1.PrivateKey
	secpPub  *secp256k1.PublicKey
}

// Option configures a Signer.
type Option func(*signerConfig)

type signerConfig struct {
	source KeySource
}

// WithKeySource overrides the default Ed25519 key source.
func WithKeySource(s KeySource) Option {
	return func(c *signerConfig) { c.source = s }
}

// New creates a Signer, preferring Ed25519 and falling back to a secp256k1
// ECDSA key pair if the configured KeySource cannot produce one.
func New(opts ...Option) (*Signer, error) {
	cfg := &signerConfig{source: defaultKeySource{}}
	for _, opt := range opts {
		opt(cfg)
	}

	pub, priv, err := cfg.source.GenerateEd25519()
	if err == nil {
		return &Signer{alg: AlgEd25519, ed25519Pub: pub, ed25519Priv: priv}, nil
	}

	secpPriv, genErr := secp256k1.GeneratePrivateKey()
	if genErr != nil {
		return nil, fmt.Errorf("signer: ed25519 unavailable (%v) and secp256k1 fallback failed: %w", err, genErr)
	}
	return &Signer{alg: AlgSecp256k1ECDSA, secpPriv: secpPriv, secpPub: secpPriv.PubKey()}, nil
}

// Algorithm reports which scheme this Signer uses.
func (s *Signer) Algorithm() Algorithm { return s.alg }

// Sign canonicalizes payload and returns a base64url-encoded signature.
func (s *Signer) Sign(payload map[string]any) (string, error) {
	data, err := canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("signer: canonicalize: %w", err)
	}

	switch s.alg {
	case AlgEd25519:
		sig := ed25519.Sign(s.ed25519Priv, data)
		return base64.RawURLEncoding.EncodeToString(sig), nil
	case AlgSecp256k1ECDSA:
		hash := sha256.Sum256(data)
		sig := ecdsa.Sign(s.secpPriv, hash[:])
		return base64.RawURLEncoding.EncodeToString(sig.Serialize()), nil
	default:
		return "", fmt.Errorf("signer: unknown algorithm %q", s.alg)
	}
}

// Verify canonicalizes payload and checks sig against pubKey (a
// base64url-encoded public key in the same format PublicKeyB64 returns).
// It reports false rather than an error on any malformed input.
func (s *Signer) Verify(payload map[string]any, sig, pubKey string) bool {
	data, err := canonicalize(payload)
	if err != nil {
		return false
	}
	sigBytes, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	keyBytes, err := base64.RawURLEncoding.DecodeString(pubKey)
	if err != nil {
		return false
	}

	switch s.alg {
	case AlgEd25519:
		if len(keyBytes) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(keyBytes), data, sigBytes)
	case AlgSecp256k1ECDSA:
		pub, err := secp256k1.ParsePubKey(keyBytes)
		if err != nil {
			return false
		}
		parsedSig, err := ecdsa.ParseDERSignature(sigBytes)
		if err != nil {
			return false
		}
		hash := sha256.Sum256(data)
		return parsedSig.Verify(hash[:], pub)
	default:
		return false
	}
}

// PublicKeyB64 returns this Signer's public key, base64url-encoded.
func (s *Signer) PublicKeyB64() string {
	switch s.alg {
	case AlgEd25519:
		return base64.RawURLEncoding.EncodeToString(s.ed25519Pub)
	case AlgSecp256k1ECDSA:
		return base64.RawURLEncoding.EncodeToString(s.secpPub.SerializeCompressed())
	default:
		return ""
	}
}
