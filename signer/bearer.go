package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrBearerAlgorithm is returned when a bearer token's signing method
// doesn't match what IssueBearer produces.
var ErrBearerAlgorithm = fmt.Errorf("signer: unexpected bearer token signing method")

// IssueBearer mints a short-lived EdDSA-signed JWT carrying claims, the
// control-plane token exchanged alongside a carrier handshake so a peer can
// prove it holds the channel owner's key without signing every payload.
// Only supported for an Ed25519 Signer.
func (s *Signer) IssueBearer(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	if s.Algorithm() != AlgEd25519 {
		return "", fmt.Errorf("signer: bearer tokens require %s, got %s", AlgEd25519, s.Algorithm())
	}

	now := time.Now()
	merged := jwt.MapClaims{}
	for k, v := range claims {
		merged[k] = v
	}
	merged["iat"] = jwt.NewNumericDate(now)
	merged["exp"] = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, merged)
	return token.SignedString(s.ed25519Priv)
}

// ParseBearer validates a token minted by IssueBearer against this Signer's
// own public key and returns its claims. Unlike a JWKS-backed validator this
// checks against a single known key, since a control token here is always
// checked by the same party that issued it or that holds its published
// public key.
func (s *Signer) ParseBearer(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, ErrBearerAlgorithm
		}
		return s.ed25519Pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("signer: parsing bearer token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("signer: bearer token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("signer: unexpected claims type")
	}
	return claims, nil
}

// ParseBearerWithKey validates a token against an externally supplied
// Ed25519 public key (base64url-encoded, as returned by PublicKeyB64),
// for verifying a peer's bearer token rather than one's own.
func ParseBearerWithKey(tokenString, pubKeyB64 string) (jwt.MapClaims, error) {
	keyBytes, err := base64.RawURLEncoding.DecodeString(pubKeyB64)
	if err != nil {
		return nil, fmt.Errorf("signer: decoding public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, ErrVerifyKeyMismatch
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, ErrBearerAlgorithm
		}
		return ed25519.PublicKey(keyBytes), nil
	})
	if err != nil {
		return nil, fmt.Errorf("signer: parsing bearer token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("signer: bearer token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("signer: unexpected claims type")
	}
	return claims, nil
}
