package signer

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySet publishes a Signer's public key in JWK form using the
// lestrrat-go/jwx/v2 package. A microchan deployment that wants
// token-based key rotation can serve this as a JWKS document for peers
// to fetch and validate bearer tokens against.
type KeySet struct {
	set jwk.Set
}

// NewKeySet builds a one-key JWK set for an Ed25519 Signer, tagged with kid.
func NewKeySet(s *Signer, kid string) (*KeySet, error) {
	if s.Algorithm() != AlgEd25519 {
		return nil, fmt.Errorf("signer: JWK publication only supported for %s, got %s", AlgEd25519, s.Algorithm())
	}

	key, err := jwk.FromRaw(ed25519.PublicKey(s.ed25519Pub))
	if err != nil {
		return nil, fmt.Errorf("signer: building jwk.Key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, fmt.Errorf("signer: setting kid: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, "EdDSA"); err != nil {
		return nil, fmt.Errorf("signer: setting alg: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("signer: adding key to set: %w", err)
	}
	return &KeySet{set: set}, nil
}

// MarshalJSON renders the key set as a standard JWKS document.
func (ks *KeySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ks.set)
}

// LookupKeyID returns the key with the given kid, if present.
func (ks *KeySet) LookupKeyID(kid string) (jwk.Key, bool) {
	return ks.set.LookupKeyID(kid)
}
