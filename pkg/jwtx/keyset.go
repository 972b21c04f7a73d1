package jwtx

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// JWK is a public key in JSON Web Key format (RFC 7517). Only Ed25519 over
// the "OKP" key type is in use here.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewEd25519JWK builds an OKP JWK for an Ed25519 public key.
func NewEd25519JWK(kid, use, alg string, pub ed25519.PublicKey) JWK {
	return JWK{
		Kty: "OKP",
		Use: use,
		Alg: alg,
		Kid: kid,
		Crv: "Ed25519",
		X:   base64.RawURLEncoding.EncodeToString(pub),
	}
}

// KeySet holds the public verification keys in memory, keyed by kid. It is
// safe for concurrent use: verification happens on every request while new
// keys are only added at startup.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]JWK
}

func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]JWK)}
}

// AddSigner registers a signer's public key with the set.
func (ks *KeySet) AddSigner(s Signer) error {
	if err := s.Validate(); err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[s.KID()] = s.PublicJWK()
	return nil
}

// Get returns the Ed25519 public key for a kid.
func (ks *KeySet) Get(kid string) (ed25519.PublicKey, error) {
	ks.mu.RLock()
	jwk, ok := ks.keys[kid]
	ks.mu.RUnlock()
	if !ok {
		return nil, ErrNoKey
	}

	raw, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, ErrNoKey
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("jwtx: invalid Ed25519 public key size")
	}
	return ed25519.PublicKey(raw), nil
}

// JWKS returns a snapshot of all public keys for the JWKS endpoint.
func (ks *KeySet) JWKS() JWKS {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := JWKS{Keys: make([]JWK, 0, len(ks.keys))}
	for _, jwk := range ks.keys {
		out.Keys = append(out.Keys, jwk)
	}
	return out
}

// IsReady reports whether at least one key is loaded.
func (ks *KeySet) IsReady() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys) > 0
}
