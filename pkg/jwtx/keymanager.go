package jwtx

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
)

// KeyManager owns the signing keys and the matching verifier for one
// instance. Multiple keys spread signing load and leave room for rotation;
// signing picks one at random, verification resolves by kid.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	signers []Signer
}

// KeyManagerOptions configures an ephemeral KeyManager.
type KeyManagerOptions struct {
	// Issuer is the issuer claim (iss) validated on every token.
	Issuer string

	// NumKeys is how many signing keys to generate (default 3, max 10).
	NumKeys int
}

// NewEphemeralKeyManager generates in-memory Ed25519 signing keys. Nothing
// is persisted: a restart invalidates all outstanding access tokens, which
// is acceptable because access tokens are short-lived and refresh tokens
// are validated against the store instead.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = 3
	}
	if numKeys > 10 {
		numKeys = 10
	}

	keyset := NewKeySet()
	signers := make([]Signer, 0, numKeys)

	for i := 0; i < numKeys; i++ {
		kid, err := randomKeyID()
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key ID: %w", err)
		}

		signer, err := NewEphemeralSigner(kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate signer %d: %w", i+1, err)
		}

		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: add signer %d to keyset: %w", i+1, err)
		}
		signers = append(signers, signer)
	}

	return &KeyManager{
		Verifier: NewVerifier(keyset, opts.Issuer),
		KeySet:   keyset,
		signers:  signers,
	}, nil
}

// GetSigner returns a randomly selected signing key.
func (km *KeyManager) GetSigner() Signer {
	if len(km.signers) == 1 {
		return km.signers[0]
	}
	return km.signers[mrand.IntN(len(km.signers))]
}

func randomKeyID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
