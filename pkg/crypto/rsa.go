package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"sync"
)

// signingKey is the one process-wide piece of state this package keeps: a
// lazily-generated, cached RSA-2048 signing key (spec.md §9 Design Notes:
// "a cached RSA signing key handle is the only process-wide state"). It is
// generated once per process rather than parsed from an embedded blob,
// since nothing in this module needs to verify against Nintendo's real
// signing key (spec.md §1 Non-goals) — only internal self-consistency
// between the signature written into an NCA and the modulus patched into
// its ACID.
var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
	signingKeyErr  error
)

func loadSigningKey() (*rsa.PrivateKey, error) {
	signingKeyOnce.Do(func() {
		signingKey, signingKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	return signingKey, signingKeyErr
}

// ResetSigningKeyForTest discards the cached signing key so tests can
// exercise lazy-once initialization deterministically per test case.
func ResetSigningKeyForTest() {
	signingKeyOnce = sync.Once{}
	signingKey = nil
	signingKeyErr = nil
}

// RSAPssSign signs data with SHA-256/PSS (salt length 32) using the
// process's cached RSA-2048 private key, returning a 256-byte signature.
// No key is embedded: the key is generated on first use, so signatures
// from different processes verify only against their own PublicModulus.
func RSAPssSign(data []byte) ([]byte, error) {
	key, err := loadSigningKey()
	if err != nil {
		return nil, fmt.Errorf("rsa pss sign: %w", err)
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: 32,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("rsa pss sign: %w", err)
	}
	return sig, nil
}

// PublicModulus returns the 256-byte public modulus to patch into an
// ACID, matching the key RSAPssSign signs with.
func PublicModulus() ([]byte, error) {
	key, err := loadSigningKey()
	if err != nil {
		return nil, fmt.Errorf("rsa public modulus: %w", err)
	}
	n := key.PublicKey.N.Bytes()
	if len(n) > 256 {
		return nil, fmt.Errorf("unexpected modulus length %d", len(n))
	}
	out := make([]byte, 256)
	copy(out[256-len(n):], n)
	return out, nil
}
