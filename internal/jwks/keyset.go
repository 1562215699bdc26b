// File: internal/jwks/keyset.go
package jwks

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// SigningKey is one public key entry from the provider's key set. Immutable
// once fetched.
type SigningKey struct {
	KeyID     string
	KeyType   string
	Use       string
	Algorithm string
	Public    crypto.PublicKey
}

// KeySet is the cached collection of signing keys plus fetch metadata. A
// KeySet is never mutated in place; the cache swaps whole snapshots.
type KeySet struct {
	Keys      []SigningKey
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Key returns the signing key with the given id.
func (ks *KeySet) Key(kid string) (*SigningKey, bool) {
	for i := range ks.Keys {
		if ks.Keys[i].KeyID == kid {
			return &ks.Keys[i], true
		}
	}
	return nil, false
}

// Fresh reports whether the set is still within its TTL.
func (ks *KeySet) Fresh(now time.Time) bool {
	return now.Before(ks.ExpiresAt)
}

// jwkEntry is the wire shape of one JWKS entry.
type jwkEntry struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

// ParseKeySet decodes a JWKS document into a KeySet snapshot. Entries that
// are not signature keys, or whose material cannot be decoded, are skipped.
// An empty result is an error: a key set with no usable keys cannot verify
// anything.
func ParseKeySet(body []byte, fetchedAt time.Time, ttl time.Duration) (*KeySet, error) {
	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed JWKS document: %w", err)
	}

	ks := &KeySet{
		FetchedAt: fetchedAt,
		ExpiresAt: fetchedAt.Add(ttl),
	}

	for _, e := range doc.Keys {
		if e.Use != "" && e.Use != "sig" {
			continue
		}
		if e.Kid == "" {
			continue
		}
		pub, err := e.publicKey()
		if err != nil {
			continue
		}
		ks.Keys = append(ks.Keys, SigningKey{
			KeyID:     e.Kid,
			KeyType:   e.Kty,
			Use:       e.Use,
			Algorithm: e.Alg,
			Public:    pub,
		})
	}

	if len(ks.Keys) == 0 {
		return nil, fmt.Errorf("JWKS document contains no usable signing keys")
	}
	return ks, nil
}

func (e jwkEntry) publicKey() (crypto.PublicKey, error) {
	switch e.Kty {
	case "RSA":
		return e.rsaPublicKey()
	case "EC":
		return e.ecdsaPublicKey()
	default:
		return nil, fmt.Errorf("unsupported key type %q", e.Kty)
	}
}

func (e jwkEntry) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(e.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, fmt.Errorf("empty RSA key material")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

func (e jwkEntry) ecdsaPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch e.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", e.Crv)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(e.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(e.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
