// Package monero implements the Monero-side key and proof primitives the
// swap needs: scalar/point types compatible with monero-wallet-rpc, and the
// spend-key combination used to build Bob's claim key once he has Alice's
// adaptor secret, plus standard address encoding (address.go). Full
// ed25519 signing is out of scope (spec.md §1 Non-goals): monero-wallet-rpc
// does that for us over its RPC surface in monero/.
package monero

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
)

// PrivateSpendKey is a Monero private spend key: an ed25519 scalar mod l.
type PrivateSpendKey struct {
	scalar *edwards25519.Scalar
}

// PrivateViewKey is a Monero private view key: an ed25519 scalar mod l.
type PrivateViewKey struct {
	scalar *edwards25519.Scalar
}

// PublicKey is a Monero public key: an ed25519 group element.
type PublicKey struct {
	point *edwards25519.Point
}

// NewPrivateSpendKeyFromBytes decodes a little-endian, 32-byte canonical
// scalar into a PrivateSpendKey.
func NewPrivateSpendKeyFromBytes(b []byte) (*PrivateSpendKey, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid spend scalar: %w", err)
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// GenerateSpendKey generates a new random private spend key.
func GenerateSpendKey() (*PrivateSpendKey, error) {
	var b [64]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("failed to reduce scalar: %w", err)
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// Bytes returns the little-endian canonical encoding of the scalar.
func (k *PrivateSpendKey) Bytes() []byte {
	return k.scalar.Bytes()
}

// Public derives the public key k*G.
func (k *PrivateSpendKey) Public() *PublicKey {
	p := new(edwards25519.Point).ScalarBaseMult(k.scalar)
	return &PublicKey{point: p}
}

// Hex returns the lower-case hex encoding of the scalar.
func (k *PrivateSpendKey) Hex() string {
	return hex.EncodeToString(k.Bytes())
}

// Sum returns a new private spend key s_a + s_b mod l. This is the key
// combination at the heart of the claim: once Bob learns Alice's adaptor
// secret, his own spend share plus hers is the spend key of the shared
// Monero output (spec.md §4.E).
func Sum(a, b *PrivateSpendKey) *PrivateSpendKey {
	s := new(edwards25519.Scalar).Add(a.scalar, b.scalar)
	return &PrivateSpendKey{scalar: s}
}

// Bytes returns the little-endian canonical encoding of the point.
func (p *PublicKey) Bytes() []byte {
	return p.point.Bytes()
}

// Hex returns the lower-case hex encoding of the point.
func (p *PublicKey) Hex() string {
	return hex.EncodeToString(p.Bytes())
}

// String implements fmt.Stringer.
func (p *PublicKey) String() string {
	return p.Hex()
}

// SumPublic returns a + b as points, used to derive the shared spend
// public key before either party has the other's secret.
func SumPublic(a, b *PublicKey) *PublicKey {
	p := new(edwards25519.Point).Add(a.point, b.point)
	return &PublicKey{point: p}
}

// MarshalJSON implements json.Marshaler.
func (p *PublicKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.Hex() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PublicKey) UnmarshalJSON(b []byte) error {
	s, err := unquoteHex(b)
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	pt, err := new(edwards25519.Point).SetBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid public key point: %w", err)
	}
	p.point = pt
	return nil
}

// MarshalJSON implements json.Marshaler.
func (k *PrivateViewKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.Hex() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *PrivateViewKey) UnmarshalJSON(b []byte) error {
	s, err := unquoteHex(b)
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid view key hex: %w", err)
	}
	vk, err := NewPrivateViewKeyFromBytes(raw)
	if err != nil {
		return err
	}
	*k = *vk
	return nil
}

// NewPrivateViewKeyFromBytes decodes a little-endian, 32-byte canonical
// scalar into a PrivateViewKey.
func NewPrivateViewKeyFromBytes(b []byte) (*PrivateViewKey, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid view scalar: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// GenerateViewKey generates a new random private view key.
func GenerateViewKey() (*PrivateViewKey, error) {
	var b [64]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("failed to reduce scalar: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// Bytes returns the little-endian canonical encoding of the scalar.
func (k *PrivateViewKey) Bytes() []byte {
	return k.scalar.Bytes()
}

// Public derives the public key k*G.
func (k *PrivateViewKey) Public() *PublicKey {
	p := new(edwards25519.Point).ScalarBaseMult(k.scalar)
	return &PublicKey{point: p}
}

// Hex returns the lower-case hex encoding of the scalar.
func (k *PrivateViewKey) Hex() string {
	return hex.EncodeToString(k.Bytes())
}

// SumViewKeys returns a new private view key v_a + v_b mod l: the joint
// account's private view key, shared by maker and taker in the clear over
// SendKeysMessage so either side can scan for the other's transfer without
// exposing its own spend key (spec.md §4.C).
func SumViewKeys(a, b *PrivateViewKey) *PrivateViewKey {
	s := new(edwards25519.Scalar).Add(a.scalar, b.scalar)
	return &PrivateViewKey{scalar: s}
}

func unquoteHex(b []byte) (string, error) {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return "", fmt.Errorf("expected quoted hex string")
	}
	return string(b[1 : len(b)-1]), nil
}
