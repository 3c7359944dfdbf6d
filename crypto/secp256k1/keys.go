// Package secp256k1 wraps btcec key types behind the swap's own types so
// that the rest of the codebase (wire messages, adaptor signatures) never
// imports btcec directly. This mirrors how the teacher keeps an
// ethereum-specific secp256k1 package rather than scattering go-ethereum's
// crypto calls throughout the protocol layer.
package secp256k1

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKey is a secp256k1 scalar used to derive the DLEq-proven key that
// binds a swap participant's Bitcoin and adaptor-signature identities
// together (spec.md §4.B).
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is a secp256k1 point.
type PublicKey struct {
	key *btcec.PublicKey
}

// GenerateKey generates a new random private key.
func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// NewPrivateKeyFromBytes decodes a 32-byte big-endian scalar.
func NewPrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(b))
	}
	k, pub := btcec.PrivKeyFromBytes(b)
	_ = pub
	return &PrivateKey{key: k}, nil
}

// Bytes returns the 32-byte big-endian encoding of the scalar.
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// Public derives the corresponding public key.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: k.key.PubKey()}
}

// BTCEC exposes the underlying btcec key for packages that need to call
// into btcec/v2/schnorr or btcec/v2/ecdsa directly (crypto/adaptor).
func (k *PrivateKey) BTCEC() *btcec.PrivateKey {
	return k.key
}

// Bytes returns the 33-byte compressed encoding of the point.
func (p *PublicKey) Bytes() []byte {
	return p.key.SerializeCompressed()
}

// BTCEC exposes the underlying btcec key.
func (p *PublicKey) BTCEC() *btcec.PublicKey {
	return p.key
}

// Hex returns the lower-case hex encoding of the compressed point.
func (p *PublicKey) Hex() string {
	return hex.EncodeToString(p.Bytes())
}

// String implements fmt.Stringer.
func (p *PublicKey) String() string {
	return p.Hex()
}

// MarshalJSON implements json.Marshaler.
func (p *PublicKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.Hex() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PublicKey) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("expected quoted hex string")
	}
	raw, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return fmt.Errorf("invalid public key point: %w", err)
	}
	p.key = key
	return nil
}
