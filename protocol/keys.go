// Package protocol holds the swap key-setup logic and types shared by
// xmrmaker and xmrtaker: generating and verifying the DLEq-linked key pair
// each side contributes before any funds move (spec.md §4.B).
package protocol

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/nthswap/xmrbtc-swap/crypto/dleq"
	mcrypto "github.com/nthswap/xmrbtc-swap/crypto/monero"
	"github.com/nthswap/xmrbtc-swap/crypto/secp256k1"
)

// KeysAndProof bundles one party's freshly generated swap identity: a
// secp256k1 key (used in the Bitcoin adaptor signature) and a Monero
// spend/view key pair, bound together by a DLEqProof that both commit to
// the same scalar.
type KeysAndProof struct {
	DLEqProof           *dleq.Proof
	Secp256k1PrivateKey *secp256k1.PrivateKey
	Secp256k1PublicKey  *secp256k1.PublicKey
	PrivateKeyPair      *mcrypto.PrivateKeyPair
	PublicKeyPair       *mcrypto.PublicKeyPair
}

// GenerateKeysAndProof generates a fresh shared scalar, derives the
// secp256k1 and Monero spend keys from it, generates an independent Monero
// view key, and proves knowledge of the discrete log of each spend identity.
func GenerateKeysAndProof() (*KeysAndProof, error) {
	var raw [64]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	// Reduce into the ed25519 scalar field first (order l ~= 2^252) and
	// reuse those canonical bytes as the secp256k1 scalar too. The same 32
	// bytes are read little-endian by ed25519 and big-endian by secp256k1,
	// so the two scalars are different numbers; the big-endian value is
	// below 2^256 and falls at or above the secp256k1 order n only with
	// negligible probability.
	edScalar, err := new(edwards25519.Scalar).SetUniformBytes(raw[:])
	if err != nil {
		return nil, fmt.Errorf("failed to reduce shared scalar: %w", err)
	}
	shared := edScalar.Bytes()

	proof, secpKey, edKey, err := dleq.Prove(shared, shared)
	if err != nil {
		return nil, fmt.Errorf("failed to prove key equality: %w", err)
	}

	viewKey, err := mcrypto.GenerateViewKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate view key: %w", err)
	}

	privkeys := mcrypto.NewPrivateKeyPair(edKey, viewKey)

	return &KeysAndProof{
		DLEqProof:           proof,
		Secp256k1PrivateKey: secpKey,
		Secp256k1PublicKey:  secpKey.Public(),
		PrivateKeyPair:      privkeys,
		PublicKeyPair:       privkeys.PublicKeyPair(),
	}, nil
}

// VerifyKeysAndProof checks that proofBytes proves secpPub and edPub share
// a discrete log, returning the verified keys back to the caller.
func VerifyKeysAndProof(
	proofBytes []byte,
	secpPub *secp256k1.PublicKey,
	edPub *mcrypto.PublicKey,
) (*dleq.VerificationResult, error) {
	return dleq.Verify(proofBytes, secpPub, edPub)
}
