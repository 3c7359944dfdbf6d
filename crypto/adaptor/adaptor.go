// Package adaptor implements BIP-340 Schnorr adaptor signatures over
// secp256k1: the mechanism that lets Alice pre-sign Bob's Bitcoin
// refund/claim path without revealing her Monero spend secret, and that
// then lets Bob extract that secret from Alice's completed signature once
// she publishes it on-chain (spec.md §4.D "Adaptor signatures").
//
// A pre-signature (R, s') is adapted by a secret t into a full signature
// (R+T, s'+t); subtracting the pre-signature's s' from the full
// signature's s recovers t. This is the standard two-party adaptor
// construction described in the original Rust implementation's
// ecdsa_fun::adaptor module, re-expressed here directly against
// btcec/v2/schnorr's BIP-340 primitives rather than a bespoke ECDSA
// variant.
package adaptor

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var curveOrder = btcec.S256().N

// PreSignature is Alice's adaptor pre-signature over a message, encrypted
// under the counterparty's adaptor point T.
type PreSignature struct {
	R *btcec.PublicKey // nonce commitment, already offset by T
	s *big.Int         // s' = k + e*x mod n
}

// Sign produces a pre-signature for msg under signing key x, encrypted
// under the adaptor point encKey = t*G. The signer does not need to know
// t, only its public point.
func Sign(x *btcec.PrivateKey, encKey *btcec.PublicKey, msg [32]byte) (*PreSignature, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	curve := btcec.S256()
	kx, ky := curve.ScalarBaseMult(k.Serialize())
	rx, ry := curve.Add(kx, ky, encKey.X(), encKey.Y())

	r := pointToPubKey(rx, ry)
	e := challenge(r, x.PubKey(), msg)

	kI := new(big.Int).SetBytes(k.Serialize())
	xI := new(big.Int).SetBytes(x.Serialize())
	s := new(big.Int).Mul(e, xI)
	s.Add(s, kI)
	s.Mod(s, curveOrder)

	return &PreSignature{R: r, s: s}, nil
}

// Verify checks that preSig is a valid pre-signature by pub over msg,
// encrypted under encKey.
func Verify(preSig *PreSignature, pub *btcec.PublicKey, encKey *btcec.PublicKey, msg [32]byte) bool {
	e := challenge(preSig.R, pub, msg)
	curve := btcec.S256()

	sx, sy := curve.ScalarBaseMult(preSig.s.Bytes())

	ex, ey := curve.ScalarMult(pub.X(), pub.Y(), e.Bytes())
	rx, ry := curve.Add(preSig.R.X(), preSig.R.Y(), ex, ey)
	expectX, expectY := curve.Add(rx, ry, encKey.X(), encKey.Y())

	return sx.Cmp(expectX) == 0 && sy.Cmp(expectY) == 0
}

// Adapt combines a verified pre-signature with the adaptor secret t,
// producing a complete, publishable BIP-340 Schnorr signature.
func Adapt(preSig *PreSignature, t *big.Int) *schnorr.Signature {
	s := new(big.Int).Add(preSig.s, t)
	s.Mod(s, curveOrder)

	curve := btcec.S256()
	tx, ty := curve.ScalarBaseMult(t.Bytes())
	fullRx, fullRy := curve.Add(preSig.R.X(), preSig.R.Y(), tx, ty)
	fullR := pointToPubKey(fullRx, fullRy)

	return buildSignature(fullR, s)
}

// Recover extracts the adaptor secret t given the pre-signature and the
// full signature that was eventually published on-chain: t = s - s' mod n.
// This is the step that lets Bob learn Alice's secret once her completed
// Bitcoin claim transaction confirms (spec.md §4.E).
func Recover(preSig *PreSignature, full *schnorr.Signature) *big.Int {
	fullBytes := full.Serialize()
	s := new(big.Int).SetBytes(fullBytes[32:64])

	t := new(big.Int).Sub(s, preSig.s)
	t.Mod(t, curveOrder)
	return t
}

// Encode serializes the pre-signature for wire transfer: a 33-byte
// compressed point followed by a 32-byte big-endian scalar.
func (p *PreSignature) Encode() []byte {
	buf := make([]byte, 65)
	copy(buf[:33], p.R.SerializeCompressed())
	sBytes := p.s.Bytes()
	copy(buf[65-len(sBytes):65], sBytes)
	return buf
}

// DecodePreSignature parses a pre-signature previously produced by Encode.
func DecodePreSignature(b []byte) (*PreSignature, error) {
	if len(b) != 65 {
		return nil, fmt.Errorf("invalid pre-signature length %d", len(b))
	}
	r, err := btcec.ParsePubKey(b[:33])
	if err != nil {
		return nil, fmt.Errorf("invalid pre-signature point: %w", err)
	}
	s := new(big.Int).SetBytes(b[33:65])
	return &PreSignature{R: r, s: s}, nil
}

func challenge(r, pub *btcec.PublicKey, msg [32]byte) *big.Int {
	h := sha256.New()
	h.Write([]byte("BIP0340/challenge"))
	h.Write(r.SerializeCompressed()[1:]) // x-only
	h.Write(pub.SerializeCompressed()[1:])
	h.Write(msg[:])
	e := new(big.Int).SetBytes(h.Sum(nil))
	return e.Mod(e, curveOrder)
}

func pointToPubKey(x, y *big.Int) *btcec.PublicKey {
	var fx, fy btcec.FieldVal
	fx.SetByteSlice(x.Bytes())
	fy.SetByteSlice(y.Bytes())
	return btcec.NewPublicKey(&fx, &fy)
}

func buildSignature(r *btcec.PublicKey, s *big.Int) *schnorr.Signature {
	var buf [64]byte
	rx := r.SerializeCompressed()[1:]
	copy(buf[:32], rx)
	sBytes := s.Bytes()
	copy(buf[64-len(sBytes):64], sBytes)
	sig, err := schnorr.ParseSignature(buf[:])
	if err != nil {
		panic("adaptor: built an unparseable signature: " + err.Error())
	}
	return sig
}
