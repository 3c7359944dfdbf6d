package dleq

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"filippo.io/edwards25519"
)

var secpOrder = btcec.S256().N

// addMulModN returns (k + c*x) mod n, the secp256k1 group order, with all
// three operands given as 32-byte big-endian integers.
func addMulModN(k, x, c []byte) []byte {
	kI := new(big.Int).SetBytes(k)
	xI := new(big.Int).SetBytes(x)
	cI := new(big.Int).SetBytes(c)

	z := new(big.Int).Mul(cI, xI)
	z.Add(z, kI)
	z.Mod(z, secpOrder)

	out := make([]byte, 32)
	z.FillBytes(out)
	return out
}

// checkSecp verifies zSecp*G == R + c*X over secp256k1.
func checkSecp(zSecp, c []byte, r, x *btcec.PublicKey) bool {
	curve := btcec.S256()

	zI := new(big.Int).SetBytes(zSecp)
	zx, zy := curve.ScalarBaseMult(zI.Bytes())

	cI := new(big.Int).SetBytes(c)
	xx, xy := uncompressedXY(x)
	cx, cy := curve.ScalarMult(xx, xy, cI.Bytes())

	rx, ry := uncompressedXY(r)
	sx, sy := curve.Add(rx, ry, cx, cy)

	return zx.Cmp(sx) == 0 && zy.Cmp(sy) == 0
}

func uncompressedXY(p *btcec.PublicKey) (*big.Int, *big.Int) {
	b := p.SerializeUncompressed() // 0x04 || X(32) || Y(32)
	x := new(big.Int).SetBytes(b[1:33])
	y := new(big.Int).SetBytes(b[33:65])
	return x, y
}

// reduceEdScalar reduces an arbitrary 32-byte challenge into a canonical
// ed25519 scalar by zero-extending to the 64-byte uniform input
// SetUniformBytes expects.
func reduceEdScalar(b []byte) *edwards25519.Scalar {
	wide := make([]byte, 64)
	copy(wide, b)
	s, err := new(edwards25519.Scalar).SetUniformBytes(wide)
	if err != nil {
		panic("reduceEdScalar: " + err.Error())
	}
	return s
}

// addMulModL returns (k + c*x) mod l, the ed25519 group order.
func addMulModL(k, x, c []byte) []byte {
	kS, err := new(edwards25519.Scalar).SetCanonicalBytes(k)
	if err != nil {
		panic("addMulModL: non-canonical k: " + err.Error())
	}
	xS, err := new(edwards25519.Scalar).SetCanonicalBytes(x)
	if err != nil {
		panic("addMulModL: non-canonical x: " + err.Error())
	}
	cS := reduceEdScalar(c)

	z := new(edwards25519.Scalar).MultiplyAdd(cS, xS, kS)
	return z.Bytes()
}

// checkEd verifies zEd*G == R + c*X over ed25519.
func checkEd(zEd, c []byte, r, x *edwards25519.Point) bool {
	zS, err := new(edwards25519.Scalar).SetCanonicalBytes(zEd)
	if err != nil {
		return false
	}
	cS := reduceEdScalar(c)

	lhs := new(edwards25519.Point).ScalarBaseMult(zS)

	cx := new(edwards25519.Point).ScalarMult(cS, x)
	rhs := new(edwards25519.Point).Add(r, cx)

	return lhs.Equal(rhs) == 1
}
