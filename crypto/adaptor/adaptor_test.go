package adaptor

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyAdaptRecover(t *testing.T) {
	x, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	t2, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	secret := new(big.Int).SetBytes(t2.Serialize())
	encKey := t2.PubKey()

	msg := sha256.Sum256([]byte("lock transaction txid"))

	preSig, err := Sign(x, encKey, msg)
	require.NoError(t, err)
	require.True(t, Verify(preSig, x.PubKey(), encKey, msg))

	full := Adapt(preSig, secret)
	require.True(t, full.Verify(msg[:], x.PubKey()))

	recovered := Recover(preSig, full)
	require.Equal(t, 0, secret.Cmp(recovered))
}

func TestVerifyRejectsWrongEncryptionKey(t *testing.T) {
	x, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	encKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wrongKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("some message"))
	preSig, err := Sign(x, encKey.PubKey(), msg)
	require.NoError(t, err)

	require.False(t, Verify(preSig, x.PubKey(), wrongKey.PubKey(), msg))
}

func TestEncodeDecodePreSignatureRoundTrip(t *testing.T) {
	x, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	encKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("round trip message"))
	preSig, err := Sign(x, encKey.PubKey(), msg)
	require.NoError(t, err)

	decoded, err := DecodePreSignature(preSig.Encode())
	require.NoError(t, err)
	require.Equal(t, preSig.s, decoded.s)
	require.True(t, preSig.R.IsEqual(decoded.R))
}

func TestDecodePreSignatureRejectsBadLength(t *testing.T) {
	_, err := DecodePreSignature([]byte{1, 2, 3})
	require.Error(t, err)
}
