package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeysAndProof(t *testing.T) {
	kp, err := GenerateKeysAndProof()
	require.NoError(t, err)

	res, err := VerifyKeysAndProof(
		kp.DLEqProof.Proof(),
		kp.Secp256k1PublicKey,
		kp.PublicKeyPair.SpendKey(),
	)
	require.NoError(t, err)
	require.Equal(t, kp.Secp256k1PublicKey.String(), res.Secp256k1PublicKey.String())
	require.Equal(t, kp.PublicKeyPair.SpendKey().String(), res.Ed25519PublicKey.String())
}

func TestVerifyKeysAndProof_rejectsTamperedProof(t *testing.T) {
	kp, err := GenerateKeysAndProof()
	require.NoError(t, err)

	bad := append([]byte{}, kp.DLEqProof.Proof()...)
	bad[0] ^= 0xff

	_, err = VerifyKeysAndProof(bad, kp.Secp256k1PublicKey, kp.PublicKeyPair.SpendKey())
	require.Error(t, err)
}
