package message

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/common/types"
	mcrypto "github.com/nthswap/xmrbtc-swap/crypto/monero"
	"github.com/nthswap/xmrbtc-swap/crypto/secp256k1"
)

func roundTrip(t *testing.T, m common.Message) common.Message {
	t.Helper()
	b, err := m.Encode()
	require.NoError(t, err)
	require.Equal(t, m.Type(), b[0])

	decoded, err := DecodeMessage(b)
	require.NoError(t, err)
	return decoded
}

func TestQuoteRequest(t *testing.T) {
	m := &QuoteRequest{BTCAmount: 100_000}
	decoded := roundTrip(t, m)
	out, ok := decoded.(*QuoteRequest)
	require.True(t, ok)
	require.Equal(t, m.BTCAmount, out.BTCAmount)
}

func TestQuoteResponse(t *testing.T) {
	m := &QuoteResponse{XMRAmount: 1_000_000_000_000}
	decoded := roundTrip(t, m)
	out, ok := decoded.(*QuoteResponse)
	require.True(t, ok)
	require.Equal(t, m.XMRAmount, out.XMRAmount)
	require.False(t, out.Declined())

	require.True(t, (&QuoteResponse{}).Declined())
}

func TestSendKeysMessage(t *testing.T) {
	spendKey, err := mcrypto.GenerateSpendKey()
	require.NoError(t, err)
	viewKey, err := mcrypto.GenerateViewKey()
	require.NoError(t, err)
	secpKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	m := &SendKeysMessage{
		SwapID:             types.NewSwapID(),
		ProvidedAmount:     apd.New(1, -1),
		PublicSpendKey:     spendKey.Public(),
		PrivateViewKey:     viewKey,
		DLEqProof:          []byte{1, 2, 3, 4},
		Secp256k1PublicKey: secpKey.Public(),
		BTCAddress:         "tb1qexampleaddress",
	}

	decoded := roundTrip(t, m)
	out, ok := decoded.(*SendKeysMessage)
	require.True(t, ok)
	require.Equal(t, m.SwapID, out.SwapID)
	require.Equal(t, m.PublicSpendKey.Hex(), out.PublicSpendKey.Hex())
	require.Equal(t, m.PrivateViewKey.Hex(), out.PrivateViewKey.Hex())
	require.Equal(t, m.DLEqProof, out.DLEqProof)
	require.Equal(t, m.Secp256k1PublicKey.Hex(), out.Secp256k1PublicKey.Hex())
}

func TestSendKeysMessage_missingRequiredField(t *testing.T) {
	m := &SendKeysMessage{
		SwapID:         types.NewSwapID(),
		ProvidedAmount: apd.New(1, -1),
		// PublicSpendKey, PrivateViewKey, DLEqProof, Secp256k1PublicKey all unset
	}
	_, err := m.Encode()
	require.Error(t, err)
}

func TestTransferProofMessage(t *testing.T) {
	viewKey, err := mcrypto.GenerateViewKey()
	require.NoError(t, err)

	m := &TransferProofMessage{
		SwapID:        types.NewSwapID(),
		TxHash:        "abc123",
		TxKey:         viewKey,
		RestoreHeight: 12345,
	}
	decoded := roundTrip(t, m)
	out, ok := decoded.(*TransferProofMessage)
	require.True(t, ok)
	require.Equal(t, m.SwapID, out.SwapID)
	require.Equal(t, m.TxHash, out.TxHash)
	require.Equal(t, m.TxKey.Hex(), out.TxKey.Hex())
	require.Equal(t, m.RestoreHeight, out.RestoreHeight)
}

func TestTransferProofAck(t *testing.T) {
	m := &TransferProofAck{SwapID: types.NewSwapID()}
	decoded := roundTrip(t, m)
	out, ok := decoded.(*TransferProofAck)
	require.True(t, ok)
	require.Equal(t, m.SwapID, out.SwapID)
}

func TestEncryptedSignatureMessage(t *testing.T) {
	m := &EncryptedSignatureMessage{
		SwapID:             types.NewSwapID(),
		EncryptedSignature: []byte{9, 9, 9},
	}
	decoded := roundTrip(t, m)
	out, ok := decoded.(*EncryptedSignatureMessage)
	require.True(t, ok)
	require.Equal(t, m.SwapID, out.SwapID)
	require.Equal(t, m.EncryptedSignature, out.EncryptedSignature)
}

func TestEncryptedSignatureAck(t *testing.T) {
	m := &EncryptedSignatureAck{SwapID: types.NewSwapID()}
	decoded := roundTrip(t, m)
	out, ok := decoded.(*EncryptedSignatureAck)
	require.True(t, ok)
	require.Equal(t, m.SwapID, out.SwapID)
}

func TestDecodeMessage_tooShort(t *testing.T) {
	_, err := DecodeMessage([]byte{SendKeysType})
	require.Error(t, err)
}

func TestDecodeMessage_unknownType(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, '{', '}'})
	require.Error(t, err)
}
