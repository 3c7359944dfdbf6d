// Package message provides the types for messages sent between swap peers
// over the four sub-protocols (spec.md §6 "Wire messages"): Quote,
// ExecutionSetup, TransferProof, and EncryptedSignature.
package message

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/apd/v3"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/common/types"
	"github.com/nthswap/xmrbtc-swap/common/vjson"
	mcrypto "github.com/nthswap/xmrbtc-swap/crypto/monero"
	"github.com/nthswap/xmrbtc-swap/crypto/secp256k1"
)

// CurProtocolVersion is the latest supported wire-protocol version, checked
// during Quote so an out-of-date peer is rejected before any cryptographic
// state is exchanged.
var CurProtocolVersion = semver.MustParse("1.0.0")

// Identifiers for our p2p message types. The first byte of a message has
// the identifier below telling us which type to decode the JSON message as.
const (
	Unknown byte = iota // occupies the uninitialized value
	QuoteRequestType
	QuoteResponseType
	SendKeysType
	TransferProofType
	TransferProofAckType
	EncryptedSignatureType
	EncryptedSignatureAckType
)

// TypeToString converts a message type into a string.
func TypeToString(t byte) string {
	switch t {
	case QuoteRequestType:
		return "QuoteRequest"
	case QuoteResponseType:
		return "QuoteResponse"
	case SendKeysType:
		return "SendKeysMessage"
	case TransferProofType:
		return "TransferProofMessage"
	case TransferProofAckType:
		return "TransferProofAck"
	case EncryptedSignatureType:
		return "EncryptedSignatureMessage"
	case EncryptedSignatureAckType:
		return "EncryptedSignatureAck"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// DecodeMessage decodes the given bytes into a Message.
func DecodeMessage(b []byte) (common.Message, error) {
	// 1-byte type followed by at least 2-bytes of JSON (`{}`)
	if len(b) < 3 {
		return nil, errors.New("invalid message bytes")
	}

	msgType := b[0]
	msgJSON := b[1:]
	var msg common.Message

	switch msgType {
	case QuoteRequestType:
		msg = new(QuoteRequest)
	case QuoteResponseType:
		msg = new(QuoteResponse)
	case SendKeysType:
		msg = new(SendKeysMessage)
	case TransferProofType:
		msg = new(TransferProofMessage)
	case TransferProofAckType:
		msg = new(TransferProofAck)
	case EncryptedSignatureType:
		msg = new(EncryptedSignatureMessage)
	case EncryptedSignatureAckType:
		msg = new(EncryptedSignatureAck)
	default:
		return nil, fmt.Errorf("invalid message type=%d", msgType)
	}

	if err := vjson.UnmarshalStruct(msgJSON, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s message: %w", TypeToString(msgType), err)
	}

	return msg, nil
}

// QuoteRequest is sent taker -> maker to open a swap: "I want to buy XMR
// with this many satoshis."
type QuoteRequest struct {
	BTCAmount uint64         `json:"btcAmount" validate:"required"`
	Version   semver.Version `json:"version"`
}

// String implements fmt.Stringer.
func (m *QuoteRequest) String() string {
	return fmt.Sprintf("QuoteRequest BTCAmount=%d Version=%s", m.BTCAmount, &m.Version)
}

// CheckVersion rejects a request from a peer running a newer, unsupported
// wire-protocol version.
func (m *QuoteRequest) CheckVersion() error {
	if m.Version.GreaterThan(CurProtocolVersion) {
		return fmt.Errorf("%w: quote request version %q not supported, latest is %q",
			common.ErrProtocolViolation, &m.Version, CurProtocolVersion)
	}
	return nil
}

// Encode implements the Encode() method of the common.Message interface,
// prepending a message type byte before the message's JSON encoding.
func (m *QuoteRequest) Encode() ([]byte, error) {
	b, err := vjson.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{QuoteRequestType}, b...), nil
}

// Type implements the Type() method of the common.Message interface.
func (m *QuoteRequest) Type() byte { return QuoteRequestType }

// QuoteResponse answers a QuoteRequest with the XMR amount offered at the
// maker's current spot rate, or a zero XMRAmount if the maker declines
// (e.g. the request exceeds max_buy).
type QuoteResponse struct {
	XMRAmount uint64 `json:"xmrAmount"` // piconeros; zero means declined
}

// Declined reports whether the maker declined the quote.
func (m *QuoteResponse) Declined() bool { return m.XMRAmount == 0 }

// String implements fmt.Stringer.
func (m *QuoteResponse) String() string {
	return fmt.Sprintf("QuoteResponse XMRAmount=%d", m.XMRAmount)
}

// Encode implements the Encode() method of the common.Message interface,
// prepending a message type byte before the message's JSON encoding.
func (m *QuoteResponse) Encode() ([]byte, error) {
	b, err := vjson.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{QuoteResponseType}, b...), nil
}

// Type implements the Type() method of the common.Message interface.
func (m *QuoteResponse) Type() byte { return QuoteResponseType }

// The below messages are swap protocol messages, exchanged after the swap
// has been agreed upon by both sides (the ExecutionSetup sub-protocol).

// SendKeysMessage is sent by both parties to each other during
// ExecutionSetup: a DLEq-proven key pair binding their Bitcoin adaptor
// point to their Monero spend key (spec.md §4.B).
type SendKeysMessage struct {
	SwapID             types.SwapID           `json:"swapID" validate:"required"`
	ProvidedAmount     *apd.Decimal           `json:"providedAmount" validate:"required"`
	PublicSpendKey     *mcrypto.PublicKey     `json:"publicSpendKey" validate:"required"`
	PrivateViewKey     *mcrypto.PrivateViewKey `json:"privateViewKey" validate:"required"`
	DLEqProof          []byte                 `json:"dleqProof" validate:"required"`
	Secp256k1PublicKey *secp256k1.PublicKey   `json:"secp256k1PublicKey" validate:"required"`
	// BTCAddress is where this sender will eventually receive bitcoin: for
	// the maker, its redeem destination, fixed now because the taker's
	// adaptor pre-signature over the redeem transaction (spec.md §4.D)
	// must commit to one exact output. The taker's own BTCAddress is
	// unused by the current protocol (its refund path is a plain,
	// self-signed spend) but is sent for symmetry.
	BTCAddress string `json:"btcAddress" validate:"required"`
}

// String implements fmt.Stringer.
func (m *SendKeysMessage) String() string {
	return fmt.Sprintf("SendKeysMessage SwapID=%s ProvidedAmount=%s PublicSpendKey=%s Secp256k1PublicKey=%s",
		m.SwapID,
		m.ProvidedAmount,
		m.PublicSpendKey,
		m.Secp256k1PublicKey,
	)
}

// Encode implements the Encode() method of the common.Message interface,
// prepending a message type byte before the message's JSON encoding.
func (m *SendKeysMessage) Encode() ([]byte, error) {
	b, err := vjson.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{SendKeysType}, b...), nil
}

// Type implements the Type() method of the common.Message interface.
func (m *SendKeysMessage) Type() byte { return SendKeysType }

// TransferProofMessage is sent maker -> taker once the maker has broadcast
// the Monero lock transaction: proof that it pays the agreed amount to the
// agreed key pair, letting the taker verify with watch_for_transfer
// without trusting a third-party block explorer (spec.md §4.C).
type TransferProofMessage struct {
	SwapID        types.SwapID           `json:"swapID" validate:"required"`
	TxHash        string                 `json:"txHash" validate:"required"`
	TxKey         *mcrypto.PrivateViewKey `json:"txKey" validate:"required"`
	RestoreHeight uint64                 `json:"restoreHeight"`
}

// String implements fmt.Stringer.
func (m *TransferProofMessage) String() string {
	return fmt.Sprintf("TransferProofMessage SwapID=%s TxHash=%s RestoreHeight=%d",
		m.SwapID, m.TxHash, m.RestoreHeight)
}

// Encode implements the Encode() method of the common.Message interface,
// prepending a message type byte before the message's JSON encoding.
func (m *TransferProofMessage) Encode() ([]byte, error) {
	b, err := vjson.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{TransferProofType}, b...), nil
}

// Type implements the Type() method of the common.Message interface.
func (m *TransferProofMessage) Type() byte { return TransferProofType }

// TransferProofAck acknowledges a TransferProofMessage.
type TransferProofAck struct {
	SwapID types.SwapID `json:"swapID" validate:"required"`
}

// String implements fmt.Stringer.
func (m *TransferProofAck) String() string {
	return fmt.Sprintf("TransferProofAck SwapID=%s", m.SwapID)
}

// Encode implements the Encode() method of the common.Message interface,
// prepending a message type byte before the message's JSON encoding.
func (m *TransferProofAck) Encode() ([]byte, error) {
	b, err := vjson.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{TransferProofAckType}, b...), nil
}

// Type implements the Type() method of the common.Message interface.
func (m *TransferProofAck) Type() byte { return TransferProofAckType }

// EncryptedSignatureMessage is sent taker -> maker: the taker's
// adaptor-encrypted signature over the maker's BTC redeem transaction,
// which the maker completes to redeem and, in doing so, reveals the
// Monero spend scalar back to the taker (spec.md §4.D/§4.E).
type EncryptedSignatureMessage struct {
	SwapID             types.SwapID `json:"swapID" validate:"required"`
	EncryptedSignature []byte       `json:"encryptedSignature" validate:"required"`
}

// String implements fmt.Stringer.
func (m *EncryptedSignatureMessage) String() string {
	return fmt.Sprintf("EncryptedSignatureMessage SwapID=%s", m.SwapID)
}

// Encode implements the Encode() method of the common.Message interface,
// prepending a message type byte before the message's JSON encoding.
func (m *EncryptedSignatureMessage) Encode() ([]byte, error) {
	b, err := vjson.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{EncryptedSignatureType}, b...), nil
}

// Type implements the Type() method of the common.Message interface.
func (m *EncryptedSignatureMessage) Type() byte { return EncryptedSignatureType }

// EncryptedSignatureAck acknowledges an EncryptedSignatureMessage.
type EncryptedSignatureAck struct {
	SwapID types.SwapID `json:"swapID" validate:"required"`
}

// String implements fmt.Stringer.
func (m *EncryptedSignatureAck) String() string {
	return fmt.Sprintf("EncryptedSignatureAck SwapID=%s", m.SwapID)
}

// Encode implements the Encode() method of the common.Message interface,
// prepending a message type byte before the message's JSON encoding.
func (m *EncryptedSignatureAck) Encode() ([]byte, error) {
	b, err := vjson.MarshalStruct(m)
	if err != nil {
		return nil, err
	}
	return append([]byte{EncryptedSignatureAckType}, b...), nil
}

// Type implements the Type() method of the common.Message interface.
func (m *EncryptedSignatureAck) Type() byte { return EncryptedSignatureAckType }
