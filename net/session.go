package net

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/common/types"
	"github.com/nthswap/xmrbtc-swap/net/message"
)

// Session is a handle to one counterparty connection, exposing the
// primitives the maker/taker state machines drive the protocol with: dial,
// request_spot_price, execution_setup, recv_transfer_proof,
// send_transfer_proof, recv_encrypted_signature, send_encrypted_signature
// (spec.md §6). The same Session type serves both roles; a given swap only
// calls the methods its role uses.
type Session struct {
	host *Host
	info peer.AddrInfo
}

// NewSession parses addr (a libp2p multiaddress including a /p2p/<peerID>
// component) and returns a Session for dialing it.
func NewSession(host *Host, addr string) (*Session, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid peer address: %s", common.ErrConfiguration, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrConfiguration, err)
	}
	return &Session{host: host, info: *info}, nil
}

// NewSessionFromPeer wraps an already-connected peer (typically the remote
// end of an inbound ExecutionSetup stream) as a Session, with no known
// multiaddr. Dial is still safe to call: it only dials when not already
// connected.
func NewSessionFromPeer(host *Host, p peer.ID) *Session {
	return &Session{host: host, info: peer.AddrInfo{ID: p}}
}

// Dial establishes the connection if not already connected; a no-op
// otherwise. State machines re-dial before every on-chain action.
func (s *Session) Dial(ctx context.Context) error {
	return s.host.connect(ctx, s.info)
}

// RequestSpotPrice runs the Quote sub-protocol, returning the XMR amount
// (piconeros) the maker offers for btcAmount satoshis, or zero if declined.
func (s *Session) RequestSpotPrice(ctx context.Context, btcAmount uint64) (uint64, error) {
	stream, err := s.host.newStream(ctx, s.info.ID, quoteSubProtocol)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	req := &message.QuoteRequest{BTCAmount: btcAmount, Version: *message.CurProtocolVersion}
	if err := stream.WriteMessage(req); err != nil {
		return 0, fmt.Errorf("%w: %s", common.ErrPeerFailure, err)
	}
	msg, err := stream.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", common.ErrPeerFailure, err)
	}
	resp, ok := msg.(*message.QuoteResponse)
	if !ok {
		return 0, fmt.Errorf("%w: expected QuoteResponse, got %T", common.ErrProtocolViolation, msg)
	}
	return resp.XMRAmount, nil
}

// ExecutionSetup opens the multi-round ExecutionSetup stream. The caller
// drives the exchange directly over the returned Stream and must Close it
// when done.
func (s *Session) ExecutionSetup(ctx context.Context) (*Stream, error) {
	return s.host.newStream(ctx, s.info.ID, executionSetupSubProtocol)
}

// SendTransferProof pushes proof to the counterparty and waits for its ack
// (spec.md §4.C, maker -> taker).
func (s *Session) SendTransferProof(ctx context.Context, proof *message.TransferProofMessage) error {
	stream, err := s.host.newStream(ctx, s.info.ID, transferProofSubProtocol)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.WriteMessage(proof); err != nil {
		return fmt.Errorf("%w: %s", common.ErrPeerFailure, err)
	}
	msg, err := stream.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrPeerFailure, err)
	}
	ack, ok := msg.(*message.TransferProofAck)
	if !ok || ack.SwapID != proof.SwapID {
		return fmt.Errorf("%w: invalid transfer proof ack", common.ErrProtocolViolation)
	}
	return nil
}

// RecvTransferProof blocks until the counterparty pushes a transfer proof
// for swapID, or ctx is cancelled. Must be called before the counterparty
// can be expected to send one.
func (s *Session) RecvTransferProof(ctx context.Context, swapID types.SwapID) (*message.TransferProofMessage, error) {
	ch, unregister := s.host.awaitTransferProof(swapID)
	defer unregister()

	select {
	case proof := <-ch:
		return proof, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendEncryptedSignature pushes sig to the counterparty and waits for its
// ack (spec.md §4.D, taker -> maker).
func (s *Session) SendEncryptedSignature(ctx context.Context, sig *message.EncryptedSignatureMessage) error {
	stream, err := s.host.newStream(ctx, s.info.ID, encryptedSignatureSubProtocol)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.WriteMessage(sig); err != nil {
		return fmt.Errorf("%w: %s", common.ErrPeerFailure, err)
	}
	msg, err := stream.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrPeerFailure, err)
	}
	ack, ok := msg.(*message.EncryptedSignatureAck)
	if !ok || ack.SwapID != sig.SwapID {
		return fmt.Errorf("%w: invalid encrypted signature ack", common.ErrProtocolViolation)
	}
	return nil
}

// RecvEncryptedSignature blocks until the counterparty pushes an encrypted
// signature for swapID, or ctx is cancelled.
func (s *Session) RecvEncryptedSignature(ctx context.Context, swapID types.SwapID) (*message.EncryptedSignatureMessage, error) {
	ch, unregister := s.host.awaitEncryptedSignature(swapID)
	defer unregister()

	select {
	case sig := <-ch:
		return sig, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
