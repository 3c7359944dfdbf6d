// Package net provides the libp2p transport the swap peers use to dial
// each other and run the four request/response sub-protocols described in
// spec.md §6: Quote, ExecutionSetup, TransferProof, and EncryptedSignature.
package net

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"

	logging "github.com/ipfs/go-log"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/common/types"
	"github.com/nthswap/xmrbtc-swap/net/message"
)

var log = logging.Logger("net")

// Message is the wire message type exchanged over our sub-protocol
// streams; an alias so callers in this package don't need to import
// common directly.
type Message = common.Message

// subProtocolTimeout is the per-request timeout each of the four
// sub-protocols enforces independently (spec.md §6: "each with an
// independent timeout (default 60 s)").
const subProtocolTimeout = 60 * time.Second

const (
	quoteSubProtocol              = "/quote/1"
	executionSetupSubProtocol     = "/execution-setup/1"
	transferProofSubProtocol      = "/transfer-proof/1"
	encryptedSignatureSubProtocol = "/encrypted-signature/1"
)

// Config configures a Host.
type Config struct {
	Ctx        context.Context
	DataDir    string
	Port       uint16
	KeyFile    string
	Bootnodes  []string
	ProtocolID string
	ListenIP   string
}

// Handler reacts to inbound sub-protocol requests. The maker event loop
// (protocol/eventloop) is the only production implementation; tests supply
// a fake.
type Handler interface {
	// OnQuoteRequest returns the XMR amount offered for btcAmount
	// satoshis, or an error (which the host answers with a declining,
	// zero-amount QuoteResponse), e.g. if it exceeds max_buy. p
	// identifies the requesting peer, so the handler can remember the
	// quoted amounts until that same peer's ExecutionSetup stream arrives.
	OnQuoteRequest(p peer.ID, btcAmount uint64) (xmrAmount uint64, err error)

	// OnExecutionSetup runs the maker's side of the multi-round
	// ExecutionSetup exchange against an already-accepted stream and
	// returns the swap handle the rest of the protocol will drive.
	OnExecutionSetup(s *Stream) (SwapState, error)
}

// SwapState is the subset of a running swap's state machine the net layer
// needs: enough to route a late-arriving sub-protocol message and to learn
// when the swap has exited.
type SwapState interface {
	ID() string
	Exit() error
}

// Host wraps a libp2p host configured with the swap's four sub-protocols.
//
// TransferProof and EncryptedSignature are pushed by one peer to the other
// outside of any call the receiver makes; a receiving Session waits for one
// by registering a channel here, keyed by swap ID, before the counterparty
// can be expected to send it.
type Host struct {
	ctx        context.Context
	h          host.Host
	protocolID protocol.ID

	mu                   sync.Mutex
	handler              Handler
	pendingTransferProof map[types.SwapID]chan *message.TransferProofMessage
	pendingEncSig        map[types.SwapID]chan *message.EncryptedSignatureMessage
}

// NewHost constructs and starts a libp2p host listening per cfg.
func NewHost(cfg *Config) (*Host, error) {
	if err := common.MakeDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrConfiguration, err)
	}

	key, err := loadOrGenerateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	listenAddr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", cfg.ListenIP, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid listen address: %s", common.ErrConfiguration, err)
	}

	h, err := libp2p.New(
		libp2p.Identity(key),
		libp2p.ListenAddrs(listenAddr),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create libp2p host: %s", common.ErrConfiguration, err)
	}

	host := &Host{
		ctx:                  cfg.Ctx,
		h:                    h,
		protocolID:           protocol.ID(cfg.ProtocolID),
		pendingTransferProof: make(map[types.SwapID]chan *message.TransferProofMessage),
		pendingEncSig:        make(map[types.SwapID]chan *message.EncryptedSignatureMessage),
	}

	for _, addr := range cfg.Bootnodes {
		if err := host.addBootnode(addr); err != nil {
			log.Warnf("failed to connect to bootnode %s: %s", addr, err)
		}
	}

	log.Infof("started host with ID %s listening on %s", h.ID(), listenAddr)
	return host, nil
}

func (h *Host) addBootnode(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return err
	}
	h.h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	return h.h.Connect(h.ctx, *info)
}

func loadOrGenerateKey(keyFile string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(keyFile); err == nil {
		key, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid key file %s: %s", common.ErrConfiguration, keyFile, err)
		}
		return key, nil
	}

	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate node key: %s", common.ErrConfiguration, err)
	}

	b, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrConfiguration, err)
	}
	if err := common.MakeDir(path.Dir(keyFile)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyFile, b, 0o600); err != nil {
		return nil, fmt.Errorf("%w: failed to persist node key: %s", common.ErrConfiguration, err)
	}
	return key, nil
}

// SetHandlers installs handler and registers the four sub-protocol stream
// handlers. Must be called once before the host accepts swaps.
func (h *Host) SetHandlers(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()

	h.h.SetStreamHandler(h.fullProtocolID(quoteSubProtocol), h.handleQuoteStream)
	h.h.SetStreamHandler(h.fullProtocolID(executionSetupSubProtocol), h.handleExecutionSetupStream)
	h.h.SetStreamHandler(h.fullProtocolID(transferProofSubProtocol), h.handleTransferProofStream)
	h.h.SetStreamHandler(h.fullProtocolID(encryptedSignatureSubProtocol), h.handleEncryptedSignatureStream)
}

// awaitTransferProof registers a channel for swapID and returns it along
// with a function to unregister it. A Session's RecvTransferProof blocks on
// this channel; handleTransferProofStream delivers into it.
func (h *Host) awaitTransferProof(swapID types.SwapID) (chan *message.TransferProofMessage, func()) {
	ch := make(chan *message.TransferProofMessage, 1)
	h.mu.Lock()
	h.pendingTransferProof[swapID] = ch
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.pendingTransferProof, swapID)
		h.mu.Unlock()
	}
}

// awaitEncryptedSignature is awaitTransferProof's counterpart for the
// EncryptedSignature sub-protocol.
func (h *Host) awaitEncryptedSignature(swapID types.SwapID) (chan *message.EncryptedSignatureMessage, func()) {
	ch := make(chan *message.EncryptedSignatureMessage, 1)
	h.mu.Lock()
	h.pendingEncSig[swapID] = ch
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.pendingEncSig, swapID)
		h.mu.Unlock()
	}
}

func (h *Host) handleTransferProofStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(subProtocolTimeout))

	msg, err := readMessage(s)
	if err != nil {
		log.Warnf("failed to read transfer proof: %s", err)
		return
	}
	proof, ok := msg.(*message.TransferProofMessage)
	if !ok {
		log.Warnf("expected TransferProofMessage, got %T", msg)
		return
	}

	h.mu.Lock()
	ch, waiting := h.pendingTransferProof[proof.SwapID]
	h.mu.Unlock()
	if !waiting {
		log.Warnf("received transfer proof for unknown/unawaited swap %s", proof.SwapID)
		return
	}

	select {
	case ch <- proof:
	default:
	}

	if err := writeMessage(s, &message.TransferProofAck{SwapID: proof.SwapID}); err != nil {
		log.Warnf("failed to ack transfer proof: %s", err)
	}
}

func (h *Host) handleEncryptedSignatureStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(subProtocolTimeout))

	msg, err := readMessage(s)
	if err != nil {
		log.Warnf("failed to read encrypted signature: %s", err)
		return
	}
	encSig, ok := msg.(*message.EncryptedSignatureMessage)
	if !ok {
		log.Warnf("expected EncryptedSignatureMessage, got %T", msg)
		return
	}

	h.mu.Lock()
	ch, waiting := h.pendingEncSig[encSig.SwapID]
	h.mu.Unlock()
	if !waiting {
		log.Warnf("received encrypted signature for unknown/unawaited swap %s", encSig.SwapID)
		return
	}

	select {
	case ch <- encSig:
	default:
	}

	if err := writeMessage(s, &message.EncryptedSignatureAck{SwapID: encSig.SwapID}); err != nil {
		log.Warnf("failed to ack encrypted signature: %s", err)
	}
}

func (h *Host) fullProtocolID(suffix string) protocol.ID {
	return protocol.ID(string(h.protocolID) + suffix)
}

func (h *Host) handleQuoteStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(subProtocolTimeout))

	msg, err := readMessage(s)
	if err != nil {
		log.Warnf("failed to read quote request: %s", err)
		return
	}
	req, ok := msg.(*message.QuoteRequest)
	if !ok {
		log.Warnf("expected QuoteRequest, got %T", msg)
		return
	}
	if err := req.CheckVersion(); err != nil {
		log.Warnf("rejecting quote request: %s", err)
		_ = writeMessage(s, &message.QuoteResponse{XMRAmount: 0})
		return
	}

	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()

	xmrAmount, err := handler.OnQuoteRequest(s.Conn().RemotePeer(), req.BTCAmount)
	if err != nil {
		log.Warnf("quote request rejected: %s", err)
		xmrAmount = 0
	}

	if err := writeMessage(s, &message.QuoteResponse{XMRAmount: xmrAmount}); err != nil {
		log.Warnf("failed to write quote response: %s", err)
	}
}

func (h *Host) handleExecutionSetupStream(s network.Stream) {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()

	stream := &Stream{s: s, deadline: subProtocolTimeout}
	swapState, err := handler.OnExecutionSetup(stream)
	if err != nil {
		log.Warnf("execution setup failed: %s", err)
		_ = s.Close()
		return
	}
	log.Infof("execution setup complete for swap %s", swapState.ID())
}

// Addrs returns the host's listen multiaddresses.
func (h *Host) Addrs() []ma.Multiaddr {
	return h.h.Addrs()
}

// PeerID returns the host's libp2p peer ID as a string.
func (h *Host) PeerID() string {
	return h.h.ID().String()
}

// Stop shuts down the host.
func (h *Host) Stop() error {
	return h.h.Close()
}

// connected reports whether the host currently has a live connection to p.
func (h *Host) connected(p peer.ID) bool {
	return h.h.Network().Connectedness(p) == network.Connected
}

// connect dials p at addrs; a no-op if already connected (spec.md §6:
// "dial is idempotent — it is a no-op while connected and re-establishes
// otherwise").
func (h *Host) connect(ctx context.Context, info peer.AddrInfo) error {
	if h.connected(info.ID) {
		return nil
	}
	return h.h.Connect(ctx, info)
}

// newStream opens a fresh stream to p for the given sub-protocol suffix.
func (h *Host) newStream(ctx context.Context, p peer.ID, subProtocol string) (*Stream, error) {
	s, err := h.h.NewStream(ctx, p, h.fullProtocolID(subProtocol))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrPeerFailure, err)
	}
	return &Stream{s: s, deadline: subProtocolTimeout}, nil
}
