package net

import (
	"context"
	"fmt"
	"path"
	"testing"
	"time"

	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/common/types"
	mcrypto "github.com/nthswap/xmrbtc-swap/crypto/monero"
	"github.com/nthswap/xmrbtc-swap/net/message"
)

func init() {
	logging.SetLogLevel("net", "debug")
}

type mockHandler struct {
	maxBuy uint64
}

func (h *mockHandler) OnQuoteRequest(_ peer.ID, btcAmount uint64) (uint64, error) {
	if btcAmount > h.maxBuy {
		return 0, fmt.Errorf("requested amount exceeds max_buy")
	}
	return btcAmount * 10, nil // toy spot rate
}

func (h *mockHandler) OnExecutionSetup(_ *Stream) (SwapState, error) {
	return &mockSwapState{id: types.NewSwapID()}, nil
}

type mockSwapState struct {
	id types.SwapID
}

func (s *mockSwapState) ID() string  { return s.id.String() }
func (s *mockSwapState) Exit() error { return nil }

func basicTestConfig(t *testing.T) *Config {
	// t.TempDir() is unique on every call. Don't reuse this config with multiple hosts.
	tmpDir := t.TempDir()
	return &Config{
		Ctx:        context.Background(),
		DataDir:    tmpDir,
		Port:       0, // OS randomized libp2p port
		KeyFile:    path.Join(tmpDir, "node.key"),
		Bootnodes:  nil,
		ProtocolID: "/testid",
		ListenIP:   "127.0.0.1",
	}
}

func newTestHost(t *testing.T, maxBuy uint64) *Host {
	h, err := NewHost(basicTestConfig(t))
	require.NoError(t, err)
	h.SetHandlers(&mockHandler{maxBuy: maxBuy})
	t.Cleanup(func() {
		require.NoError(t, h.Stop())
	})
	return h
}

func dialAddr(h *Host) string {
	addrs := h.Addrs()
	return fmt.Sprintf("%s/p2p/%s", addrs[0], h.PeerID())
}

func TestSession_RequestSpotPrice(t *testing.T) {
	maker := newTestHost(t, 1_000_000)
	taker := newTestHost(t, 0)

	sess, err := NewSession(taker, dialAddr(maker))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sess.Dial(ctx))
	require.NoError(t, sess.Dial(ctx)) // dial is idempotent while connected

	xmrAmount, err := sess.RequestSpotPrice(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), xmrAmount)
}

func TestSession_RequestSpotPrice_declined(t *testing.T) {
	maker := newTestHost(t, 10)
	taker := newTestHost(t, 0)

	sess, err := NewSession(taker, dialAddr(maker))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Dial(ctx))

	xmrAmount, err := sess.RequestSpotPrice(ctx, 1_000_000)
	require.NoError(t, err)
	require.Zero(t, xmrAmount)
}

func TestSession_TransferProofRoundTrip(t *testing.T) {
	makerHost := newTestHost(t, 1_000_000)
	takerHost := newTestHost(t, 0)

	makerSess, err := NewSession(makerHost, dialAddr(takerHost))
	require.NoError(t, err)
	takerSess, err := NewSession(takerHost, dialAddr(makerHost))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, makerSess.Dial(ctx))

	swapID := types.NewSwapID()
	txKey, err := mcrypto.GenerateViewKey()
	require.NoError(t, err)

	recvErrCh := make(chan error, 1)
	go func() {
		proof, err := takerSess.RecvTransferProof(ctx, swapID)
		if err == nil && proof.SwapID != swapID {
			err = fmt.Errorf("swap ID mismatch")
		}
		recvErrCh <- err
	}()

	time.Sleep(100 * time.Millisecond) // let the goroutine register its waiter first

	err = makerSess.SendTransferProof(ctx, &message.TransferProofMessage{
		SwapID:        swapID,
		TxHash:        "deadbeef",
		TxKey:         txKey,
		RestoreHeight: 42,
	})
	require.NoError(t, err)
	require.NoError(t, <-recvErrCh)
}

func TestSession_EncryptedSignatureRoundTrip(t *testing.T) {
	makerHost := newTestHost(t, 1_000_000)
	takerHost := newTestHost(t, 0)

	makerSess, err := NewSession(makerHost, dialAddr(takerHost))
	require.NoError(t, err)
	takerSess, err := NewSession(takerHost, dialAddr(makerHost))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, takerSess.Dial(ctx))

	swapID := types.NewSwapID()

	recvErrCh := make(chan error, 1)
	go func() {
		sig, err := makerSess.RecvEncryptedSignature(ctx, swapID)
		if err == nil && sig.SwapID != swapID {
			err = fmt.Errorf("swap ID mismatch")
		}
		recvErrCh <- err
	}()

	time.Sleep(100 * time.Millisecond)

	err = takerSess.SendEncryptedSignature(ctx, &message.EncryptedSignatureMessage{
		SwapID:             swapID,
		EncryptedSignature: []byte{1, 2, 3},
	})
	require.NoError(t, err)
	require.NoError(t, <-recvErrCh)
}
