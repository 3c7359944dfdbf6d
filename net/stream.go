package net

import (
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/nthswap/xmrbtc-swap/common"
)

// Stream wraps a single libp2p stream belonging to one sub-protocol
// exchange (ExecutionSetup is the only multi-round one; the others are a
// single request/response pair). Every read and write refreshes the
// stream's deadline, so the 60s timeout applies per round, not to the
// whole exchange.
type Stream struct {
	s        network.Stream
	deadline time.Duration
}

// ReadMessage reads and decodes the next framed message, resetting the
// read deadline first.
func (st *Stream) ReadMessage() (common.Message, error) {
	if err := st.s.SetReadDeadline(time.Now().Add(st.deadline)); err != nil {
		return nil, err
	}
	return readMessage(st.s)
}

// WriteMessage encodes and writes m, resetting the write deadline first.
func (st *Stream) WriteMessage(m common.Message) error {
	if err := st.s.SetWriteDeadline(time.Now().Add(st.deadline)); err != nil {
		return err
	}
	return writeMessage(st.s, m)
}

// Close closes the underlying stream.
func (st *Stream) Close() error {
	return st.s.Close()
}

// Peer returns the peer ID on the other end of the stream, letting a
// handler that only received an inbound Stream (no multiaddr) open
// further sub-protocol streams back to the same counterparty.
func (st *Stream) Peer() peer.ID {
	return st.s.Conn().RemotePeer()
}
