package net

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/net/message"
)

// maxMessageSize bounds a single framed message, guarding against a
// misbehaving peer claiming an enormous length prefix.
const maxMessageSize = 1 << 20 // 1 MiB

// writeMessage frames m (its Type byte plus JSON body, per
// net/message.Message.Encode) as a 4-byte big-endian length prefix
// followed by the encoded bytes.
func writeMessage(w io.Writer, m common.Message) error {
	b, err := m.Encode()
	if err != nil {
		return err
	}
	if len(b) > maxMessageSize {
		return fmt.Errorf("encoded message too large: %d bytes", len(b))
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// readMessage reads one length-prefixed frame and decodes it via
// message.DecodeMessage.
func readMessage(r io.Reader) (common.Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("peer announced oversized message: %d bytes", n)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return message.DecodeMessage(b)
}
