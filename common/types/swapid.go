// Package types holds small value types shared by wire messages, the
// database, and the protocol state machines.
package types

import (
	"github.com/google/uuid"
)

// SwapID uniquely identifies one swap attempt for its entire lifetime:
// persistence, logging, and the CLI all key off it.
type SwapID = uuid.UUID

// EmptySwapID is the zero-value SwapID, never assigned to a real swap.
var EmptySwapID = SwapID{}

// NewSwapID generates a fresh random swap identifier.
func NewSwapID() SwapID {
	return uuid.New()
}

// IsSwapIDZero returns true if id is the zero value.
func IsSwapIDZero(id SwapID) bool {
	return id == EmptySwapID
}

// ParseSwapID decodes a canonical UUID string into a SwapID.
func ParseSwapID(s string) (SwapID, error) {
	return uuid.Parse(s)
}
