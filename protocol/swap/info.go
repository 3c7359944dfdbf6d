// Package swap tracks the status of ongoing and past swaps, independent of
// which role (xmrmaker or xmrtaker) ran them, for persistence and CLI
// reporting.
package swap

import (
	"fmt"
	"time"

	"github.com/nthswap/xmrbtc-swap/common/types"
)

// Role identifies which side of the swap a local Info record describes.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// Info is the persisted record of one swap attempt, written at every
// notable state transition so a restarted asb/swapcli can report current
// status. It is a coarse summary consumed by the CLI and database, not the
// state the protocol state machines themselves drive from.
type Info struct {
	ID        types.SwapID `json:"id"`
	Role      Role         `json:"role"`
	Status    types.Status `json:"status"`
	BTCAmount uint64       `json:"btcAmount"` // satoshis
	XMRAmount uint64       `json:"xmrAmount"` // piconeros
	StartTime time.Time    `json:"startTime"`
	EndTime   *time.Time   `json:"endTime,omitempty"`

	// XMRLockTxHash and XMRLockRestoreHeight record the maker's own transfer
	// proof for the XMR lock transaction as soon as it's sent, so a restart
	// between BtcLocked and XmrLocked can re-derive it rather than risk
	// sweeping the maker's wallet a second time.
	XMRLockTxHash        string `json:"xmrLockTxHash,omitempty"`
	XMRLockRestoreHeight uint64 `json:"xmrLockRestoreHeight,omitempty"`
}

// NewInfo constructs an Info for a swap that is just starting.
func NewInfo(id types.SwapID, role Role, btcAmount, xmrAmount uint64, status types.Status, startTime time.Time) *Info {
	return &Info{
		ID:        id,
		Role:      role,
		Status:    status,
		BTCAmount: btcAmount,
		XMRAmount: xmrAmount,
		StartTime: startTime,
	}
}

// String implements fmt.Stringer.
func (i *Info) String() string {
	return fmt.Sprintf("Info ID=%s Role=%s Status=%s BTCAmount=%d XMRAmount=%d",
		i.ID, i.Role, i.Status, i.BTCAmount, i.XMRAmount)
}
