package protocol

import (
	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/protocol/swap"
)

// Recover is meant to resume a swap found ongoing in the database at
// startup, by replaying its last known state against the current chain
// tips to decide which branch of the cancel/refund/punish split applies.
// Not implemented: doing this safely needs the lock/cancel output scripts
// and the counterparty's public keys persisted alongside Info, which
// Info does not currently carry.
func Recover(info *swap.Info) error {
	return common.ErrRecoveryNotImplemented
}
