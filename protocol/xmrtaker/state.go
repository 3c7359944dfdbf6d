// Package xmrtaker drives the taker's side of a swap: the party providing
// Bitcoin and receiving Monero. Like xmrmaker, it runs as a tail-recursive
// step function over an immutable State value (spec.md §4.D, §9).
package xmrtaker

import (
	"github.com/nthswap/xmrbtc-swap/common/types"
)

// State is one point in the taker's swap lifecycle.
type State int

const (
	// StateStarted is the state immediately after both parties have
	// exchanged SendKeysMessage and verified each other's DLEq proof.
	StateStarted State = iota
	// StateExecutionSetupDone means the taker has computed the aggregate
	// Taproot lock/cancel outputs and is ready to fund the lock output.
	StateExecutionSetupDone
	// StateBtcLocked means the taker has broadcast and confirmed its BTC
	// lock transaction to BitcoinFinalityConfirmations.
	StateBtcLocked
	// StateXmrLockProofReceived means the taker has received the maker's
	// TransferProofMessage for the Monero lock transfer.
	StateXmrLockProofReceived
	// StateXmrLocked means the taker has independently confirmed the
	// maker's lock transfer reached MoneroFinalityConfirmations.
	StateXmrLocked
	// StateEncSigSent means the taker has sent its adaptor pre-signature
	// over the maker's BTC redeem transaction.
	StateEncSigSent
	// StateBtcRedeemed means the taker has observed the maker's completed
	// redeem transaction on-chain (confirmed or not), revealing the maker's
	// adaptor secret.
	StateBtcRedeemed
	// StateXmrRedeemed is terminal: the taker combined the recovered
	// secret with its own spend share and swept the joint Monero output.
	StateXmrRedeemed

	// StateCancelTimelockExpired means T1 has elapsed on the lock output
	// without the maker redeeming. The taker may now broadcast the cancel
	// transaction via the lock output's script path, which belongs to it.
	StateCancelTimelockExpired
	// StateBtcCancelled means the cancel transaction has confirmed,
	// starting the T2 (punish) countdown from its own inclusion height.
	StateBtcCancelled
	// StateBtcRefunded is terminal: the taker refunded via the cancel
	// output's key path before T2 elapsed, recovering its bitcoin.
	StateBtcRefunded
	// StateBtcPunished is terminal: T2 elapsed before the taker refunded,
	// and the maker swept the cancel output via its script path instead.
	StateBtcPunished

	// StateSafelyAborted is terminal: the swap ended before any bitcoin
	// was locked, so no recovery step was needed.
	StateSafelyAborted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStarted:
		return "Started"
	case StateExecutionSetupDone:
		return "ExecutionSetupDone"
	case StateBtcLocked:
		return "BtcLocked"
	case StateXmrLockProofReceived:
		return "XmrLockProofReceived"
	case StateXmrLocked:
		return "XmrLocked"
	case StateEncSigSent:
		return "EncSigSent"
	case StateBtcRedeemed:
		return "BtcRedeemed"
	case StateXmrRedeemed:
		return "XmrRedeemed"
	case StateCancelTimelockExpired:
		return "CancelTimelockExpired"
	case StateBtcCancelled:
		return "BtcCancelled"
	case StateBtcRefunded:
		return "BtcRefunded"
	case StateBtcPunished:
		return "BtcPunished"
	case StateSafelyAborted:
		return "SafelyAborted"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s ends the swap: no further step() call will
// ever be made from it.
func (s State) IsTerminal() bool {
	switch s {
	case StateXmrRedeemed, StateBtcRefunded, StateBtcPunished, StateSafelyAborted:
		return true
	default:
		return false
	}
}

// Status derives the coarse, UI-facing types.Status this state maps to.
func (s State) Status() types.Status {
	switch s {
	case StateXmrRedeemed:
		return types.StatusSuccess
	case StateBtcRefunded:
		return types.StatusRefunded
	case StateBtcPunished:
		return types.StatusPunished
	case StateSafelyAborted:
		return types.StatusAborted
	default:
		return types.StatusOngoing
	}
}
