// Package xmrmaker drives the maker's side of a swap: the party providing
// Monero and receiving Bitcoin. It runs as a tail-recursive step function
// over an immutable State value (spec.md §4.D, §9 "no event bus, no
// channel-driven transitions").
package xmrmaker

import (
	"github.com/nthswap/xmrbtc-swap/common/types"
)

// State is one point in the maker's swap lifecycle. Transitions are driven
// entirely by step(), never mutated in place, so a crash can only ever
// leave a swap at a state whose entry has already been persisted.
type State int

const (
	// StateStarted is the state immediately after both parties have
	// exchanged SendKeysMessage and verified each other's DLEq proof.
	StateStarted State = iota
	// StateNegotiated means the maker has computed the aggregate Taproot
	// lock/cancel outputs and is waiting to see the taker's lock
	// transaction on-chain.
	StateNegotiated
	// StateBtcLockTransactionSeen means the lock transaction has entered
	// the mempool but has not yet reached finality.
	StateBtcLockTransactionSeen
	// StateBtcLocked means the lock transaction has reached
	// BitcoinFinalityConfirmations.
	StateBtcLocked
	// StateXmrLockTransactionSent means the maker has broadcast its
	// Monero lock transfer and sent the taker a TransferProofMessage.
	StateXmrLockTransactionSent
	// StateXmrLocked means the maker has independently confirmed its own
	// lock transfer reached MoneroFinalityConfirmations.
	StateXmrLocked
	// StateEncSigLearned means the maker has received and verified the
	// taker's EncryptedSignatureMessage (an adaptor pre-signature over
	// the maker's BTC redeem transaction).
	StateEncSigLearned
	// StateBtcRedeemed is terminal: the maker adapted and broadcast its
	// redeem transaction, claiming the locked bitcoin.
	StateBtcRedeemed

	// StateCancelTimelockExpired means T1 has elapsed on the lock output
	// without a completed redeem. The cancel output's script-path leaf
	// belongs to the taker (spec.md §3); the maker only watches for the
	// cancel transaction and then races refund against punish.
	StateCancelTimelockExpired
	// StateBtcCancelled means the cancel transaction has confirmed,
	// starting the T2 (punish) countdown from its own inclusion height.
	StateBtcCancelled
	// StateBtcRefundable means T2 has not yet elapsed and the taker may
	// still refund unilaterally via the cancel output's key path. Reserved
	// as a named point in the graph; the current implementation does not
	// watch for this separately from StateBtcPunishable (see punish()).
	StateBtcRefundable
	// StateBtcPunishable means T2 has elapsed on the cancel output
	// without a taker refund; the maker may now publish the punish
	// transaction via the cancel output's script path.
	StateBtcPunishable
	// StateBtcPunished is terminal: the maker punished the taker's
	// non-refund by sweeping the cancel output.
	StateBtcPunished
	// StateXmrRefunded is terminal: the taker refunded via the cancel
	// output's key path before the punish timelock elapsed. The maker's
	// own punish broadcast is then rejected as a double-spend; recovering
	// the maker's Monero in this case is not implemented
	// (common.ErrRecoveryNotImplemented).
	StateXmrRefunded

	// StateSafelyAborted is terminal: the swap ended before any XMR was
	// locked, so no recovery step was needed.
	StateSafelyAborted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStarted:
		return "Started"
	case StateNegotiated:
		return "Negotiated"
	case StateBtcLockTransactionSeen:
		return "BtcLockTransactionSeen"
	case StateBtcLocked:
		return "BtcLocked"
	case StateXmrLockTransactionSent:
		return "XmrLockTransactionSent"
	case StateXmrLocked:
		return "XmrLocked"
	case StateEncSigLearned:
		return "EncSigLearned"
	case StateBtcRedeemed:
		return "BtcRedeemed"
	case StateCancelTimelockExpired:
		return "CancelTimelockExpired"
	case StateBtcCancelled:
		return "BtcCancelled"
	case StateBtcRefundable:
		return "BtcRefundable"
	case StateBtcPunishable:
		return "BtcPunishable"
	case StateBtcPunished:
		return "BtcPunished"
	case StateXmrRefunded:
		return "XmrRefunded"
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
	case StateBtcRedeemed, StateXmrRefunded, StateBtcPunished, StateSafelyAborted:
		return true
	default:
		return false
	}
}

// Status derives the coarse, UI-facing types.Status this state maps to.
func (s State) Status() types.Status {
	switch s {
	case StateBtcRedeemed:
		return types.StatusSuccess
	case StateXmrRefunded:
		return types.StatusRefunded
	case StateBtcPunished:
		return types.StatusPunished
	case StateSafelyAborted:
		return types.StatusAborted
	default:
		return types.StatusOngoing
	}
}
