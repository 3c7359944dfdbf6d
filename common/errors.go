package common

import "errors"

// Error kinds used across the swap. These are sentinels callers can compare
// against with errors.Is; they are grouped the way they are handled, not the
// way they are raised, since several subsystems can raise the same kind.
var (
	// ErrConfiguration covers a missing/invalid config file or an
	// uninitialized data directory. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrChainConnectivity covers an unreachable Electrum server or
	// monero-wallet-rpc. A failed fetch is returned to the caller at once;
	// only a failed periodic tip ping is logged and skipped by the watcher.
	ErrChainConnectivity = errors.New("chain connectivity error")

	// ErrWalletSigning covers a PSBT that could not be finalized, or an
	// amount exceeding max giveable.
	ErrWalletSigning = errors.New("wallet signing error")

	// ErrPeerFailure covers an inbound/outbound protocol error or timeout.
	// Never fatal at the session level.
	ErrPeerFailure = errors.New("peer session error")

	// ErrProtocolViolation covers a wrong-direction message, a malformed
	// transfer proof, or a counterparty locking an insufficient amount.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrInternal covers an invariant violation, e.g. reaching a cancel
	// state before the cancel timelock expired. Fatal to the swap task.
	ErrInternal = errors.New("internal invariant violation")
)

// ErrNotFinalized is returned by the Bitcoin wallet when a PSBT is missing
// signatures on one or more inputs.
var ErrNotFinalized = errors.New("psbt is not finalized")

// ErrInsufficientFunds is returned when a counterparty's Monero lock
// transfer is short of the agreed amount, and by the Bitcoin wallet when
// its balance cannot cover the estimated fee.
var ErrInsufficientFunds = errors.New("insufficient funds locked")

// ErrRecoveryNotImplemented is returned by protocol.Recover; recovering a
// maker after a crash mid-swap is out of scope (spec.md §1 Non-goals).
var ErrRecoveryNotImplemented = errors.New("recovery is not implemented")
