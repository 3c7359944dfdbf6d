// Package common provides configuration, logging, and error types shared by
// every other package in the swap.
package common

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// Environment selects the network profile the swap runs against.
type Environment int

const (
	// Testnet runs against Bitcoin testnet3 and Monero stagenet.
	Testnet Environment = iota
	// Mainnet runs against the real Bitcoin and Monero networks.
	Mainnet
)

// String implements fmt.Stringer.
func (e Environment) String() string {
	switch e {
	case Testnet:
		return "testnet"
	case Mainnet:
		return "mainnet"
	default:
		return fmt.Sprintf("Environment(%d)", int(e))
	}
}

// EnvConfig carries every network- and timing-dependent constant the
// protocol needs. One instance is selected at startup from Environment and
// threaded everywhere a component needs to know "how long is safe enough."
type EnvConfig struct {
	Env Environment

	BitcoinNetwork *chaincfg.Params
	MoneroNetwork  string // "mainnet", "stagenet"

	// BitcoinFinalityConfirmations is the confirmation depth at which a
	// Bitcoin transaction is treated as irreversible.
	BitcoinFinalityConfirmations uint32
	// MoneroFinalityConfirmations is the confirmation depth at which a
	// Monero lock transfer is treated as irreversible.
	MoneroFinalityConfirmations uint64

	// BitcoinCancelTimelock (T1) and BitcoinPunishTimelock (T2) are
	// relative timelocks in blocks: T1 counts from the lock tx's inclusion
	// height, T2 from the cancel tx's. See spec.md §3 "Timelocks".
	BitcoinCancelTimelock  uint32
	BitcoinPunishTimelock  uint32
	BitcoinSyncInterval    time.Duration
}

// ConfigDefaultsForEnv returns the well-known constants for env. Each call
// returns a fresh instance so callers can't accidentally share mutable state.
func ConfigDefaultsForEnv(env Environment) *EnvConfig {
	switch env {
	case Mainnet:
		return &EnvConfig{
			Env:                          Mainnet,
			BitcoinNetwork:               &chaincfg.MainNetParams,
			MoneroNetwork:                "mainnet",
			BitcoinFinalityConfirmations: 3,
			MoneroFinalityConfirmations:  15,
			BitcoinCancelTimelock:        72,
			BitcoinPunishTimelock:        72,
			BitcoinSyncInterval:          30 * time.Second,
		}
	case Testnet:
		return &EnvConfig{
			Env:                          Testnet,
			BitcoinNetwork:               &chaincfg.TestNet3Params,
			MoneroNetwork:                "stagenet",
			BitcoinFinalityConfirmations: 1,
			MoneroFinalityConfirmations:  5,
			BitcoinCancelTimelock:        10,
			BitcoinPunishTimelock:        20,
			BitcoinSyncInterval:          5 * time.Second,
		}
	default:
		panic(fmt.Sprintf("unknown environment %d", int(env)))
	}
}
