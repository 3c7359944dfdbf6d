// Package backend wraps the wallets, swap manager, and persistence the
// protocol state machines need behind one narrow interface,
// so xmrmaker/xmrtaker never thread a *bitcoin.Wallet mutex handle or a
// *net.Host reference through their own state (spec.md §9).
package backend

import (
	"context"
	"time"

	"github.com/nthswap/xmrbtc-swap/bitcoin"
	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/db"
	"github.com/nthswap/xmrbtc-swap/monero"
	"github.com/nthswap/xmrbtc-swap/protocol/swap"
)

// Backend is the set of dependencies a running swap state machine is
// allowed to see: its own chain wallets, the Monero wallet client, the env
// config (timelocks, finality depths), and the swap manager, through which
// the database is reached.
// It never exposes the libp2p Host directly; a *net.Session is handed to
// each swap individually by the caller that owns the connection.
type Backend interface {
	Ctx() context.Context
	Env() *common.EnvConfig

	BTCWallet() *bitcoin.Wallet
	BTCClient() *bitcoin.Client
	XMRWalletRPCURL() string
	// MoneroWalletClient returns a fresh client dialed at the configured
	// monero-wallet-rpc endpoint. A fresh client per call mirrors
	// monero/transfer.go's own WatchForTransfer/ClaimXMR, which each open
	// their own wallet file rather than share one across concurrent swaps.
	MoneroWalletClient() monero.WalletClient

	SwapManager() swap.Manager
	SwapTimeout() time.Duration
}

// backend is the concrete Backend implementation, constructed once at
// startup and shared (read-only after construction) by every swap task.
type backend struct {
	ctx context.Context
	env *common.EnvConfig

	btcWallet *bitcoin.Wallet
	btcClient *bitcoin.Client
	xmrRPCURL string

	swapManager swap.Manager
	swapTimeout time.Duration
}

var _ Backend = (*backend)(nil)

// Config bundles the constructor arguments for New.
type Config struct {
	Ctx context.Context
	Env *common.EnvConfig

	BTCWallet *bitcoin.Wallet
	BTCClient *bitcoin.Client
	XMRRPCURL string

	Database    *db.Database
	SwapTimeout time.Duration
}

// New constructs a Backend, wiring a fresh swap.Manager to cfg.Database.
func New(cfg *Config) (Backend, error) {
	mgr, err := swap.NewManager(cfg.Database)
	if err != nil {
		return nil, err
	}

	return &backend{
		ctx:         cfg.Ctx,
		env:         cfg.Env,
		btcWallet:   cfg.BTCWallet,
		btcClient:   cfg.BTCClient,
		xmrRPCURL:   cfg.XMRRPCURL,
		swapManager: mgr,
		swapTimeout: cfg.SwapTimeout,
	}, nil
}

func (b *backend) Ctx() context.Context       { return b.ctx }
func (b *backend) Env() *common.EnvConfig     { return b.env }
func (b *backend) BTCWallet() *bitcoin.Wallet { return b.btcWallet }
func (b *backend) BTCClient() *bitcoin.Client { return b.btcClient }
func (b *backend) XMRWalletRPCURL() string    { return b.xmrRPCURL }
func (b *backend) SwapManager() swap.Manager  { return b.swapManager }
func (b *backend) SwapTimeout() time.Duration { return b.swapTimeout }

func (b *backend) MoneroWalletClient() monero.WalletClient {
	return monero.NewWalletClient(b.xmrRPCURL, b.env.MoneroNetwork)
}
