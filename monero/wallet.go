// Package monero provides the Monero-side wallet operations the swap
// needs: watching for a counterparty's lock transfer, claiming a shared
// output once the adaptor secret is known, and sweeping funds out. It
// talks to a running monero-wallet-rpc instance exactly as the original
// Rust implementation's monero-wallet-rpc client does.
package monero

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log"
	"github.com/MarinX/monerorpc"
	"github.com/MarinX/monerorpc/wallet"

	"github.com/nthswap/xmrbtc-swap/coins"
	"github.com/nthswap/xmrbtc-swap/common"
	mcrypto "github.com/nthswap/xmrbtc-swap/crypto/monero"
)

var log = logging.Logger("monero")

// WalletClient is the subset of monero-wallet-rpc operations the swap
// depends on. Satisfied by *walletClient; an interface so tests can supply
// a fake.
type WalletClient interface {
	GetChainHeight() (uint64, error)
	Refresh() error
	GetAddress() (string, error)
	GetBalance() (coins.PiconeroAmount, coins.PiconeroAmount, error) // balance, unlocked
	OpenWalletFromKeys(filename string, keys *mcrypto.PrivateKeyPair, restoreHeight uint64) error
	// OpenWatchOnlyWallet opens a wallet that can see, but not spend,
	// transfers to spendPublicKey: it knows viewKey (shared openly between
	// swap parties precisely so each can watch the other's lock output)
	// but not the spend private key.
	OpenWatchOnlyWallet(filename string, spendPublicKey *mcrypto.PublicKey, viewKey *mcrypto.PrivateViewKey, restoreHeight uint64) error
	SweepAll(destAddress string) ([]string, error)
	Close()
}

type walletClient struct {
	rpc     *monerorpc.MoneroRPC
	w       wallet.Wallet
	network string
}

// NewWalletClient dials monero-wallet-rpc at rpcURL. network is "mainnet"
// or "stagenet", used only for address encoding/decoding.
func NewWalletClient(rpcURL, network string) WalletClient {
	rpc := monerorpc.New(monerorpc.NewClient(rpcURL), nil)
	return &walletClient{rpc: rpc, w: rpc.Wallet, network: network}
}

func (c *walletClient) GetChainHeight() (uint64, error) {
	resp, err := c.w.GetHeight()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", common.ErrChainConnectivity, err)
	}
	return resp.Height, nil
}

func (c *walletClient) Refresh() error {
	_, err := c.w.Refresh(&wallet.RefreshRequest{})
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrChainConnectivity, err)
	}
	return nil
}

func (c *walletClient) GetAddress() (string, error) {
	resp, err := c.w.GetAddress(&wallet.GetAddressRequest{AccountIndex: 0})
	if err != nil {
		return "", fmt.Errorf("%w: %s", common.ErrChainConnectivity, err)
	}
	return resp.Address, nil
}

func (c *walletClient) GetBalance() (coins.PiconeroAmount, coins.PiconeroAmount, error) {
	resp, err := c.w.GetBalance(&wallet.GetBalanceRequest{AccountIndex: 0})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", common.ErrChainConnectivity, err)
	}
	return coins.NewPiconeroAmount(resp.Balance), coins.NewPiconeroAmount(resp.UnlockedBalance), nil
}

// OpenWalletFromKeys generates (or re-opens) a view-only-then-spend wallet
// file from an explicit spend/view key pair and loads it as the active
// wallet, seeking to restoreHeight: the optimization the taker's claim uses to
// avoid rescanning the whole chain for a key pair it just derived
// (spec.md §4.C "restore height hint").
func (c *walletClient) OpenWalletFromKeys(filename string, keys *mcrypto.PrivateKeyPair, restoreHeight uint64) error {
	address, err := mcrypto.StandardAddress(keys.PublicKeyPair(), c.network)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrConfiguration, err)
	}

	_, err = c.w.GenerateFromKeys(&wallet.GenerateFromKeysRequest{
		Filename:        filename,
		Address:         string(address),
		Spendkey:        keys.SpendKey().Hex(),
		Viewkey:         keys.ViewKey().Hex(),
		Password:        "",
		RestoreHeight:   restoreHeight,
		AutosaveCurrent: boolPtr(true),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to open wallet from keys: %s", common.ErrWalletSigning, err)
	}
	return nil
}

// OpenWatchOnlyWallet opens a wallet that can observe, but not spend,
// transfers to the standard address derived from (spendPublicKey,
// viewKey.Public()). Passing an empty Spendkey is monero-wallet-rpc's
// documented way of requesting a watch-only wallet.
func (c *walletClient) OpenWatchOnlyWallet(
	filename string,
	spendPublicKey *mcrypto.PublicKey,
	viewKey *mcrypto.PrivateViewKey,
	restoreHeight uint64,
) error {
	pair := mcrypto.NewPublicKeyPair(spendPublicKey, viewKey.Public())
	address, err := mcrypto.StandardAddress(pair, c.network)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrConfiguration, err)
	}

	_, err = c.w.GenerateFromKeys(&wallet.GenerateFromKeysRequest{
		Filename:        filename,
		Address:         string(address),
		Viewkey:         viewKey.Hex(),
		Password:        "",
		RestoreHeight:   restoreHeight,
		AutosaveCurrent: boolPtr(true),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to open watch-only wallet: %s", common.ErrWalletSigning, err)
	}
	return nil
}

// SweepAll sweeps every unlocked output in the currently-open wallet to
// destAddress, returning the resulting transaction IDs.
func (c *walletClient) SweepAll(destAddress string) ([]string, error) {
	resp, err := c.w.SweepAll(&wallet.SweepAllRequest{
		Address:    destAddress,
		AccountIndex: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrWalletSigning, err)
	}
	return resp.TxHashList, nil
}

func (c *walletClient) Close() {}

func boolPtr(b bool) *bool { return &b }

// WaitForBlocks waits for count new blocks to arrive, returning the height
// reached. Ported directly from the teacher's monero/utils.go.
func WaitForBlocks(ctx context.Context, client WalletClient, count int) (uint64, error) {
	startHeight, err := client.GetChainHeight()
	if err != nil {
		return 0, fmt.Errorf("failed to get height: %w", err)
	}
	prevHeight := startHeight
	endHeight := startHeight + uint64(count)

	for {
		height, err := client.GetChainHeight()
		if err != nil {
			return 0, err
		}

		if height >= endHeight {
			if err := client.Refresh(); err != nil {
				return 0, err
			}
			return height, nil
		}

		if height > prevHeight {
			log.Debugf("waiting for next block, current height %d (target height %d)", height, endHeight)
			prevHeight = height
		}

		if err := common.SleepWithContext(ctx, blockSleepDuration); err != nil {
			return 0, err
		}
	}
}

// blockSleepDuration is the duration slept between chain-height polls.
var blockSleepDuration = 10 * time.Second
