package monero

import (
	"context"
	"fmt"
	"time"

	"github.com/MarinX/monerorpc/wallet"

	"github.com/nthswap/xmrbtc-swap/coins"
	"github.com/nthswap/xmrbtc-swap/common"
	mcrypto "github.com/nthswap/xmrbtc-swap/crypto/monero"
)

// TransferRequest describes the lock transfer a watcher expects to see.
// ViewKey is the shared private view key both swap parties exchange
// openly (it grants visibility, not spending power) so each can watch the
// other's lock output without trusting a block explorer.
type TransferRequest struct {
	SpendPublicKey *mcrypto.PublicKey
	ViewKey        *mcrypto.PrivateViewKey
	Amount         coins.PiconeroAmount
	RestoreHeight  uint64
}

// TransferReceipt confirms a matching transfer was seen with at least the
// required confirmations.
type TransferReceipt struct {
	Amount coins.PiconeroAmount
	Height uint64
}

// pollInterval is how often WatchForTransfer re-checks incoming transfers.
const pollInterval = 5 * time.Second

// WatchForTransfer resolves once a transfer matching req's keys has
// accumulated at least finalityConfirmations confirmations. It returns
// common.ErrInsufficientFunds, wrapping the observed amount, if a matching
// transfer confirms but carries less than req.Amount (spec.md §4.C
// "watch_for_transfer").
func WatchForTransfer(
	ctx context.Context,
	rpcURL, network string,
	req *TransferRequest,
	finalityConfirmations uint64,
) (*TransferReceipt, error) {
	filename := fmt.Sprintf("swap-watch-%s", req.SpendPublicKey.Hex()[:16])

	client := NewWalletClient(rpcURL, network).(*walletClient)
	if err := client.OpenWatchOnlyWallet(filename, req.SpendPublicKey, req.ViewKey, req.RestoreHeight); err != nil {
		return nil, err
	}
	defer client.Close()

	for {
		if err := client.Refresh(); err != nil {
			return nil, err
		}

		received, height, err := incomingAmount(client, req.RestoreHeight, finalityConfirmations)
		if err != nil {
			return nil, err
		}

		if received != nil {
			if *received < req.Amount {
				return nil, fmt.Errorf("%w: expected %s, got %s", common.ErrInsufficientFunds, req.Amount, *received)
			}
			return &TransferReceipt{Amount: *received, Height: height}, nil
		}

		if err := common.SleepWithContext(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// incomingAmount sums confirmed incoming transfers to account 0 since
// restoreHeight, returning nil if none have reached finalityConfirmations yet.
func incomingAmount(c *walletClient, restoreHeight uint64, finalityConfirmations uint64) (*coins.PiconeroAmount, uint64, error) {
	resp, err := c.w.GetTransfers(&wallet.GetTransfersRequest{
		In:            true,
		AccountIndex:  0,
		MinHeight:     restoreHeight,
		FilterByHeight: true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", common.ErrChainConnectivity, err)
	}

	height, err := c.GetChainHeight()
	if err != nil {
		return nil, 0, err
	}

	var total uint64
	var maxHeight uint64
	var anyConfirmed bool
	for _, t := range resp.In {
		confirmations := uint64(0)
		if t.Height > 0 && height >= t.Height {
			confirmations = height - t.Height + 1
		}
		if confirmations < finalityConfirmations {
			continue
		}
		anyConfirmed = true
		total += t.Amount
		if t.Height > maxHeight {
			maxHeight = t.Height
		}
	}

	if !anyConfirmed {
		return nil, 0, nil
	}
	amt := coins.NewPiconeroAmount(total)
	return &amt, maxHeight, nil
}

// ClaimXMR constructs the combined spend key s = s_local + s_revealed,
// opens a wallet from it seeded at restoreHeight, and sweeps its contents
// to receiveAddress. The taker calls it during BtcRedeemed → XmrRedeemed,
// with the spend secret the maker's BTC redeem revealed (spec.md §4.C
// "claim_xmr").
func ClaimXMR(
	rpcURL, network string,
	localKeys *mcrypto.PrivateKeyPair,
	revealedSpendKey *mcrypto.PrivateSpendKey,
	restoreHeight uint64,
	receiveAddress string,
) ([]string, error) {
	combined := mcrypto.Sum(localKeys.SpendKey(), revealedSpendKey)
	claimKeys := mcrypto.NewPrivateKeyPair(combined, localKeys.ViewKey())

	client := NewWalletClient(rpcURL, network).(*walletClient)
	defer client.Close()

	filename := fmt.Sprintf("swap-claim-%s", combined.Hex()[:16])
	if err := client.OpenWalletFromKeys(filename, claimKeys, restoreHeight); err != nil {
		return nil, err
	}
	if err := client.Refresh(); err != nil {
		return nil, err
	}

	return client.SweepAll(receiveAddress)
}
