package bitcoin

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/btcsuite/btcwallet/wallet"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/walletdb"

	"github.com/nthswap/xmrbtc-swap/common"
)

// staticFeeRatePerKVB is the static fallback fee rate (5 sat/vB, matching
// original_source/swap/src/bitcoin/wallet.rs's select_feerate, which notes
// in its own TODO that a real fee estimator should replace this).
const staticFeeRatePerKVB = 5000

// Wallet wraps a btcwallet-backed deterministic wallet and the polling
// Client, mirroring the pairing in the original Rust Wallet struct.
type Wallet struct {
	mu sync.Mutex

	wallet                 *wallet.Wallet
	db                     walletdb.DB
	client                 *Client
	net                    *chaincfg.Params
	finalityConfirmations uint32
}

// Open loads (or creates, if absent) a btcwallet-format wallet database at
// dbPath, using privPass to unlock the private keys.
func Open(
	db walletdb.DB,
	pubPass, privPass []byte,
	net *chaincfg.Params,
	client *Client,
	finalityConfirmations uint32,
) (*Wallet, error) {
	loader := wallet.NewLoader(net, "", false, 250)

	exists, err := loader.WalletExists()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrConfiguration, err)
	}

	var w *wallet.Wallet
	if exists {
		w, err = loader.OpenExistingWallet(pubPass, false)
	} else {
		var seed []byte
		seed, err = generateSeed()
		if err != nil {
			return nil, err
		}
		w, err = loader.CreateNewWallet(pubPass, privPass, seed, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open wallet: %s", common.ErrConfiguration, err)
	}

	w.Start()

	return &Wallet{
		wallet:                w,
		db:                    db,
		client:                client,
		net:                   net,
		finalityConfirmations: finalityConfirmations,
	}, nil
}

func generateSeed() ([]byte, error) {
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate wallet seed: %s", common.ErrConfiguration, err)
	}
	return seed, nil
}

// Balance returns the wallet's confirmed balance.
func (w *Wallet) Balance() (btcutil.Amount, error) {
	return w.wallet.CalculateBalance(1)
}

// NewAddress returns a fresh external receive address.
func (w *Wallet) NewAddress() (btcutil.Address, error) {
	return w.wallet.NewAddress(0, waddrmgr.KeyScopeBIP0084)
}

// GetRawTransaction fetches a previously broadcast transaction by txid.
func (w *Wallet) GetRawTransaction(txid chainhash.Hash) (*wire.MsgTx, error) {
	details, err := wallet.UnstableAPI(w.wallet).TxDetails(txid)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrChainConnectivity, err)
	}
	if details == nil {
		return nil, fmt.Errorf("could not find tx %s", txid)
	}
	return &details.MsgTx, nil
}

// SendToAddress builds (but does not sign) a PSBT with a single output
// paying amount to addr. It selects no inputs and adds no fee or change
// output: the packet carries that one output only.
func (w *Wallet) SendToAddress(addr btcutil.Address, amount btcutil.Amount) (*psbt.Packet, error) {
	pkScript, err := txscriptPayToAddr(addr)
	if err != nil {
		return nil, err
	}

	out := wire.NewTxOut(int64(amount), pkScript)
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(out)

	return psbt.NewFromUnsignedTx(tx)
}

// MaxGiveable returns the largest amount this wallet can pay to a single
// output of lockingScriptSize bytes: the wallet balance minus a flat fee
// estimate for a transaction of lockingScriptSize+150 bytes at the static
// fee rate. No dry-run transaction is built.
func (w *Wallet) MaxGiveable(lockingScriptSize int) (btcutil.Amount, error) {
	balance, err := w.Balance()
	if err != nil {
		return 0, err
	}

	feeRate := txrules.SatPerKVByte(staticFeeRatePerKVB)
	estFee := feeRate.FeeForSize(int64(lockingScriptSize) + 150) // rough single-input-output estimate

	if btcutil.Amount(estFee) >= balance {
		return 0, fmt.Errorf("%w: balance %s too small to cover fee %s",
			common.ErrInsufficientFunds, balance, btcutil.Amount(estFee))
	}

	return balance - btcutil.Amount(estFee), nil
}

// SignAndFinalize finalizes every input of pkt and extracts the final wire
// transaction. It adds no signatures itself: an input that does not
// already carry its signatures fails with ErrWalletSigning.
func (w *Wallet) SignAndFinalize(pkt *psbt.Packet) (*wire.MsgTx, error) {
	for i := range pkt.Inputs {
		if err := psbt.Finalize(pkt, i); err != nil {
			return nil, fmt.Errorf("%w: input %d: %s", common.ErrWalletSigning, i, err)
		}
	}

	if !pkt.IsComplete() {
		return nil, common.ErrNotFinalized
	}

	return psbt.Extract(pkt)
}

// Broadcast publishes tx and returns its txid; callers watch for finality
// separately via Client.WatchUntilStatus (spec.md §4.A/§4.C).
func (w *Wallet) Broadcast(tx *wire.MsgTx, kind string) (chainhash.Hash, error) {
	txid, err := w.client.rpc.SendRawTransaction(tx, false)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: failed to broadcast %s transaction: %s",
			common.ErrChainConnectivity, kind, err)
	}
	log.Infof("published bitcoin %s transaction %s", kind, txid)
	return *txid, nil
}

// Network returns the chain params this wallet operates against.
func (w *Wallet) Network() *chaincfg.Params {
	return w.net
}

func txscriptPayToAddr(addr btcutil.Address) ([]byte, error) {
	return txscript.PayToAddrScript(addr)
}
