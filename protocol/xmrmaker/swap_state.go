// Package xmrmaker manages the swap state of individual swaps where the
// local instance is offering Monero and accepting Bitcoin in return.
package xmrmaker

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	logging "github.com/ipfs/go-log"

	"github.com/nthswap/xmrbtc-swap/bitcoin"
	"github.com/nthswap/xmrbtc-swap/coins"
	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/common/types"
	"github.com/nthswap/xmrbtc-swap/crypto/adaptor"
	mcrypto "github.com/nthswap/xmrbtc-swap/crypto/monero"
	"github.com/nthswap/xmrbtc-swap/crypto/secp256k1"
	xmrwallet "github.com/nthswap/xmrbtc-swap/monero"
	"github.com/nthswap/xmrbtc-swap/net"
	"github.com/nthswap/xmrbtc-swap/net/message"
	pcommon "github.com/nthswap/xmrbtc-swap/protocol"
	"github.com/nthswap/xmrbtc-swap/protocol/backend"
	pswap "github.com/nthswap/xmrbtc-swap/protocol/swap"
)

var log = logging.Logger("xmrmaker")

// swapState drives one maker-side swap from key exchange to a terminal
// state via step(), never mutating its own State in place: Run() holds the
// single State value and only step()'s return advances it, so a crash can
// never leave persisted state ahead of what was actually observed.
type swapState struct {
	backend.Backend

	ctx    context.Context
	cancel context.CancelFunc

	session *net.Session
	info    *pswap.Info

	keys *pcommon.KeysAndProof

	counterpartySpendKey     *mcrypto.PublicKey
	counterpartyViewKey      *mcrypto.PrivateViewKey
	counterpartySecp256k1Pub *secp256k1.PublicKey

	btcAmount coins.BitcoinAmount
	xmrAmount coins.PiconeroAmount

	lockOutput   *bitcoin.TimelockOutput // key path: maker redeem; script path: taker cancel
	cancelOutput *bitcoin.TimelockOutput // key path: taker refund; script path: maker punish

	// receiveAddr is the maker's own BTC redeem destination, fixed at key
	// exchange time and shared with the taker so its adaptor pre-signature
	// commits to the exact transaction the maker will later complete.
	receiveAddr     btcutil.Address
	receivePkScript []byte

	lockWatchable       *bitcoin.TxidScript
	lockVout            uint32
	lockInclusionHeight uint32

	cancelWatchable       *bitcoin.TxidScript
	cancelInclusionHeight uint32

	redeemSpendTx *bitcoin.SpendTx
	presig        *adaptor.PreSignature

	xmrTxHash        string
	xmrRestoreHeight uint64
}

// NewFromIncomingRequest runs the maker's side of the ExecutionSetup
// handshake over stream and returns a swap ready to Run(). btcAmount and
// xmrAmount are the amounts already agreed during the preceding Quote
// round for this connection.
func NewFromIncomingRequest(
	ctx context.Context,
	b backend.Backend,
	session *net.Session,
	stream *net.Stream,
	btcAmount coins.BitcoinAmount,
	xmrAmount coins.PiconeroAmount,
) (*swapState, error) {
	msg, err := stream.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read taker's keys: %s", common.ErrPeerFailure, err)
	}
	takerMsg, ok := msg.(*message.SendKeysMessage)
	if !ok {
		return nil, fmt.Errorf("%w: expected SendKeysMessage, got %T", common.ErrProtocolViolation, msg)
	}
	if takerMsg.ProvidedAmount.Cmp(btcAmount.AsDecimal()) != 0 {
		return nil, fmt.Errorf("%w: taker declared %s BTC, quote was for %s",
			common.ErrProtocolViolation, takerMsg.ProvidedAmount, btcAmount.AsDecimal())
	}

	verified, err := pcommon.VerifyKeysAndProof(takerMsg.DLEqProof, takerMsg.Secp256k1PublicKey, takerMsg.PublicSpendKey)
	if err != nil {
		return nil, fmt.Errorf("%w: taker's key proof is invalid: %s", common.ErrProtocolViolation, err)
	}

	keys, err := pcommon.GenerateKeysAndProof()
	if err != nil {
		return nil, err
	}

	receiveAddr, err := b.BTCWallet().NewAddress()
	if err != nil {
		return nil, err
	}
	receivePkScript, err := txscript.PayToAddrScript(receiveAddr)
	if err != nil {
		return nil, err
	}

	ourMsg := &message.SendKeysMessage{
		SwapID:             takerMsg.SwapID,
		ProvidedAmount:     xmrAmount.AsDecimal(),
		PublicSpendKey:     keys.PublicKeyPair.SpendKey(),
		PrivateViewKey:     keys.PrivateKeyPair.ViewKey(),
		DLEqProof:          keys.DLEqProof.Proof(),
		Secp256k1PublicKey: keys.Secp256k1PublicKey,
		BTCAddress:         receiveAddr.EncodeAddress(),
	}
	if err := stream.WriteMessage(ourMsg); err != nil {
		return nil, fmt.Errorf("%w: failed to send our keys: %s", common.ErrPeerFailure, err)
	}

	swapCtx, cancel := context.WithCancel(ctx)
	info := pswap.NewInfo(takerMsg.SwapID, pswap.RoleMaker, btcAmount.AsSats(), xmrAmount.AsPiconero(),
		types.StatusOngoing, time.Now())
	if err := b.SwapManager().AddSwap(info); err != nil {
		cancel()
		return nil, err
	}

	return &swapState{
		Backend:                  b,
		ctx:                      swapCtx,
		cancel:                   cancel,
		session:                  session,
		info:                     info,
		keys:                     keys,
		counterpartySpendKey:     verified.Ed25519PublicKey,
		counterpartyViewKey:      takerMsg.PrivateViewKey,
		counterpartySecp256k1Pub: verified.Secp256k1PublicKey,
		btcAmount:                btcAmount,
		xmrAmount:                xmrAmount,
		receiveAddr:              receiveAddr,
		receivePkScript:          receivePkScript,
	}, nil
}

// ID implements net.SwapState.
func (s *swapState) ID() string { return s.info.ID.String() }

// Exit implements net.SwapState, cancelling the swap's context so any
// in-flight step() call returns promptly.
func (s *swapState) Exit() error {
	s.cancel()
	return nil
}

// Run drives the swap to a terminal state, persisting s.info after every
// transition so a restart can at least report the last known status
// (full mid-swap recovery is out of scope: protocol/recover.go).
func (s *swapState) Run() {
	defer s.cancel()

	state := StateStarted
	for !state.IsTerminal() {
		next, err := s.step(state)
		if err != nil {
			log.Errorf("swap %s: step from %s failed: %s", s.info.ID, state, err)
			state = s.onError(state, err)
			continue
		}
		log.Infof("swap %s: %s -> %s", s.info.ID, state, next)
		state = next
		s.info.Status = state.Status()
		if err := s.SwapManager().WriteSwapToDB(s.info); err != nil {
			log.Warnf("swap %s: failed to persist status: %s", s.info.ID, err)
		}
	}

	s.info.Status = state.Status()
	if err := s.SwapManager().CompleteOngoingSwap(s.info); err != nil {
		log.Warnf("swap %s: failed to mark swap complete: %s", s.info.ID, err)
	}
}

// onError maps a failed step to its safest next state: before any XMR has
// been locked the swap can simply abort; once XMR is committed, the only
// safe moves are the cancel/refund/punish branch, which callers re-enter
// by watching the lock timelock directly.
func (s *swapState) onError(state State, err error) State {
	if state < StateXmrLockTransactionSent && s.info.XMRLockTxHash == "" {
		return StateSafelyAborted
	}
	return StateCancelTimelockExpired
}

func (s *swapState) step(state State) (State, error) {
	switch state {
	case StateStarted:
		return s.negotiateOutputs()
	case StateNegotiated:
		return s.watchLockSeen()
	case StateBtcLockTransactionSeen:
		return s.watchLockFinality()
	case StateBtcLocked:
		return s.sendXMRLock()
	case StateXmrLockTransactionSent:
		return s.watchXMRFinality()
	case StateXmrLocked:
		return s.waitEncSig()
	case StateEncSigLearned:
		return s.redeemBTC()
	case StateCancelTimelockExpired:
		return s.watchCancelTransaction()
	case StateBtcCancelled:
		return s.racePunishOrRefund()
	case StateBtcRefundable:
		return s.waitOutForRefundOrPunish()
	case StateBtcPunishable:
		return s.punish()
	default:
		return state, fmt.Errorf("%w: no step defined for state %s", common.ErrInternal, state)
	}
}

// negotiateOutputs computes the aggregate lock and cancel Taproot outputs
// both parties will watch for (spec.md §3 "Timelocks", §4.C).
func (s *swapState) negotiateOutputs() (State, error) {
	aggregateLockKey := bitcoin.SumPublicKeys(s.keys.Secp256k1PublicKey.BTCEC(), s.counterpartySecp256k1Pub.BTCEC())
	lockOutput, err := bitcoin.NewTimelockOutput(aggregateLockKey, s.counterpartySecp256k1Pub.BTCEC(), s.Env().BitcoinCancelTimelock)
	if err != nil {
		return 0, fmt.Errorf("failed to build lock output: %w", err)
	}

	cancelOutput, err := bitcoin.NewTimelockOutput(s.counterpartySecp256k1Pub.BTCEC(), s.keys.Secp256k1PublicKey.BTCEC(), s.Env().BitcoinPunishTimelock)
	if err != nil {
		return 0, fmt.Errorf("failed to build cancel output: %w", err)
	}

	s.lockOutput = lockOutput
	s.cancelOutput = cancelOutput
	return StateNegotiated, nil
}

// watchLockSeen waits for the taker's funding transaction to appear paying
// the lock output's address.
func (s *swapState) watchLockSeen() (State, error) {
	addrStr, err := s.lockOutput.Address(s.Env().BitcoinNetwork)
	if err != nil {
		return 0, err
	}
	addr, err := btcutil.DecodeAddress(addrStr, s.Env().BitcoinNetwork)
	if err != nil {
		return 0, err
	}

	w, vout, amt, err := s.BTCClient().WatchForOutput(s.ctx, addr)
	if err != nil {
		return 0, err
	}
	if btcutil.Amount(amt) < btcutil.Amount(s.btcAmount.AsSats()) {
		return 0, fmt.Errorf("%w: taker locked %s, expected %s",
			common.ErrProtocolViolation, btcutil.Amount(amt), btcutil.Amount(s.btcAmount.AsSats()))
	}

	s.lockWatchable = w
	s.lockVout = vout

	spendTx, err := bitcoin.NewSpendTx(
		wire.OutPoint{Hash: w.Txid, Index: vout},
		int64(s.btcAmount.AsSats()),
		s.lockOutput,
		s.receivePkScript,
		bitcoin.EstimatedRedeemFeeSats,
		0,
	)
	if err != nil {
		return 0, err
	}
	s.redeemSpendTx = spendTx

	return StateBtcLockTransactionSeen, nil
}

// watchLockFinality waits for the lock transaction to reach
// BitcoinFinalityConfirmations.
func (s *swapState) watchLockFinality() (State, error) {
	target := s.Env().BitcoinFinalityConfirmations
	var confirmedAt bitcoin.Confirmed
	err := s.BTCClient().WatchUntilStatus(s.ctx, s.lockWatchable, func(status bitcoin.ScriptStatus) bool {
		if !status.IsConfirmedWith(target) {
			return false
		}
		confirmedAt = status.Confirmed()
		return true
	})
	if err != nil {
		return 0, err
	}
	tip := s.BTCClient().LatestBlock()
	s.lockInclusionHeight = tip - confirmedAt.Confirmations() + 1
	return StateBtcLocked, nil
}

// sendXMRLock broadcasts the maker's Monero lock transfer and informs the
// taker via TransferProofMessage (spec.md §4.C).
func (s *swapState) sendXMRLock() (State, error) {
	jointSpendKey := mcrypto.SumPublic(s.keys.PublicKeyPair.SpendKey(), s.counterpartySpendKey)
	jointViewKey := mcrypto.SumViewKeys(s.keys.PrivateKeyPair.ViewKey(), s.counterpartyViewKey)
	jointPub := mcrypto.NewPublicKeyPair(jointSpendKey, jointViewKey.Public())

	wc := s.MoneroWalletClient()
	height, err := wc.GetChainHeight()
	if err != nil {
		return 0, err
	}

	addr, err := mcrypto.StandardAddress(jointPub, s.Env().MoneroNetwork)
	if err != nil {
		return 0, err
	}

	txHash, err := s.sweepToJointAddress(wc, string(addr))
	if err != nil {
		return 0, err
	}

	s.xmrTxHash = txHash
	s.xmrRestoreHeight = height
	s.info.XMRLockTxHash = txHash
	s.info.XMRLockRestoreHeight = height
	if err := s.SwapManager().WriteSwapToDB(s.info); err != nil {
		log.Warnf("swap %s: failed to persist xmr lock transfer proof: %s", s.info.ID, err)
	}

	proof := &message.TransferProofMessage{
		SwapID:        s.info.ID,
		TxHash:        txHash,
		TxKey:         s.keys.PrivateKeyPair.ViewKey(),
		RestoreHeight: height,
	}
	if err := s.session.Dial(s.ctx); err != nil {
		return 0, err
	}
	if err := s.session.SendTransferProof(s.ctx, proof); err != nil {
		return 0, err
	}

	return StateXmrLockTransactionSent, nil
}

// sweepToJointAddress transfers the agreed XMR amount from the maker's own
// wallet to the joint address derived from both parties' spend keys.
func (s *swapState) sweepToJointAddress(wc xmrwallet.WalletClient, jointAddr string) (string, error) {
	if err := wc.Refresh(); err != nil {
		return "", err
	}
	txHashes, err := wc.SweepAll(jointAddr)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sweep xmr lock funds: %s", common.ErrChainConnectivity, err)
	}
	if len(txHashes) == 0 {
		return "", fmt.Errorf("%w: sweep produced no transaction", common.ErrChainConnectivity)
	}
	return txHashes[0], nil
}

// watchXMRFinality confirms the maker's own lock transfer reached
// MoneroFinalityConfirmations, mirroring watch_for_transfer from the
// taker's perspective but watched here against the maker's own keys.
func (s *swapState) watchXMRFinality() (State, error) {
	req := &xmrwallet.TransferRequest{
		SpendPublicKey: mcrypto.SumPublic(s.keys.PublicKeyPair.SpendKey(), s.counterpartySpendKey),
		ViewKey:        mcrypto.SumViewKeys(s.keys.PrivateKeyPair.ViewKey(), s.counterpartyViewKey),
		Amount:         s.xmrAmount,
		RestoreHeight:  s.xmrRestoreHeight,
	}
	_, err := xmrwallet.WatchForTransfer(s.ctx, s.XMRWalletRPCURL(), s.Env().MoneroNetwork, req, s.Env().MoneroFinalityConfirmations)
	if err != nil {
		return 0, err
	}
	return StateXmrLocked, nil
}

// waitEncSig blocks for the taker's adaptor pre-signature over the redeem
// transaction and verifies it against our own adaptor point.
func (s *swapState) waitEncSig() (State, error) {
	encSig, err := s.session.RecvEncryptedSignature(s.ctx, s.info.ID)
	if err != nil {
		return 0, err
	}

	presig, err := adaptor.DecodePreSignature(encSig.EncryptedSignature)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", common.ErrProtocolViolation, err)
	}

	sigHash, err := s.redeemSpendTx.KeyPathSigHash()
	if err != nil {
		return 0, err
	}
	if !adaptor.Verify(presig, s.counterpartySecp256k1Pub.BTCEC(), s.keys.Secp256k1PublicKey.BTCEC(), sigHash) {
		return 0, fmt.Errorf("%w: taker's encrypted signature does not verify", common.ErrProtocolViolation)
	}

	s.presig = presig
	return StateEncSigLearned, nil
}

// redeemBTC completes the taker's adaptor pre-signature with our own
// secp256k1 key and broadcasts the redeem transaction, claiming the
// locked bitcoin (spec.md §4.D "adapt_and_broadcast").
func (s *swapState) redeemBTC() (State, error) {
	t := new(big.Int).SetBytes(s.keys.Secp256k1PrivateKey.BTCEC().Serialize())
	fullSig := adaptor.Adapt(s.presig, t)
	tx := s.redeemSpendTx.FinalizeKeyPath(fullSig)

	txid, err := s.BTCWallet().Broadcast(tx, "redeem")
	if err != nil {
		return 0, err
	}

	watchable := &bitcoin.TxidScript{Txid: txid, PkScript: s.receivePkScript}
	target := s.Env().BitcoinFinalityConfirmations
	err = s.BTCClient().WatchUntilStatus(s.ctx, watchable, func(status bitcoin.ScriptStatus) bool {
		return status.IsConfirmedWith(target)
	})
	if err != nil {
		return 0, err
	}

	return StateBtcRedeemed, nil
}

// watchCancelTransaction watches for the taker's cancel transaction and
// its finality, once the cancel timelock has elapsed on the lock output.
func (s *swapState) watchCancelTransaction() (State, error) {
	addrStr, err := s.cancelOutput.Address(s.Env().BitcoinNetwork)
	if err != nil {
		return 0, err
	}
	addr, err := btcutil.DecodeAddress(addrStr, s.Env().BitcoinNetwork)
	if err != nil {
		return 0, err
	}

	w, _, _, err := s.BTCClient().WatchForOutput(s.ctx, addr)
	if err != nil {
		return 0, err
	}
	s.cancelWatchable = w

	var confirmedAt bitcoin.Confirmed
	err = s.BTCClient().WatchUntilStatus(s.ctx, w, func(status bitcoin.ScriptStatus) bool {
		if !status.IsConfirmedWith(1) {
			return false
		}
		confirmedAt = status.Confirmed()
		return true
	})
	if err != nil {
		return 0, err
	}
	tip := s.BTCClient().LatestBlock()
	s.cancelInclusionHeight = tip - confirmedAt.Confirmations() + 1

	return StateBtcCancelled, nil
}

// racePunishOrRefund waits out the punish timelock counted from the
// cancel transaction's inclusion height (spec.md §3 "Timelocks"). Whether
// the taker has already refunded via the cancel output's key path is left
// for punish() to discover by attempting its own spend: the chain itself
// rejects a double-spend, which is cheaper than a second watcher here.
func (s *swapState) racePunishOrRefund() (State, error) {
	for {
		tip := s.BTCClient().LatestBlock()
		if bitcoin.PunishStatus(s.cancelInclusionHeight, tip, s.Env().BitcoinPunishTimelock) == bitcoin.TimelockPunish {
			return StateBtcPunishable, nil
		}
		if err := common.SleepWithContext(s.ctx, s.Env().BitcoinSyncInterval); err != nil {
			return 0, err
		}
	}
}

// waitOutForRefundOrPunish exists only so State's punish/refund branch has
// a named predecessor for StateBtcRefundable in the state graph; the
// actual decision of which path was taken is made in punish() once it
// tries to spend the cancel output.
func (s *swapState) waitOutForRefundOrPunish() (State, error) {
	return StateBtcPunishable, nil
}

// punish attempts to sweep the cancel output via its CSV-gated script
// path. If the taker already refunded via the key path first, the
// broadcast fails as a double-spend and the swap is recorded as
// unrecoverably lost to the maker: recovering the taker's revealed secret
// from its refund transaction would need a second adaptor-signed
// handshake round this protocol does not carry (common.ErrRecoveryNotImplemented).
func (s *swapState) punish() (State, error) {
	toAddr, err := s.BTCWallet().NewAddress()
	if err != nil {
		return 0, err
	}
	toPkScript, err := txscript.PayToAddrScript(toAddr)
	if err != nil {
		return 0, err
	}

	spendTx, err := bitcoin.NewSpendTx(
		wire.OutPoint{Hash: s.cancelWatchable.Txid, Index: 0},
		int64(s.btcAmount.AsSats())-bitcoin.EstimatedRedeemFeeSats,
		s.cancelOutput,
		toPkScript,
		bitcoin.EstimatedRedeemFeeSats,
		s.Env().BitcoinPunishTimelock,
	)
	if err != nil {
		return 0, err
	}

	sigHash, err := spendTx.ScriptPathSigHash()
	if err != nil {
		return 0, err
	}
	sig, err := schnorr.Sign(s.keys.Secp256k1PrivateKey.BTCEC(), sigHash[:])
	if err != nil {
		return 0, err
	}

	tx, err := spendTx.FinalizeScriptPath(sig)
	if err != nil {
		return 0, err
	}
	if _, err := s.BTCWallet().Broadcast(tx, "punish"); err != nil {
		log.Infof("swap %s: punish broadcast rejected, assuming taker already refunded: %s", s.info.ID, err)
		log.Warnf("swap %s: %s", s.info.ID, common.ErrRecoveryNotImplemented)
		return StateXmrRefunded, nil
	}

	return StateBtcPunished, nil
}
