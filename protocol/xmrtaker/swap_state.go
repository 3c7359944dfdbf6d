package xmrtaker

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
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

var log = logging.Logger("xmrtaker")

// swapState drives one taker-side swap from key exchange to a terminal
// state via step(), mirroring xmrmaker's own driver: Run() holds the
// single State value and only step()'s return advances it.
type swapState struct {
	backend.Backend

	ctx    context.Context
	cancel context.CancelFunc

	session *net.Session
	stream  *net.Stream
	info    *pswap.Info

	keys *pcommon.KeysAndProof

	counterpartySpendKey     *mcrypto.PublicKey
	counterpartyViewKey      *mcrypto.PrivateViewKey
	counterpartySecp256k1Pub *secp256k1.PublicKey

	btcAmount coins.BitcoinAmount
	xmrAmount coins.PiconeroAmount

	lockOutput   *bitcoin.TimelockOutput // key path: maker redeem; script path: taker cancel
	cancelOutput *bitcoin.TimelockOutput // key path: taker refund; script path: maker punish

	// makerReceivePkScript is the maker's own BTC redeem destination,
	// learned from its SendKeysMessage at key exchange time. The adaptor
	// pre-signature below must commit to the exact transaction paying out
	// to this script, since Taproot's default sighash covers every output.
	makerReceivePkScript []byte

	lockTxid            chainhash.Hash
	lockVout            uint32
	lockInclusionHeight uint32

	// redeemSpendTx is the taker's own copy of the maker's eventual redeem
	// transaction template: same outpoint, amount, lock output and
	// destination, built independently so the taker can compute and sign
	// over the identical sighash without waiting on the maker to share it.
	redeemSpendTx *bitcoin.SpendTx

	cancelWatchable       *bitcoin.TxidScript
	cancelInclusionHeight uint32

	// presig is the adaptor pre-signature sent in sendEncSig, held onto so
	// waitForRedeem can recover the maker's secret from the eventual full
	// signature: Recover needs the exact pre-signature the maker verified
	// and adapted, not a freshly regenerated one (Sign's nonce is random).
	presig *adaptor.PreSignature

	// recoveredSpendKey is the maker's Monero spend scalar, recovered from
	// its completed Bitcoin redeem signature (spec.md §4.E "claim_xmr").
	recoveredSpendKey *mcrypto.PrivateSpendKey

	xmrRestoreHeight uint64
}

// NewFromExecutionSetup runs the taker's side of the ExecutionSetup
// handshake over a freshly opened stream and returns a swap ready to
// Run(). btcAmount and xmrAmount are the amounts already agreed during the
// preceding Quote round.
func NewFromExecutionSetup(
	ctx context.Context,
	b backend.Backend,
	session *net.Session,
	btcAmount coins.BitcoinAmount,
	xmrAmount coins.PiconeroAmount,
) (*swapState, error) {
	stream, err := session.ExecutionSetup(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := pcommon.GenerateKeysAndProof()
	if err != nil {
		stream.Close()
		return nil, err
	}

	receiveAddr, err := b.BTCWallet().NewAddress()
	if err != nil {
		stream.Close()
		return nil, err
	}

	swapID := types.NewSwapID()
	ourMsg := &message.SendKeysMessage{
		SwapID:             swapID,
		ProvidedAmount:     btcAmount.AsDecimal(),
		PublicSpendKey:     keys.PublicKeyPair.SpendKey(),
		PrivateViewKey:     keys.PrivateKeyPair.ViewKey(),
		DLEqProof:          keys.DLEqProof.Proof(),
		Secp256k1PublicKey: keys.Secp256k1PublicKey,
		BTCAddress:         receiveAddr.EncodeAddress(),
	}
	if err := stream.WriteMessage(ourMsg); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: failed to send our keys: %s", common.ErrPeerFailure, err)
	}

	msg, err := stream.ReadMessage()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: failed to read maker's keys: %s", common.ErrPeerFailure, err)
	}
	makerMsg, ok := msg.(*message.SendKeysMessage)
	if !ok {
		stream.Close()
		return nil, fmt.Errorf("%w: expected SendKeysMessage, got %T", common.ErrProtocolViolation, msg)
	}
	if makerMsg.ProvidedAmount.Cmp(xmrAmount.AsDecimal()) != 0 {
		stream.Close()
		return nil, fmt.Errorf("%w: maker declared %s XMR, quote was for %s",
			common.ErrProtocolViolation, makerMsg.ProvidedAmount, xmrAmount.AsDecimal())
	}

	verified, err := pcommon.VerifyKeysAndProof(makerMsg.DLEqProof, makerMsg.Secp256k1PublicKey, makerMsg.PublicSpendKey)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: maker's key proof is invalid: %s", common.ErrProtocolViolation, err)
	}

	makerAddr, err := btcutil.DecodeAddress(makerMsg.BTCAddress, b.Env().BitcoinNetwork)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: maker sent an invalid BTC address: %s", common.ErrProtocolViolation, err)
	}
	makerPkScript, err := txscript.PayToAddrScript(makerAddr)
	if err != nil {
		stream.Close()
		return nil, err
	}

	swapCtx, cancel := context.WithCancel(ctx)
	info := pswap.NewInfo(swapID, pswap.RoleTaker, btcAmount.AsSats(), xmrAmount.AsPiconero(),
		types.StatusOngoing, time.Now())
	if err := b.SwapManager().AddSwap(info); err != nil {
		cancel()
		stream.Close()
		return nil, err
	}

	return &swapState{
		Backend:                  b,
		ctx:                      swapCtx,
		cancel:                   cancel,
		session:                  session,
		stream:                   stream,
		info:                     info,
		keys:                     keys,
		counterpartySpendKey:     verified.Ed25519PublicKey,
		counterpartyViewKey:      makerMsg.PrivateViewKey,
		counterpartySecp256k1Pub: verified.Secp256k1PublicKey,
		btcAmount:                btcAmount,
		xmrAmount:                xmrAmount,
		makerReceivePkScript:     makerPkScript,
	}, nil
}

// ID implements net.SwapState.
func (s *swapState) ID() string { return s.info.ID.String() }

// Exit implements net.SwapState, cancelling the swap's context so any
// in-flight step() call returns promptly.
func (s *swapState) Exit() error {
	s.cancel()
	return s.stream.Close()
}

// Run drives the swap to a terminal state, persisting s.info after every
// transition so a restart can at least report the last known status.
func (s *swapState) Run() {
	defer s.cancel()
	defer s.stream.Close()

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

// onError maps a failed step to its safest next state: before the taker's
// own bitcoin is locked the swap can simply abort; once it is committed,
// the only safe moves are the cancel/refund/punish branch.
func (s *swapState) onError(state State, err error) State {
	if state < StateBtcLocked {
		return StateSafelyAborted
	}
	return StateCancelTimelockExpired
}

func (s *swapState) step(state State) (State, error) {
	switch state {
	case StateStarted:
		return s.negotiateOutputs()
	case StateExecutionSetupDone:
		return s.fundLock()
	case StateBtcLocked:
		return s.waitXMRLockProof()
	case StateXmrLockProofReceived:
		return s.watchXMRFinality()
	case StateXmrLocked:
		return s.sendEncSig()
	case StateEncSigSent:
		return s.waitForRedeem()
	case StateBtcRedeemed:
		return s.claimXMR()
	case StateCancelTimelockExpired:
		return s.cancelLock()
	case StateBtcCancelled:
		return s.refundOrWaitPunish()
	default:
		return state, fmt.Errorf("%w: no step defined for state %s", common.ErrInternal, state)
	}
}

// negotiateOutputs computes the aggregate lock and cancel Taproot outputs,
// with taker/maker roles mirrored relative to xmrmaker's own computation:
// the taker unlocks the lock output's script path (cancel) and the maker
// unlocks the cancel output's script path (punish).
func (s *swapState) negotiateOutputs() (State, error) {
	aggregateLockKey := bitcoin.SumPublicKeys(s.keys.Secp256k1PublicKey.BTCEC(), s.counterpartySecp256k1Pub.BTCEC())
	lockOutput, err := bitcoin.NewTimelockOutput(aggregateLockKey, s.keys.Secp256k1PublicKey.BTCEC(), s.Env().BitcoinCancelTimelock)
	if err != nil {
		return 0, fmt.Errorf("failed to build lock output: %w", err)
	}

	cancelOutput, err := bitcoin.NewTimelockOutput(s.keys.Secp256k1PublicKey.BTCEC(), s.counterpartySecp256k1Pub.BTCEC(), s.Env().BitcoinPunishTimelock)
	if err != nil {
		return 0, fmt.Errorf("failed to build cancel output: %w", err)
	}

	s.lockOutput = lockOutput
	s.cancelOutput = cancelOutput
	return StateExecutionSetupDone, nil
}

// fundLock broadcasts the taker's own BTC lock transaction and waits for
// it to reach BitcoinFinalityConfirmations.
func (s *swapState) fundLock() (State, error) {
	addrStr, err := s.lockOutput.Address(s.Env().BitcoinNetwork)
	if err != nil {
		return 0, err
	}
	addr, err := btcutil.DecodeAddress(addrStr, s.Env().BitcoinNetwork)
	if err != nil {
		return 0, err
	}

	pkt, err := s.BTCWallet().SendToAddress(addr, btcutil.Amount(s.btcAmount.AsSats()))
	if err != nil {
		return 0, err
	}
	tx, err := s.BTCWallet().SignAndFinalize(pkt)
	if err != nil {
		return 0, err
	}
	txid, err := s.BTCWallet().Broadcast(tx, "lock")
	if err != nil {
		return 0, err
	}

	lockPkScript, err := s.lockOutput.PkScript()
	if err != nil {
		return 0, err
	}
	watchable := &bitcoin.TxidScript{Txid: txid, PkScript: lockPkScript}

	var confirmedAt bitcoin.Confirmed
	target := s.Env().BitcoinFinalityConfirmations
	err = s.BTCClient().WatchUntilStatus(s.ctx, watchable, func(status bitcoin.ScriptStatus) bool {
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
	s.lockTxid = txid
	s.lockVout = findVout(tx, lockPkScript)
	s.lockInclusionHeight = tip - confirmedAt.Confirmations() + 1

	spendTx, err := bitcoin.NewSpendTx(
		wire.OutPoint{Hash: txid, Index: s.lockVout},
		int64(s.btcAmount.AsSats()),
		s.lockOutput,
		s.makerReceivePkScript,
		bitcoin.EstimatedRedeemFeeSats,
		0,
	)
	if err != nil {
		return 0, err
	}
	s.redeemSpendTx = spendTx

	return StateBtcLocked, nil
}

// findVout locates the index of tx's output paying pkScript: the lock
// transaction we just built has exactly one such output.
func findVout(tx *wire.MsgTx, pkScript []byte) uint32 {
	for i, out := range tx.TxOut {
		if string(out.PkScript) == string(pkScript) {
			return uint32(i)
		}
	}
	return 0
}

// waitXMRLockProof blocks for the maker's TransferProofMessage.
func (s *swapState) waitXMRLockProof() (State, error) {
	proof, err := s.session.RecvTransferProof(s.ctx, s.info.ID)
	if err != nil {
		return 0, err
	}
	s.xmrRestoreHeight = proof.RestoreHeight
	return StateXmrLockProofReceived, nil
}

// watchXMRFinality confirms the maker's lock transfer reached
// MoneroFinalityConfirmations before the taker commits to sending its
// adaptor pre-signature.
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

// sendEncSig computes the adaptor pre-signature over the maker's redeem
// transaction, encrypted under the maker's adaptor point, and sends it
// (spec.md §4.D "encsign_and_send").
func (s *swapState) sendEncSig() (State, error) {
	sigHash, err := s.redeemSpendTx.KeyPathSigHash()
	if err != nil {
		return 0, err
	}

	presig, err := adaptor.Sign(s.keys.Secp256k1PrivateKey.BTCEC(), s.counterpartySecp256k1Pub.BTCEC(), sigHash)
	if err != nil {
		return 0, err
	}

	msg := &message.EncryptedSignatureMessage{
		SwapID:             s.info.ID,
		EncryptedSignature: presig.Encode(),
	}
	if err := s.session.Dial(s.ctx); err != nil {
		return 0, err
	}
	if err := s.session.SendEncryptedSignature(s.ctx, msg); err != nil {
		return 0, err
	}

	s.presig = presig
	return StateEncSigSent, nil
}

// waitForRedeem watches the maker's own receive address for its completed
// redeem transaction, extracts the completed Schnorr signature from its
// witness, and recovers the maker's adaptor secret from it.
func (s *swapState) waitForRedeem() (State, error) {
	w, _, _, err := s.BTCClient().WatchForOutput(s.ctx, makerAddrFromPkScript(s.makerReceivePkScript, s.Env().BitcoinNetwork))
	if err != nil {
		return 0, err
	}

	tx, err := s.BTCWallet().GetRawTransaction(w.Txid)
	if err != nil {
		return 0, err
	}
	if len(tx.TxIn) == 0 || len(tx.TxIn[0].Witness) == 0 {
		return 0, fmt.Errorf("%w: redeem transaction has no witness", common.ErrProtocolViolation)
	}

	fullSig, err := schnorr.ParseSignature(tx.TxIn[0].Witness[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid redeem signature: %s", common.ErrProtocolViolation, err)
	}

	t := adaptor.Recover(s.presig, fullSig)

	spendKey, err := recoveredSpendKey(t)
	if err != nil {
		return 0, fmt.Errorf("%w: recovered secret is not a valid monero scalar: %s", common.ErrProtocolViolation, err)
	}

	s.recoveredSpendKey = spendKey
	return StateBtcRedeemed, nil
}

// recoveredSpendKey converts the secp256k1 scalar adaptor.Recover returns
// back into a Monero private spend key. Both keys were derived from the
// same 32 raw bytes at key-exchange time (protocol/keys.go), one decoded
// as a big-endian secp256k1 scalar and the other as a little-endian
// ed25519 scalar; re-encoding t as 32 big-endian bytes reproduces exactly
// that original byte string, which is what the ed25519 side expects.
func recoveredSpendKey(t *big.Int) (*mcrypto.PrivateSpendKey, error) {
	buf := make([]byte, 32)
	t.FillBytes(buf)
	return mcrypto.NewPrivateSpendKeyFromBytes(buf)
}

// makerAddrFromPkScript extracts the address WatchForOutput needs from the
// pkScript we've held onto since key exchange.
func makerAddrFromPkScript(pkScript []byte, net *chaincfg.Params) btcutil.Address {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, net)
	if err != nil || len(addrs) == 0 {
		panic("maker's own pkScript was invalid after already being used to build a transaction: " + errString(err))
	}
	return addrs[0]
}

func errString(err error) string {
	if err == nil {
		return "no addresses"
	}
	return err.Error()
}

// claimXMR combines the recovered maker secret with the taker's own spend
// share and sweeps the joint output to the taker's own wallet (spec.md
// §4.E "claim_xmr").
func (s *swapState) claimXMR() (State, error) {
	addr, err := s.MoneroWalletClient().GetAddress()
	if err != nil {
		return 0, err
	}

	if _, err := xmrwallet.ClaimXMR(
		s.XMRWalletRPCURL(),
		s.Env().MoneroNetwork,
		s.keys.PrivateKeyPair,
		s.recoveredSpendKey,
		s.xmrRestoreHeight,
		addr,
	); err != nil {
		return 0, err
	}

	return StateXmrRedeemed, nil
}

// cancelLock broadcasts the taker's own cancel transaction via the lock
// output's script path, once the cancel timelock has elapsed without the
// maker redeeming.
func (s *swapState) cancelLock() (State, error) {
	cancelPkScript, err := s.cancelOutput.PkScript()
	if err != nil {
		return 0, err
	}

	spendTx, err := bitcoin.NewSpendTx(
		wire.OutPoint{Hash: s.lockTxid, Index: s.lockVout},
		int64(s.btcAmount.AsSats()),
		s.lockOutput,
		cancelPkScript,
		bitcoin.EstimatedRedeemFeeSats,
		s.Env().BitcoinCancelTimelock,
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
	txid, err := s.BTCWallet().Broadcast(tx, "cancel")
	if err != nil {
		return 0, err
	}

	watchable := &bitcoin.TxidScript{Txid: txid, PkScript: cancelPkScript}

	var confirmedAt bitcoin.Confirmed
	err = s.BTCClient().WatchUntilStatus(s.ctx, watchable, func(status bitcoin.ScriptStatus) bool {
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
	s.cancelWatchable = watchable
	s.cancelInclusionHeight = tip - confirmedAt.Confirmations() + 1

	return StateBtcCancelled, nil
}

// refundOrWaitPunish refunds via the cancel output's key path as soon as
// possible; if the punish timelock elapses first, the maker has already
// swept it via the script path and the taker has lost the funds.
func (s *swapState) refundOrWaitPunish() (State, error) {
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
		0,
	)
	if err != nil {
		return 0, err
	}

	sigHash, err := spendTx.KeyPathSigHash()
	if err != nil {
		return 0, err
	}
	sig, err := schnorr.Sign(s.keys.Secp256k1PrivateKey.BTCEC(), sigHash[:])
	if err != nil {
		return 0, err
	}
	tx := spendTx.FinalizeKeyPath(sig)

	if _, err := s.BTCWallet().Broadcast(tx, "refund"); err != nil {
		tip := s.BTCClient().LatestBlock()
		if bitcoin.PunishStatus(s.cancelInclusionHeight, tip, s.Env().BitcoinPunishTimelock) == bitcoin.TimelockPunish {
			log.Warnf("swap %s: refund rejected and punish timelock elapsed: maker already punished", s.info.ID)
			return StateBtcPunished, nil
		}
		return 0, err
	}

	return StateBtcRefunded, nil
}
