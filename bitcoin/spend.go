package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// EstimatedRedeemFeeSats is a static fallback fee for the single-input,
// single-output transactions spending a TimelockOutput (redeem, cancel,
// refund, punish), mirroring wallet.go's own staticFeeRatePerKVB rather
// than inventing a vsize-based estimator for these one-off spends. Both
// swap sides must agree on this value: the taker's adaptor pre-signature
// commits to the maker's redeem transaction's exact output amount.
const EstimatedRedeemFeeSats = 500

// SpendTx is an unsigned transaction spending the sole outpoint of a
// TimelockOutput, carrying the sighash-cache state needed to compute
// either the key-path (BIP-341) or script-path (BIP-342) signature hash
// and, once a signature is in hand, to finalize the witness.
type SpendTx struct {
	tx      *wire.MsgTx
	output  *TimelockOutput
	fetcher txscript.PrevOutputFetcher
	hashes  *txscript.TxSigHashes
}

// controlBlock returns the serialized control block proving the
// TimelockLeaf's inclusion in this output's script tree, required to
// finalize a script-path spend.
func (o *TimelockOutput) controlBlock() ([]byte, error) {
	tree := txscript.AssembleTaprootScriptTree(o.TimelockLeaf)
	block := tree.LeafMerkleProofs[0].ToControlBlock(o.AggregateKey)
	return block.ToBytes()
}

// NewSpendTx builds an unsigned, single-input single-output transaction
// spending outpoint (an output of value amountSats locked by output) to
// toPkScript, net of feeSats. nSequence must carry output.RelativeLock's
// CSV encoding when the caller intends to finalize along the script path;
// key-path spends ignore it (spec.md §3 "Timelocks").
func NewSpendTx(
	outpoint wire.OutPoint,
	amountSats int64,
	output *TimelockOutput,
	toPkScript []byte,
	feeSats int64,
	nSequence uint32,
) (*SpendTx, error) {
	if feeSats <= 0 || feeSats >= amountSats {
		return nil, fmt.Errorf("fee %d sats out of range for input of %d sats", feeSats, amountSats)
	}

	pkScript, err := output.PkScript()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&outpoint, nil, nil)
	txIn.Sequence = nSequence
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(amountSats-feeSats, toPkScript))

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, amountSats)
	hashes := txscript.NewTxSigHashes(tx, fetcher)

	return &SpendTx{tx: tx, output: output, fetcher: fetcher, hashes: hashes}, nil
}

// KeyPathSigHash returns the BIP-341 key-path signature hash the sole
// input must be signed over to spend along output's aggregate-key path.
func (s *SpendTx) KeyPathSigHash() ([32]byte, error) {
	h, err := txscript.CalcTaprootSignatureHash(s.hashes, txscript.SigHashDefault, s.tx, 0, s.fetcher)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to compute key-path sighash: %w", err)
	}
	var out [32]byte
	copy(out[:], h)
	return out, nil
}

// ScriptPathSigHash returns the BIP-342 tapscript signature hash for the
// output's CSV-gated leaf.
func (s *SpendTx) ScriptPathSigHash() ([32]byte, error) {
	h, err := txscript.CalcTapscriptSignaturehash(
		s.hashes, txscript.SigHashDefault, s.tx, 0, s.fetcher, s.output.TimelockLeaf,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to compute script-path sighash: %w", err)
	}
	var out [32]byte
	copy(out[:], h)
	return out, nil
}

// FinalizeKeyPath attaches sig as the sole witness element of a key-path
// spend and returns the final transaction, ready to broadcast.
func (s *SpendTx) FinalizeKeyPath(sig *schnorr.Signature) *wire.MsgTx {
	s.tx.TxIn[0].Witness = wire.TxWitness{sig.Serialize()}
	return s.tx
}

// FinalizeScriptPath attaches sig, the CSV-gated leaf script, and the
// output's control block as the three witness elements of a script-path
// spend and returns the final transaction.
func (s *SpendTx) FinalizeScriptPath(sig *schnorr.Signature) (*wire.MsgTx, error) {
	ctrlBlock, err := s.output.controlBlock()
	if err != nil {
		return nil, err
	}
	s.tx.TxIn[0].Witness = wire.TxWitness{
		sig.Serialize(),
		s.output.TimelockLeaf.Script,
		ctrlBlock,
	}
	return s.tx, nil
}

// Tx returns the underlying (possibly still-unsigned) transaction.
func (s *SpendTx) Tx() *wire.MsgTx {
	return s.tx
}

// TxID returns tx's txid.
func TxID(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}
