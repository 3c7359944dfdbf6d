package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// maxRelativeTimelock is the largest CSV value expressible as a relative
// block-count lock (16-bit field per BIP-68).
const maxRelativeTimelock = 0xffff

// TimelockOutput is a Taproot output spendable two ways: the key path,
// using an aggregated signature over the sum of both parties' public keys
// (the adaptor-signature redeem/refund path), or the script path, a single
// CHECKSEQUENCEVERIFY-gated leaf that only the holder of unlockKey may
// spend once relativeBlocks have elapsed since the output's own
// confirmation (spec.md §3 "Timelocks").
type TimelockOutput struct {
	AggregateKey *btcec.PublicKey
	TweakedKey   *btcec.PublicKey
	TimelockLeaf txscript.TapLeaf
	MerkleRoot   [32]byte
	RelativeLock uint32
}

// buildTimelockScript builds <relativeBlocks> OP_CSV OP_DROP <unlockKey> OP_CHECKSIG.
func buildTimelockScript(unlockKey *btcec.PublicKey, relativeBlocks uint32) ([]byte, error) {
	if relativeBlocks == 0 || relativeBlocks > maxRelativeTimelock {
		return nil, fmt.Errorf("relative timelock out of range: %d", relativeBlocks)
	}

	b := txscript.NewScriptBuilder()
	b.AddInt64(int64(relativeBlocks))
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(schnorr.SerializePubKey(unlockKey))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// NewTimelockOutput constructs the Taproot output locking funds between
// aggregateKey (the sum of the maker's and taker's public keys for this
// swap) and unlockKey, spendable unilaterally by unlockKey's holder after
// relativeBlocks confirmations.
func NewTimelockOutput(aggregateKey, unlockKey *btcec.PublicKey, relativeBlocks uint32) (*TimelockOutput, error) {
	leafScript, err := buildTimelockScript(unlockKey, relativeBlocks)
	if err != nil {
		return nil, err
	}

	leaf := txscript.NewBaseTapLeaf(leafScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	root := tree.RootNode.TapHash()
	tweaked := txscript.ComputeTaprootOutputKey(aggregateKey, root[:])

	return &TimelockOutput{
		AggregateKey: aggregateKey,
		TweakedKey:   tweaked,
		TimelockLeaf: leaf,
		MerkleRoot:   root,
		RelativeLock: relativeBlocks,
	}, nil
}

// PkScript returns the P2TR scriptPubKey for this output.
func (o *TimelockOutput) PkScript() ([]byte, error) {
	return txscript.PayToTaprootScript(o.TweakedKey)
}

// Address returns the bech32m address for this output's scriptPubKey.
func (o *TimelockOutput) Address(net *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(o.TweakedKey), net)
	if err != nil {
		return "", fmt.Errorf("failed to encode taproot address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// SumPublicKeys returns the elliptic-curve sum of keys, the aggregate key
// both swap parties' adaptor-signature protocol commits to.
func SumPublicKeys(keys ...*btcec.PublicKey) *btcec.PublicKey {
	curve := btcec.S256()
	x, y := keys[0].X(), keys[0].Y()
	for _, k := range keys[1:] {
		x, y = curve.Add(x, y, k.X(), k.Y())
	}
	var fx, fy btcec.FieldVal
	fx.SetByteSlice(x.Bytes())
	fy.SetByteSlice(y.Bytes())
	return btcec.NewPublicKey(&fx, &fy)
}
