package bitcoin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfirmedFromInclusion(t *testing.T) {
	c := ConfirmedFromInclusion(100, 103)
	require.Equal(t, uint32(4), c.Confirmations())
	require.True(t, c.MeetsTarget(4))
	require.False(t, c.MeetsTarget(5))
}

func TestConfirmedFromInclusionSaturatesAtZero(t *testing.T) {
	// A stale view of the tip (behind the inclusion height) must never
	// report a negative depth.
	c := ConfirmedFromInclusion(100, 50)
	require.Equal(t, uint32(1), c.Confirmations())
}

func TestScriptStatusTransitions(t *testing.T) {
	unseen := Unseen()
	require.False(t, unseen.HasBeenSeen())
	require.False(t, unseen.IsConfirmed())

	mempool := InMempool()
	require.True(t, mempool.HasBeenSeen())
	require.False(t, mempool.IsConfirmed())

	confirmed := ConfirmedStatus(NewConfirmed(2))
	require.True(t, confirmed.HasBeenSeen())
	require.True(t, confirmed.IsConfirmed())
	require.True(t, confirmed.IsConfirmedWith(3))
	require.False(t, confirmed.IsConfirmedWith(4))
}

func TestScriptStatusString(t *testing.T) {
	require.Equal(t, "unseen", Unseen().String())
	require.Equal(t, "in mempool", InMempool().String())
	require.Contains(t, ConfirmedStatus(NewConfirmed(4)).String(), "5 confirmations")
}

func TestTxidScriptWatchable(t *testing.T) {
	ts := TxidScript{PkScript: []byte{0x01, 0x02}}
	require.Equal(t, ts.Txid, ts.ID())
	require.Equal(t, []byte{0x01, 0x02}, ts.Script())
}
