package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/common/types"
	"github.com/nthswap/xmrbtc-swap/protocol/swap"
)

func TestDatabase_PutGetSwap(t *testing.T) {
	d, err := NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })

	id := types.NewSwapID()
	info := swap.NewInfo(id, swap.RoleMaker, 100_000, 1_000_000_000, types.StatusOngoing, time.Now())
	require.NoError(t, d.PutSwap(info))

	got, err := d.GetSwap(id)
	require.NoError(t, err)
	require.Equal(t, info.ID, got.ID)
	require.Equal(t, info.BTCAmount, got.BTCAmount)
	require.Equal(t, info.XMRAmount, got.XMRAmount)
	require.Equal(t, info.Status, got.Status)
}

func TestDatabase_GetSwap_notFound(t *testing.T) {
	d, err := NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })

	_, err = d.GetSwap(types.NewSwapID())
	require.Error(t, err)
}

func TestDatabase_GetAllSwaps(t *testing.T) {
	d, err := NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })

	ids := make([]types.SwapID, 3)
	for i := range ids {
		ids[i] = types.NewSwapID()
		info := swap.NewInfo(ids[i], swap.RoleTaker, uint64(i+1), uint64(i+1)*10, types.StatusOngoing, time.Now())
		require.NoError(t, d.PutSwap(info))
	}

	all, err := d.GetAllSwaps()
	require.NoError(t, err)
	require.Len(t, all, 3)

	seen := make(map[types.SwapID]bool)
	for _, s := range all {
		seen[s.ID] = true
	}
	for _, id := range ids {
		require.True(t, seen[id])
	}
}
