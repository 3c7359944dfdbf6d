package swap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/common/types"
)

// fakeDB is an in-memory Database used to test Manager without chaindb.
type fakeDB struct {
	sync.Mutex
	swaps map[types.SwapID]*Info
}

func newFakeDB() *fakeDB {
	return &fakeDB{swaps: make(map[types.SwapID]*Info)}
}

func (f *fakeDB) PutSwap(info *Info) error {
	f.Lock()
	defer f.Unlock()
	cp := *info
	f.swaps[info.ID] = &cp
	return nil
}

func (f *fakeDB) GetSwap(id types.SwapID) (*Info, error) {
	f.Lock()
	defer f.Unlock()
	s, has := f.swaps[id]
	if !has {
		return nil, errNoSwapWithID
	}
	return s, nil
}

func (f *fakeDB) GetAllSwaps() ([]*Info, error) {
	f.Lock()
	defer f.Unlock()
	out := make([]*Info, 0, len(f.swaps))
	for _, s := range f.swaps {
		out = append(out, s)
	}
	return out, nil
}

func TestManager_AddAndCompleteSwap(t *testing.T) {
	db := newFakeDB()
	mgr, err := NewManager(db)
	require.NoError(t, err)

	id := types.NewSwapID()
	info := NewInfo(id, RoleMaker, 100_000, 1_000_000_000, types.StatusOngoing, time.Now())

	require.NoError(t, mgr.AddSwap(info))
	require.True(t, mgr.HasOngoingSwap(id))

	got, err := mgr.GetOngoingSwap(id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)

	require.NoError(t, mgr.CompleteOngoingSwap(info))
	require.False(t, mgr.HasOngoingSwap(id))
	require.NotNil(t, info.EndTime)

	past, err := mgr.GetPastSwap(id)
	require.NoError(t, err)
	require.Equal(t, id, past.ID)

	ids, err := mgr.GetPastIDs()
	require.NoError(t, err)
	require.Contains(t, ids, id)
}

func TestManager_LoadsOngoingFromDB(t *testing.T) {
	db := newFakeDB()
	id := types.NewSwapID()
	require.NoError(t, db.PutSwap(NewInfo(id, RoleTaker, 50_000, 500_000_000, types.StatusOngoing, time.Now())))

	pastID := types.NewSwapID()
	require.NoError(t, db.PutSwap(NewInfo(pastID, RoleTaker, 1, 1, types.StatusSuccess, time.Now())))

	mgr, err := NewManager(db)
	require.NoError(t, err)
	require.True(t, mgr.HasOngoingSwap(id))
	require.False(t, mgr.HasOngoingSwap(pastID))
}

func TestManager_GetOngoingSwap_notFound(t *testing.T) {
	mgr, err := NewManager(newFakeDB())
	require.NoError(t, err)

	_, err = mgr.GetOngoingSwap(types.NewSwapID())
	require.ErrorIs(t, err, errNoSwapWithID)
}
