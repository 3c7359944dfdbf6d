package swap

import (
	"errors"
	"sync"
	"time"

	"github.com/ChainSafe/chaindb"

	"github.com/nthswap/xmrbtc-swap/common/types"
)

var errNoSwapWithID = errors.New("unable to find swap with given ID")

// Database is the persistence backend a Manager writes through to. Its
// concrete implementation lives in package db, which imports swap for
// *Info; Manager only needs this narrow interface.
type Database interface {
	PutSwap(info *Info) error
	GetSwap(id types.SwapID) (*Info, error)
	GetAllSwaps() ([]*Info, error)
}

// Manager tracks current and past swaps.
type Manager interface {
	AddSwap(info *Info) error
	WriteSwapToDB(info *Info) error
	GetPastIDs() ([]types.SwapID, error)
	GetPastSwap(types.SwapID) (*Info, error)
	GetOngoingSwap(types.SwapID) (Info, error)
	GetOngoingSwaps() ([]*Info, error)
	CompleteOngoingSwap(info *Info) error
	HasOngoingSwap(types.SwapID) bool
}

// manager implements Manager.
//
// Ongoing swaps are fully populated in memory; past swaps are only cached
// once they've completed during this run, or been recently retrieved.
type manager struct {
	db Database
	sync.RWMutex
	ongoing map[types.SwapID]*Info
	past    map[types.SwapID]*Info
}

var _ Manager = (*manager)(nil)

// NewManager returns a new Manager backed by db, loading all ongoing swaps
// into memory on construction. Completed swaps are not preloaded.
func NewManager(db Database) (Manager, error) {
	ongoing := make(map[types.SwapID]*Info)

	stored, err := db.GetAllSwaps()
	if err != nil {
		return nil, err
	}

	for _, s := range stored {
		if !s.Status.IsOngoing() {
			continue
		}
		ongoing[s.ID] = s
	}

	return &manager{
		db:      db,
		ongoing: ongoing,
		past:    make(map[types.SwapID]*Info),
	}, nil
}

// AddSwap adds the given swap *Info to the Manager.
func (m *manager) AddSwap(info *Info) error {
	m.Lock()
	defer m.Unlock()

	if info.Status.IsOngoing() {
		m.ongoing[info.ID] = info
	} else {
		m.past[info.ID] = info
	}

	return m.db.PutSwap(info)
}

// WriteSwapToDB writes the swap to the database without touching the
// in-memory maps, for intermediate state updates to an already-tracked
// ongoing swap.
func (m *manager) WriteSwapToDB(info *Info) error {
	return m.db.PutSwap(info)
}

// GetPastIDs returns all past swap IDs, in memory and on disk.
func (m *manager) GetPastIDs() ([]types.SwapID, error) {
	m.RLock()
	defer m.RUnlock()

	ids := make(map[types.SwapID]struct{})
	for id := range m.past {
		ids[id] = struct{}{}
	}

	stored, err := m.db.GetAllSwaps()
	if err != nil {
		return nil, err
	}
	for _, s := range stored {
		if s.Status.IsOngoing() {
			continue
		}
		ids[s.ID] = struct{}{}
	}

	idArr := make([]types.SwapID, 0, len(ids))
	for id := range ids {
		idArr = append(idArr, id)
	}
	return idArr, nil
}

// GetPastSwap returns a swap's *Info given its ID.
func (m *manager) GetPastSwap(id types.SwapID) (*Info, error) {
	m.RLock()
	s, has := m.past[id]
	m.RUnlock()
	if has {
		return s, nil
	}

	s, err := m.getSwapFromDB(id)
	if err != nil {
		return nil, err
	}

	m.Lock()
	m.past[s.ID] = s
	m.Unlock()
	return s, nil
}

// GetOngoingSwap returns the ongoing swap's Info, if there is one.
func (m *manager) GetOngoingSwap(id types.SwapID) (Info, error) {
	m.RLock()
	defer m.RUnlock()
	s, has := m.ongoing[id]
	if !has {
		return Info{}, errNoSwapWithID
	}
	return *s, nil
}

// GetOngoingSwaps returns all ongoing swaps.
func (m *manager) GetOngoingSwaps() ([]*Info, error) {
	m.RLock()
	defer m.RUnlock()
	swaps := make([]*Info, 0, len(m.ongoing))
	for _, s := range m.ongoing {
		sCopy := *s
		swaps = append(swaps, &sCopy)
	}
	return swaps, nil
}

// CompleteOngoingSwap marks the given ongoing swap as completed, moving it
// from the ongoing to the past set and persisting the change.
func (m *manager) CompleteOngoingSwap(info *Info) error {
	m.Lock()
	defer m.Unlock()

	if _, has := m.ongoing[info.ID]; !has {
		return errNoSwapWithID
	}

	now := time.Now()
	info.EndTime = &now

	m.past[info.ID] = info
	delete(m.ongoing, info.ID)

	return m.db.PutSwap(info)
}

// HasOngoingSwap returns true if the given ID is an ongoing swap.
func (m *manager) HasOngoingSwap(id types.SwapID) bool {
	m.RLock()
	defer m.RUnlock()
	_, has := m.ongoing[id]
	return has
}

func (m *manager) getSwapFromDB(id types.SwapID) (*Info, error) {
	s, err := m.db.GetSwap(id)
	if errors.Is(err, chaindb.ErrKeyNotFound) {
		return nil, errNoSwapWithID
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
