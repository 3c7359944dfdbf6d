// Package db persists swap records across restarts.
package db

import (
	"encoding/json"
	"fmt"

	"github.com/ChainSafe/chaindb"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/common/types"
	"github.com/nthswap/xmrbtc-swap/protocol/swap"
)

const swapKeyPrefix = "swap-"

// Database is a chaindb-backed key-value store of swap.Info records, keyed
// by swap ID. It implements swap.Database.
type Database struct {
	db chaindb.Database
}

var _ swap.Database = (*Database)(nil)

// NewDatabase opens (creating if needed) a Badger database rooted at
// dataDir itself.
func NewDatabase(dataDir string) (*Database, error) {
	cfg := &chaindb.Config{
		DataDir: dataDir,
	}
	cdb, err := chaindb.NewBadgerDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %s", common.ErrConfiguration, err)
	}
	return &Database{db: cdb}, nil
}

// Close closes the underlying database.
func (d *Database) Close() error {
	return d.db.Close()
}

func swapKey(id types.SwapID) []byte {
	idBytes, _ := id.MarshalBinary() // uuid.UUID.MarshalBinary never errors
	return append([]byte(swapKeyPrefix), idBytes...)
}

// PutSwap writes info, keyed by its ID, overwriting any prior record.
func (d *Database) PutSwap(info *swap.Info) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal swap info: %w", err)
	}
	return d.db.Put(swapKey(info.ID), b)
}

// GetSwap returns the swap.Info stored under id, or chaindb.ErrKeyNotFound
// if none exists.
func (d *Database) GetSwap(id types.SwapID) (*swap.Info, error) {
	b, err := d.db.Get(swapKey(id))
	if err != nil {
		return nil, err
	}
	info := new(swap.Info)
	if err := json.Unmarshal(b, info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal swap info: %w", err)
	}
	return info, nil
}

// GetAllSwaps returns every swap.Info record in the database, ongoing and
// past alike; callers filter by Status as needed.
func (d *Database) GetAllSwaps() ([]*swap.Info, error) {
	iter := d.db.NewIterator()
	defer iter.Release()

	prefix := []byte(swapKeyPrefix)
	var swaps []*swap.Info
	for iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix) || string(key[:len(prefix)]) != swapKeyPrefix {
			continue
		}

		info := new(swap.Info)
		if err := json.Unmarshal(iter.Value(), info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal swap info: %w", err)
		}
		swaps = append(swaps, info)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return swaps, nil
}
