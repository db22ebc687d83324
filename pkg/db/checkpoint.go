package db

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

const checkpointPrefix = "RELAYER:CHECKPOINT:V1:"

func checkpointKey(chainID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", checkpointPrefix, chainID))
}

// StoreCheckpoint records the next block the watcher for chainID has to scan.
// Blocks before it are fully processed.
func (d *Database) StoreCheckpoint(chainID uint64, nextBlock uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, nextBlock)
	err := d.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(chainID), b)
	})
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint returns the stored checkpoint, or ok == false if the chain was never scanned.
func (d *Database) GetCheckpoint(chainID uint64) (nextBlock uint64, ok bool, err error) {
	var b []byte
	err = d.View(func(txn *badger.Txn) error {
		var err error
		b, err = Get(txn, checkpointKey(chainID))
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if len(b) != 8 {
		return 0, false, fmt.Errorf("corrupt checkpoint for chain %d", chainID)
	}
	return binary.BigEndian.Uint64(b), true, nil
}
