package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

const failedPrefix = "RELAYER:FAILED:V1:"

// FailedEvent is a source event that the relayer gave up on. It stays in the
// store until an operator deletes it.
type FailedEvent struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	SourceChain uint64    `json:"source_chain"`
	TargetChain uint64    `json:"target_chain"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	Nonce       uint64    `json:"nonce"`
	Asset       string    `json:"asset"`
	Recipient   string    `json:"recipient"`
	Amount      string    `json:"amount"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	Terminal    bool      `json:"terminal"`
	FailedAt    time.Time `json:"failed_at"`
}

func failedKey(id string) []byte {
	return []byte(failedPrefix + id)
}

// StoreFailed persists f, assigning it an id if it has none.
func (d *Database) StoreFailed(f *FailedEvent) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal failed event: %w", err)
	}
	err = d.Update(func(txn *badger.Txn) error {
		return txn.Set(failedKey(f.ID), b)
	})
	if err != nil {
		return fmt.Errorf("failed to store failed event: %w", err)
	}
	return nil
}

// ListFailed returns all failed events.
func (d *Database) ListFailed() ([]*FailedEvent, error) {
	resp := make([]*FailedEvent, 0)
	err := d.View(func(txn *badger.Txn) error {
		return IteratePrefix(txn, []byte(failedPrefix), func(key, val []byte) error {
			var f FailedEvent
			if err := json.Unmarshal(val, &f); err != nil {
				return fmt.Errorf("failed to unmarshal failed event %s: %w", string(key), err)
			}
			resp = append(resp, &f)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteFailed removes a failed event after operator intervention.
func (d *Database) DeleteFailed(id string) error {
	return d.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(failedKey(id)); err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(failedKey(id))
	})
}
