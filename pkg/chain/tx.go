package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/db"
)

var ErrReadOnly = errors.New("state write in read-only call")

// Tx is the execution context of one ledger call. All reads observe the writes
// made earlier in the same call; nothing is visible to other calls until the
// call returns without error.
type Tx struct {
	txn      *badger.Txn
	chainID  bridge.ChainID
	caller   bridge.Caller
	now      time.Time
	height   uint64
	readOnly bool
	logs     []types.Log
}

// ChainID returns the id of the ledger executing the call.
func (tx *Tx) ChainID() bridge.ChainID { return tx.chainID }

// Sender returns the identity that submitted the call.
func (tx *Tx) Sender() bridge.Caller { return tx.caller }

// Now returns the timestamp of the block the call is included in.
func (tx *Tx) Now() time.Time { return tx.now }

// Height returns the number of the block the call is included in.
func (tx *Tx) Height() uint64 { return tx.height }

// Get returns the value stored at key. ok is false if the key does not exist.
func (tx *Tx) Get(key []byte) (val []byte, ok bool, err error) {
	val, err = db.Get(tx.txn, key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (tx *Tx) Has(key []byte) (bool, error) {
	_, err := tx.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (tx *Tx) Set(key []byte, val []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return tx.txn.Set(key, val)
}

func (tx *Tx) Delete(key []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return tx.txn.Delete(key)
}

// Iterate calls fn for each key with the given prefix in key order.
func (tx *Tx) Iterate(prefix []byte, fn func(key, val []byte) error) error {
	return db.IteratePrefix(tx.txn, prefix, fn)
}

// GetUint64 reads a big-endian uint64. Missing keys read as zero.
func (tx *Tx) GetUint64(key []byte) (uint64, error) {
	b, ok, err := tx.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("corrupt uint64 at %s", key)
	}
	return binary.BigEndian.Uint64(b), nil
}

func (tx *Tx) SetUint64(key []byte, v uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return tx.Set(key, b)
}

// GetU256 reads a 32-byte big-endian word. Missing keys read as zero.
func (tx *Tx) GetU256(key []byte) (*uint256.Int, error) {
	b, ok, err := tx.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("corrupt uint256 at %s", key)
	}
	return new(uint256.Int).SetBytes32(b), nil
}

func (tx *Tx) SetU256(key []byte, v *uint256.Int) error {
	b := v.Bytes32()
	return tx.Set(key, b[:])
}

func (tx *Tx) GetAddress(key []byte) (common.Address, error) {
	b, ok, err := tx.Get(key)
	if err != nil || !ok {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

func (tx *Tx) SetAddress(key []byte, addr common.Address) error {
	return tx.Set(key, addr.Bytes())
}

// Emit appends an event emitted by contract to the call's log. The event is
// discarded if the call fails.
func (tx *Tx) Emit(contract common.Address, event string, args ...interface{}) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	l, err := bridgeabi.EncodeLog(contract, event, args...)
	if err != nil {
		return err
	}
	tx.logs = append(tx.logs, l)
	return nil
}
