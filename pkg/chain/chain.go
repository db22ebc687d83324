// Package chain implements an in-process ledger: a single-writer state machine
// over a badger store that executes calls atomically (a failed call leaves no
// trace), groups each successful call into a block and keeps an append-only
// log of ABI-encoded events.
package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/db"
)

var (
	callsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_ledger_calls_total",
			Help: "Total number of ledger calls executed, by outcome",
		}, []string{"chain_id", "method", "outcome"})
	currentHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainbridge_ledger_height",
			Help: "Current in-process ledger block height",
		}, []string{"chain_id"})
)

var (
	headKey     = []byte("chain/head")
	blockPrefix = []byte("chain/block/")
	logPrefix   = []byte("chain/log/")
)

type (
	Chain struct {
		id     bridge.ChainID
		db     *db.Database
		clock  clock.Clock
		logger *zap.Logger

		// mu serializes all state transitions; the ledger has exactly one writer.
		mu sync.Mutex
	}

	Block struct {
		Number   uint64        `json:"number"`
		Hash     common.Hash   `json:"hash"`
		Time     time.Time     `json:"time"`
		TxHashes []common.Hash `json:"txHashes"`
	}

	Receipt struct {
		TxHash      common.Hash
		BlockNumber uint64
		BlockHash   common.Hash
		Logs        []types.Log
	}
)

var ErrBlockNotFound = errors.New("block not found")

// New creates a ledger with the given id backed by database. Block timestamps
// come from clk.
func New(id bridge.ChainID, database *db.Database, clk clock.Clock, logger *zap.Logger) *Chain {
	return &Chain{
		id:     id,
		db:     database,
		clock:  clk,
		logger: logger.With(zap.String("component", "ledger"), zap.Stringer("chain_id", id)),
	}
}

func (c *Chain) ID() bridge.ChainID {
	return c.id
}

func (c *Chain) Clock() clock.Clock {
	return c.clock
}

// Execute runs fn as one atomic call submitted by caller. On success the call's
// state changes and events are committed in a new block. If fn fails nothing is
// written.
func (c *Chain) Execute(caller bridge.Caller, method string, fn func(tx *Tx) error) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var receipt *Receipt
	err := c.db.Update(func(txn *badger.Txn) error {
		head, err := readHead(txn)
		if err != nil {
			return err
		}
		height := head + 1
		now := c.clock.Now()
		txHash := crypto.Keccak256Hash(
			bridge.Uint64Word(uint64(c.id)),
			bridge.Uint64Word(height),
			caller.Address().Bytes(),
			[]byte(method),
		)

		tx := &Tx{txn: txn, chainID: c.id, caller: caller, now: now, height: height}
		if err := fn(tx); err != nil {
			return err
		}

		blk := &Block{
			Number:   height,
			Hash:     blockHash(c.id, height),
			Time:     now,
			TxHashes: []common.Hash{txHash},
		}
		for i := range tx.logs {
			tx.logs[i].BlockNumber = height
			tx.logs[i].BlockHash = blk.Hash
			tx.logs[i].TxHash = txHash
			tx.logs[i].Index = uint(i)
			if err := writeLog(txn, &tx.logs[i]); err != nil {
				return err
			}
		}
		if err := writeBlock(txn, blk); err != nil {
			return err
		}

		receipt = &Receipt{TxHash: txHash, BlockNumber: height, BlockHash: blk.Hash, Logs: tx.logs}
		return nil
	})
	if err != nil {
		callsExecuted.WithLabelValues(c.id.String(), method, "reverted").Inc()
		c.logger.Debug("call reverted", zap.String("method", method), zap.Stringer("caller", caller), zap.Error(err))
		return nil, err
	}

	callsExecuted.WithLabelValues(c.id.String(), method, "ok").Inc()
	currentHeight.WithLabelValues(c.id.String()).Set(float64(receipt.BlockNumber))
	c.logger.Debug("call executed",
		zap.String("method", method),
		zap.Stringer("caller", caller),
		zap.Stringer("tx_hash", receipt.TxHash),
		zap.Uint64("block", receipt.BlockNumber),
		zap.Int("logs", len(receipt.Logs)),
	)
	return receipt, nil
}

// View runs fn against a read-only snapshot of the ledger state. Writes and
// event emission fail inside a view.
func (c *Chain) View(fn func(tx *Tx) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		head, err := readHead(txn)
		if err != nil {
			return err
		}
		tx := &Tx{txn: txn, chainID: c.id, now: c.clock.Now(), height: head, readOnly: true}
		return fn(tx)
	})
}

// Mine produces an empty block and returns its height.
func (c *Chain) Mine() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var height uint64
	err := c.db.Update(func(txn *badger.Txn) error {
		head, err := readHead(txn)
		if err != nil {
			return err
		}
		height = head + 1
		return writeBlock(txn, &Block{Number: height, Hash: blockHash(c.id, height), Time: c.clock.Now()})
	})
	if err != nil {
		return 0, err
	}
	currentHeight.WithLabelValues(c.id.String()).Set(float64(height))
	return height, nil
}

// RunBlockProducer mines an empty block every interval so that confirmation
// depth keeps advancing without traffic.
func (c *Chain) RunBlockProducer(ctx context.Context, interval time.Duration) error {
	t := c.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := c.Mine(); err != nil {
				return fmt.Errorf("failed to mine block: %w", err)
			}
		}
	}
}

// Head returns the current block height. A fresh ledger is at height 0.
func (c *Chain) Head() (uint64, error) {
	var head uint64
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		head, err = readHead(txn)
		return err
	})
	return head, err
}

// BlockByNumber returns the block at height n.
func (c *Chain) BlockByNumber(n uint64) (*Block, error) {
	var blk *Block
	err := c.db.View(func(txn *badger.Txn) error {
		b, err := db.Get(txn, blockKey(n))
		if errors.Is(err, db.ErrNotFound) {
			return ErrBlockNotFound
		}
		if err != nil {
			return err
		}
		blk = new(Block)
		return json.Unmarshal(b, blk)
	})
	return blk, err
}

// Logs returns all logs in blocks [from, to], optionally restricted to logs
// emitted by the given contracts.
func (c *Chain) Logs(from, to uint64, addresses ...common.Address) ([]types.Log, error) {
	filter := make(map[common.Address]struct{}, len(addresses))
	for _, a := range addresses {
		filter[a] = struct{}{}
	}

	resp := make([]types.Log, 0)
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = logPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(logKey(from, 0)); it.ValidForPrefix(logPrefix); it.Next() {
			key := it.Item().Key()
			height := binary.BigEndian.Uint64(key[len(logPrefix) : len(logPrefix)+8])
			if height > to {
				break
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var l types.Log
			if err := json.Unmarshal(val, &l); err != nil {
				return fmt.Errorf("failed to decode log %x: %w", key, err)
			}
			if len(filter) > 0 {
				if _, ok := filter[l.Address]; !ok {
					continue
				}
			}
			resp = append(resp, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func readHead(txn *badger.Txn) (uint64, error) {
	b, err := db.Get(txn, headKey)
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func writeBlock(txn *badger.Txn, blk *Block) error {
	b, err := json.Marshal(blk)
	if err != nil {
		return err
	}
	if err := txn.Set(blockKey(blk.Number), b); err != nil {
		return err
	}
	h := make([]byte, 8)
	binary.BigEndian.PutUint64(h, blk.Number)
	return txn.Set(headKey, h)
}

func writeLog(txn *badger.Txn, l *types.Log) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return txn.Set(logKey(l.BlockNumber, uint32(l.Index)), b) // #nosec G115 -- a call never emits 2^32 logs
}

func blockHash(id bridge.ChainID, height uint64) common.Hash {
	return crypto.Keccak256Hash([]byte("block"), bridge.Uint64Word(uint64(id)), bridge.Uint64Word(height))
}

func blockKey(n uint64) []byte {
	k := make([]byte, len(blockPrefix)+8)
	copy(k, blockPrefix)
	binary.BigEndian.PutUint64(k[len(blockPrefix):], n)
	return k
}

func logKey(height uint64, index uint32) []byte {
	k := make([]byte, len(logPrefix)+12)
	copy(k, logPrefix)
	binary.BigEndian.PutUint64(k[len(logPrefix):], height)
	binary.BigEndian.PutUint32(k[len(logPrefix)+8:], index)
	return k
}
