package db

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var txConflicts = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "chainbridge_db_tx_conflicts_total",
		Help: "Total number of badger transactions retried after a conflict",
	})

// maxConflictRetries bounds how often Update re-runs a transaction that lost an
// optimistic concurrency race.
const maxConflictRetries = 16

type Database struct {
	db *badger.DB
}

var ErrNotFound = errors.New("requested key not found in store")

// Open opens (or creates) a badger database at path.
func Open(path string, logger *zap.Logger) (*Database, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	opts := badger.DefaultOptions(path).WithLogger(newBadgerLogger(logger))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Database{db: db}, nil
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory(logger *zap.Logger) (*Database, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(newBadgerLogger(logger))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Conn returns a pointer to the underlying database connection.
func (d *Database) Conn() *badger.DB {
	return d.db
}

// Update runs fn in a read-write transaction. Transactions that conflict with a
// concurrently committed one are re-run from scratch, so fn must not have side
// effects outside the transaction.
func (d *Database) Update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = d.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		txConflicts.Inc()
	}
	return err
}

func (d *Database) View(fn func(txn *badger.Txn) error) error {
	return d.db.View(fn)
}

// Get returns a copy of the value stored at key, or ErrNotFound.
func Get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// IteratePrefix calls fn for every key with the given prefix, in key order.
func IteratePrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func newBadgerLogger(logger *zap.Logger) badger.Logger {
	if logger == nil {
		return nil
	}
	return badgerLogger{logger.Named("badger").Sugar()}
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
