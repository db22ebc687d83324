// Package connectors exposes the bridge contracts of one ledger to the relayer,
// either on the in-process ledger runtime or on an EVM network over JSON-RPC.
package connectors

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/verifier"
)

// Transfer is a bridge message as executed on its destination ledger. Asset is
// always the original asset on the custody ledger.
type Transfer struct {
	Kind        bridge.MessageKind
	Asset       common.Address
	Recipient   common.Address
	Amount      *big.Int
	SourceChain bridge.ChainID
	DestChain   bridge.ChainID
	Nonce       uint64
}

// MessageHash is the hash the validators sign for t.
func (t *Transfer) MessageHash() (common.Hash, error) {
	return verifier.Hash(t.Kind, t.Asset, t.Recipient, t.Amount, t.SourceChain, t.DestChain, t.Nonce)
}

// ID identifies t among all messages of its kind.
func (t *Transfer) ID() common.Hash {
	return bridge.MessageID(t.SourceChain, t.Nonce)
}

// LockStatus is the relayer's view of a custody lock record.
type LockStatus struct {
	Exists    bool
	Completed bool
	Withdrawn bool
}

// Open reports whether the lock can still be completed or recovered.
func (s LockStatus) Open() bool {
	return s.Exists && !s.Completed && !s.Withdrawn
}

// Connector exposes bridge-specific interactions with one ledger.
type Connector interface {
	ChainID() bridge.ChainID
	// RouterAddress is the router messages for this ledger are submitted to.
	RouterAddress() common.Address
	// Sources lists the contracts whose logs carry outbound bridge events: the
	// vault on a custody ledger and the wrapped tokens otherwise.
	Sources() []common.Address
	// HasCustody reports whether this ledger holds original assets.
	HasCustody() bool

	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error)
	// LogIncluded reports whether l is still part of the canonical ledger.
	LogIncluded(ctx context.Context, l types.Log) (bool, error)

	IsProcessed(ctx context.Context, kind bridge.MessageKind, source bridge.ChainID, nonce uint64) (bool, error)
	LockStatus(ctx context.Context, nonce uint64) (LockStatus, error)
	OriginalAsset(ctx context.Context, wrapped common.Address) (common.Address, error)
	Decimals(ctx context.Context, asset common.Address) (uint8, error)
	// Roster returns the validator set and signing threshold.
	Roster(ctx context.Context) ([]common.Address, uint64, error)

	CompleteBridge(ctx context.Context, t *Transfer, signatures [][]byte) error
	ReleaseBridge(ctx context.Context, t *Transfer, signatures [][]byte) error
	MarkCompleted(ctx context.Context, nonce uint64) error
}

// CheckDecimals fails if any wrapped token watched on wrapped has a different
// number of decimals than its original asset on custody. Amounts cross the
// bridge unscaled.
func CheckDecimals(ctx context.Context, custody, wrapped Connector) error {
	for _, token := range wrapped.Sources() {
		original, err := wrapped.OriginalAsset(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to resolve original asset of %s: %w", token.Hex(), err)
		}
		want, err := custody.Decimals(ctx, original)
		if err != nil {
			return fmt.Errorf("failed to read decimals of %s: %w", original.Hex(), err)
		}
		got, err := wrapped.Decimals(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to read decimals of %s: %w", token.Hex(), err)
		}
		if want != got {
			return fmt.Errorf("wrapped asset %s has %d decimals, original %s has %d", token.Hex(), got, original.Hex(), want)
		}
	}
	return nil
}

// Submit executes t on c with the collected signatures.
func Submit(ctx context.Context, c Connector, t *Transfer, signatures [][]byte) error {
	switch t.Kind {
	case bridge.MessageKindLock:
		return c.CompleteBridge(ctx, t, signatures)
	case bridge.MessageKindBurn:
		return c.ReleaseBridge(ctx, t, signatures)
	default:
		return fmt.Errorf("unknown message kind %d", t.Kind)
	}
}
