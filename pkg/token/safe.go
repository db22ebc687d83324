package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/chain"
)

// SafeTransfer transfers amount from the caller to to and fails with
// ErrTransferMismatch unless to's balance grew by exactly amount.
func SafeTransfer(tx *chain.Tx, asset Asset, from bridge.Caller, to common.Address, amount *uint256.Int) error {
	return checkDelta(tx, asset, to, amount, func() error {
		return asset.Transfer(tx, from, to, amount)
	})
}

// SafeTransferFrom is SafeTransfer for allowance-based transfers.
func SafeTransferFrom(tx *chain.Tx, asset Asset, spender bridge.Caller, from, to common.Address, amount *uint256.Int) error {
	return checkDelta(tx, asset, to, amount, func() error {
		return asset.TransferFrom(tx, spender, from, to, amount)
	})
}

func checkDelta(tx *chain.Tx, asset Asset, to common.Address, amount *uint256.Int, transfer func() error) error {
	before, err := asset.BalanceOf(tx, to)
	if err != nil {
		return err
	}
	if err := transfer(); err != nil {
		return err
	}
	after, err := asset.BalanceOf(tx, to)
	if err != nil {
		return err
	}
	delta := new(uint256.Int).Sub(after, before)
	if after.Lt(before) || !delta.Eq(amount) {
		return fmt.Errorf("asset %s moved %s, expected %s: %w", asset.Address().Hex(), delta, amount, bridge.ErrTransferMismatch)
	}
	return nil
}

// Registry resolves asset addresses to their implementation on one ledger.
type Registry struct {
	mu     sync.RWMutex
	assets map[common.Address]Asset
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[common.Address]Asset)}
}

func (r *Registry) Add(a Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[a.Address()] = a
}

// Get returns the asset deployed at addr, or ErrUnsupportedAsset.
func (r *Registry) Get(addr common.Address) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[addr]
	if !ok {
		return nil, fmt.Errorf("no asset at %s: %w", addr.Hex(), bridge.ErrUnsupportedAsset)
	}
	return a, nil
}
