// Package vault implements the custody ledger: it escrows original assets for
// outbound transfers, releases them for inbound ones and lets owners recover
// locks that were never completed once the recovery delay has passed.
package vault

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/token"
	"github.com/mayur2811/chainbridge/pkg/validatorset"
)

// DefaultRecoveryDelay is the time after which an uncompleted lock can be
// withdrawn by its owner.
const DefaultRecoveryDelay = 7 * 24 * time.Hour

type Vault struct {
	addr   common.Address
	set    *validatorset.Set
	assets *token.Registry
}

func New(addr common.Address, set *validatorset.Set, assets *token.Registry) *Vault {
	return &Vault{addr: addr, set: set, assets: assets}
}

func (v *Vault) Address() common.Address {
	return v.addr
}

func (v *Vault) key(parts ...string) []byte {
	k := "vault/" + v.addr.Hex()
	for _, p := range parts {
		k += "/" + p
	}
	return []byte(k)
}

func (v *Vault) lockKey(nonce uint64) []byte {
	return v.key("lock", strconv.FormatUint(nonce, 10))
}

func (v *Vault) processedKey(source bridge.ChainID, nonce uint64) []byte {
	return v.key("processed", source.String(), strconv.FormatUint(nonce, 10))
}

// Initialize sets the owner, the minimum lock amount and the recovery delay.
func (v *Vault) Initialize(tx *chain.Tx, owner common.Address, minAmount *uint256.Int, recoveryDelay time.Duration) error {
	ok, err := tx.Has(v.key("owner"))
	if err != nil {
		return err
	}
	if ok {
		return bridge.ErrAlreadyInitialized
	}
	if owner == bridge.NullAddress {
		return bridge.ErrNotOwner
	}
	if err := tx.SetAddress(v.key("owner"), owner); err != nil {
		return err
	}
	if err := tx.SetU256(v.key("min"), minAmount); err != nil {
		return err
	}
	return tx.SetUint64(v.key("delay"), uint64(recoveryDelay/time.Second))
}

func (v *Vault) onlyOwner(tx *chain.Tx, caller bridge.Caller) error {
	owner, err := tx.GetAddress(v.key("owner"))
	if err != nil {
		return err
	}
	if owner == bridge.NullAddress {
		return bridge.ErrNotInitialized
	}
	if !caller.Is(owner) {
		return bridge.ErrNotOwner
	}
	return nil
}

func (v *Vault) onlyValidator(tx *chain.Tx, caller bridge.Caller) error {
	ok, err := v.set.IsValidator(tx, caller.Address())
	if err != nil {
		return err
	}
	if !ok {
		return bridge.ErrNotValidator
	}
	return nil
}

func (v *Vault) whenNotPaused(tx *chain.Tx) error {
	paused, err := v.Paused(tx)
	if err != nil {
		return err
	}
	if paused {
		return bridge.ErrPaused
	}
	return nil
}

// Initiate locks amount of asset from the caller for delivery to recipient on
// destChain and returns the lock nonce.
func (v *Vault) Initiate(tx *chain.Tx, caller bridge.Caller, asset common.Address, amount *uint256.Int, destChain bridge.ChainID, recipient common.Address) (uint64, error) {
	return v.initiate(tx, caller.Address(), asset, amount, destChain, recipient)
}

// InitiateFor is Initiate on behalf of owner. Only the registered router may call it.
func (v *Vault) InitiateFor(tx *chain.Tx, caller bridge.Caller, owner common.Address, asset common.Address, amount *uint256.Int, destChain bridge.ChainID, recipient common.Address) (uint64, error) {
	router, err := v.Router(tx)
	if err != nil {
		return 0, err
	}
	if router == bridge.NullAddress || !caller.Is(router) {
		return 0, bridge.ErrUnauthorized
	}
	return v.initiate(tx, owner, asset, amount, destChain, recipient)
}

func (v *Vault) initiate(tx *chain.Tx, owner common.Address, assetAddr common.Address, amount *uint256.Int, destChain bridge.ChainID, recipient common.Address) (uint64, error) {
	if err := v.whenNotPaused(tx); err != nil {
		return 0, err
	}
	supported, err := v.IsAssetSupported(tx, assetAddr)
	if err != nil {
		return 0, err
	}
	if !supported {
		return 0, fmt.Errorf("%s: %w", assetAddr.Hex(), bridge.ErrUnsupportedAsset)
	}
	asset, err := v.assets.Get(assetAddr)
	if err != nil {
		return 0, err
	}
	if amount.IsZero() {
		return 0, bridge.ErrZeroAmount
	}
	minAmount, err := v.MinAmount(tx)
	if err != nil {
		return 0, err
	}
	if amount.Lt(minAmount) {
		return 0, fmt.Errorf("%s < %s: %w", amount, minAmount, bridge.ErrAmountBelowMinimum)
	}
	if recipient == bridge.NullAddress {
		return 0, bridge.ErrNullRecipient
	}
	if destChain == tx.ChainID() {
		return 0, bridge.ErrSameChain
	}

	nonce, err := tx.GetUint64(v.key("nonce"))
	if err != nil {
		return 0, err
	}
	nonce++
	if err := tx.SetUint64(v.key("nonce"), nonce); err != nil {
		return 0, err
	}
	record := &LockRecord{
		Nonce:     nonce,
		Owner:     owner,
		Asset:     assetAddr,
		Amount:    amount.Clone(),
		CreatedAt: tx.Now(),
	}
	if err := tx.Set(v.lockKey(nonce), record.Marshal()); err != nil {
		return 0, err
	}

	if err := token.SafeTransferFrom(tx, asset, bridge.NewCaller(v.addr), owner, v.addr, amount); err != nil {
		return 0, err
	}

	err = tx.Emit(v.addr, bridgeabi.EventInitiated, owner, assetAddr, amount.ToBig(), uint64(destChain), recipient, nonce)
	if err != nil {
		return 0, err
	}
	return nonce, nil
}

// Release pays out amount of asset to recipient for a burn observed on
// sourceChain, once per (sourceChain, sourceNonce). Only the registered
// router may call it, after it verified a threshold of validator signatures.
func (v *Vault) Release(tx *chain.Tx, caller bridge.Caller, assetAddr, recipient common.Address, amount *uint256.Int, sourceChain bridge.ChainID, sourceNonce uint64) error {
	if err := v.whenNotPaused(tx); err != nil {
		return err
	}
	router, err := v.Router(tx)
	if err != nil {
		return err
	}
	if router == bridge.NullAddress || !caller.Is(router) {
		return bridge.ErrUnauthorized
	}
	if amount.IsZero() {
		return bridge.ErrZeroAmount
	}
	if recipient == bridge.NullAddress {
		return bridge.ErrNullRecipient
	}
	asset, err := v.assets.Get(assetAddr)
	if err != nil {
		return err
	}

	processed, err := tx.Has(v.processedKey(sourceChain, sourceNonce))
	if err != nil {
		return err
	}
	if processed {
		return fmt.Errorf("release %s/%d: %w", sourceChain, sourceNonce, bridge.ErrAlreadyProcessed)
	}
	if err := tx.Set(v.processedKey(sourceChain, sourceNonce), []byte{1}); err != nil {
		return err
	}

	if err := token.SafeTransfer(tx, asset, bridge.NewCaller(v.addr), recipient, amount); err != nil {
		return err
	}
	return tx.Emit(v.addr, bridgeabi.EventReleased, recipient, assetAddr, amount.ToBig(), uint64(sourceChain), sourceNonce)
}

// MarkCompleted records that the lock was minted on the other side, which
// closes the emergency path for it.
func (v *Vault) MarkCompleted(tx *chain.Tx, caller bridge.Caller, nonce uint64) error {
	if err := v.onlyValidator(tx, caller); err != nil {
		return err
	}
	record, err := v.Lock(tx, nonce)
	if err != nil {
		return err
	}
	if record.Completed {
		return bridge.ErrAlreadyCompleted
	}
	if record.Withdrawn {
		return bridge.ErrAlreadyWithdrawn
	}
	record.Completed = true
	if err := tx.Set(v.lockKey(nonce), record.Marshal()); err != nil {
		return err
	}
	return tx.Emit(v.addr, bridgeabi.EventLockCompleted, nonce)
}

// EmergencyWithdraw returns a lock to its owner once the recovery delay has
// passed without the lock being completed. It works while paused.
func (v *Vault) EmergencyWithdraw(tx *chain.Tx, caller bridge.Caller, nonce uint64) (*uint256.Int, error) {
	record, err := v.Lock(tx, nonce)
	if err != nil {
		return nil, err
	}
	if !caller.Is(record.Owner) {
		return nil, bridge.ErrNotRecordOwner
	}
	if record.Completed {
		return nil, bridge.ErrAlreadyCompleted
	}
	if record.Withdrawn {
		return nil, bridge.ErrAlreadyWithdrawn
	}
	delay, err := v.RecoveryDelay(tx)
	if err != nil {
		return nil, err
	}
	if tx.Now().Before(record.RecoverableAt(delay)) {
		return nil, fmt.Errorf("lock %d recoverable at %s: %w", nonce, record.RecoverableAt(delay).UTC(), bridge.ErrRecoveryDelayActive)
	}

	record.Withdrawn = true
	if err := tx.Set(v.lockKey(nonce), record.Marshal()); err != nil {
		return nil, err
	}
	asset, err := v.assets.Get(record.Asset)
	if err != nil {
		return nil, err
	}
	if err := token.SafeTransfer(tx, asset, bridge.NewCaller(v.addr), record.Owner, record.Amount); err != nil {
		return nil, err
	}
	err = tx.Emit(v.addr, bridgeabi.EventEmergencyWithdrawn, record.Owner, record.Asset, record.Amount.ToBig(), nonce)
	if err != nil {
		return nil, err
	}
	return record.Amount, nil
}

// Lock returns the lock record for nonce, or ErrLockNotFound.
func (v *Vault) Lock(tx *chain.Tx, nonce uint64) (*LockRecord, error) {
	b, ok, err := tx.Get(v.lockKey(nonce))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lock %d: %w", nonce, bridge.ErrLockNotFound)
	}
	return UnmarshalLockRecord(b)
}

func (v *Vault) IsProcessed(tx *chain.Tx, source bridge.ChainID, nonce uint64) (bool, error) {
	return tx.Has(v.processedKey(source, nonce))
}

// LockedBalance is the amount of asset held in custody.
func (v *Vault) LockedBalance(tx *chain.Tx, assetAddr common.Address) (*uint256.Int, error) {
	asset, err := v.assets.Get(assetAddr)
	if err != nil {
		return nil, err
	}
	return asset.BalanceOf(tx, v.addr)
}

// Nonce is the nonce of the most recent lock, zero if there is none.
func (v *Vault) Nonce(tx *chain.Tx) (uint64, error) {
	return tx.GetUint64(v.key("nonce"))
}

func (v *Vault) IsAssetSupported(tx *chain.Tx, asset common.Address) (bool, error) {
	return tx.Has(v.key("asset", asset.Hex()))
}

func (v *Vault) MinAmount(tx *chain.Tx) (*uint256.Int, error) {
	return tx.GetU256(v.key("min"))
}

func (v *Vault) RecoveryDelay(tx *chain.Tx) (time.Duration, error) {
	secs, err := tx.GetUint64(v.key("delay"))
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil // #nosec G115 -- set from a time.Duration
}

func (v *Vault) Router(tx *chain.Tx) (common.Address, error) {
	return tx.GetAddress(v.key("router"))
}

func (v *Vault) Paused(tx *chain.Tx) (bool, error) {
	return tx.Has(v.key("paused"))
}

func (v *Vault) Owner(tx *chain.Tx) (common.Address, error) {
	return tx.GetAddress(v.key("owner"))
}

func (v *Vault) SetAssetSupported(tx *chain.Tx, caller bridge.Caller, asset common.Address, supported bool) error {
	if err := v.onlyOwner(tx, caller); err != nil {
		return err
	}
	if !supported {
		return tx.Delete(v.key("asset", asset.Hex()))
	}
	if _, err := v.assets.Get(asset); err != nil {
		return err
	}
	return tx.Set(v.key("asset", asset.Hex()), []byte{1})
}

func (v *Vault) SetMinAmount(tx *chain.Tx, caller bridge.Caller, minAmount *uint256.Int) error {
	if err := v.onlyOwner(tx, caller); err != nil {
		return err
	}
	return tx.SetU256(v.key("min"), minAmount)
}

func (v *Vault) SetRecoveryDelay(tx *chain.Tx, caller bridge.Caller, delay time.Duration) error {
	if err := v.onlyOwner(tx, caller); err != nil {
		return err
	}
	if delay < 0 {
		return fmt.Errorf("negative recovery delay %s", delay)
	}
	return tx.SetUint64(v.key("delay"), uint64(delay/time.Second))
}

func (v *Vault) SetRouter(tx *chain.Tx, caller bridge.Caller, router common.Address) error {
	if err := v.onlyOwner(tx, caller); err != nil {
		return err
	}
	return tx.SetAddress(v.key("router"), router)
}

func (v *Vault) Pause(tx *chain.Tx, caller bridge.Caller) error {
	if err := v.onlyOwner(tx, caller); err != nil {
		return err
	}
	paused, err := v.Paused(tx)
	if err != nil {
		return err
	}
	if paused {
		return bridge.ErrPaused
	}
	if err := tx.Set(v.key("paused"), []byte{1}); err != nil {
		return err
	}
	return tx.Emit(v.addr, bridgeabi.EventPaused, caller.Address())
}

func (v *Vault) Unpause(tx *chain.Tx, caller bridge.Caller) error {
	if err := v.onlyOwner(tx, caller); err != nil {
		return err
	}
	paused, err := v.Paused(tx)
	if err != nil {
		return err
	}
	if !paused {
		return bridge.ErrNotPaused
	}
	if err := tx.Delete(v.key("paused")); err != nil {
		return err
	}
	return tx.Emit(v.addr, bridgeabi.EventUnpaused, caller.Address())
}
