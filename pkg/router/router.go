// Package router is the user and relayer facing entry point of a ledger. It
// forwards locks to the custody ledger, completes inbound messages once they
// carry enough validator signatures and guarantees each message executes at
// most once.
package router

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/vault"
	"github.com/mayur2811/chainbridge/pkg/verifier"
	"github.com/mayur2811/chainbridge/pkg/wrapped"
)

type Router struct {
	addr     common.Address
	vault    *vault.Vault
	verifier *verifier.Verifier

	mu     sync.RWMutex
	tokens map[common.Address]*wrapped.Token
}

// New creates a router. custody may be nil on a ledger that only hosts
// wrapped assets.
func New(addr common.Address, custody *vault.Vault, v *verifier.Verifier) *Router {
	return &Router{
		addr:     addr,
		vault:    custody,
		verifier: v,
		tokens:   make(map[common.Address]*wrapped.Token),
	}
}

func (r *Router) Address() common.Address {
	return r.addr
}

func (r *Router) Vault() *vault.Vault {
	return r.vault
}

func (r *Router) Verifier() *verifier.Verifier {
	return r.verifier
}

// AddToken makes a deployed wrapped token callable by the router. It does not
// map it; see RegisterWrappedAsset.
func (r *Router) AddToken(t *wrapped.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Address()] = t
}

// Token returns the wrapped token deployed at addr.
func (r *Router) Token(addr common.Address) (*wrapped.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

func (r *Router) key(parts ...string) []byte {
	k := "router/" + r.addr.Hex()
	for _, p := range parts {
		k += "/" + p
	}
	return []byte(k)
}

func (r *Router) processedKey(kind bridge.MessageKind, source bridge.ChainID, nonce uint64) []byte {
	return r.key("processed", kind.String(), bridge.MessageID(source, nonce).Hex())
}

func (r *Router) Initialize(tx *chain.Tx, owner common.Address) error {
	ok, err := tx.Has(r.key("owner"))
	if err != nil {
		return err
	}
	if ok {
		return bridge.ErrAlreadyInitialized
	}
	if owner == bridge.NullAddress {
		return bridge.ErrNotOwner
	}
	return tx.SetAddress(r.key("owner"), owner)
}

func (r *Router) Owner(tx *chain.Tx) (common.Address, error) {
	return tx.GetAddress(r.key("owner"))
}

func (r *Router) onlyOwner(tx *chain.Tx, caller bridge.Caller) error {
	owner, err := r.Owner(tx)
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

func (r *Router) onlyValidator(tx *chain.Tx, caller bridge.Caller) error {
	ok, err := r.verifier.ValidatorSet().IsValidator(tx, caller.Address())
	if err != nil {
		return err
	}
	if !ok {
		return bridge.ErrNotValidator
	}
	return nil
}

func (r *Router) whenNotPaused(tx *chain.Tx) error {
	paused, err := r.Paused(tx)
	if err != nil {
		return err
	}
	if paused {
		return bridge.ErrPaused
	}
	return nil
}

// Bridge locks amount of asset from the caller in the custody ledger for
// delivery to recipient on destChain.
func (r *Router) Bridge(tx *chain.Tx, caller bridge.Caller, asset common.Address, amount *uint256.Int, destChain bridge.ChainID, recipient common.Address) (uint64, error) {
	if err := r.whenNotPaused(tx); err != nil {
		return 0, err
	}
	if r.vault == nil {
		return 0, fmt.Errorf("no custody ledger: %w", bridge.ErrUnsupportedAsset)
	}
	supported, err := r.IsChainSupported(tx, destChain)
	if err != nil {
		return 0, err
	}
	if !supported {
		return 0, fmt.Errorf("chain %s: %w", destChain, bridge.ErrUnsupportedChain)
	}

	nonce, err := r.vault.InitiateFor(tx, bridge.NewCaller(r.addr), caller.Address(), asset, amount, destChain, recipient)
	if err != nil {
		return 0, err
	}
	err = tx.Emit(r.addr, bridgeabi.EventBridgeInitiated, caller.Address(), asset, amount.ToBig(), uint64(destChain), recipient, nonce)
	if err != nil {
		return 0, err
	}
	return nonce, nil
}

// CompleteBridge mints the wrapped representation of originalAsset for a lock
// observed on sourceChain.
func (r *Router) CompleteBridge(tx *chain.Tx, caller bridge.Caller, originalAsset, recipient common.Address, amount *uint256.Int, sourceChain bridge.ChainID, nonce uint64, signatures [][]byte) error {
	if err := r.whenNotPaused(tx); err != nil {
		return err
	}
	if err := r.onlyValidator(tx, caller); err != nil {
		return err
	}
	if err := r.checkNotProcessed(tx, bridge.MessageKindLock, sourceChain, nonce); err != nil {
		return err
	}
	err := r.verifier.VerifyBridgeLock(tx, originalAsset, recipient, amount.ToBig(), sourceChain, nonce, signatures)
	if err != nil {
		return err
	}

	wrappedAddr, err := r.WrappedAsset(tx, originalAsset)
	if err != nil {
		return err
	}
	if wrappedAddr == bridge.NullAddress {
		return fmt.Errorf("%s: %w", originalAsset.Hex(), bridge.ErrUnmappedAsset)
	}
	tok, ok := r.Token(wrappedAddr)
	if !ok {
		return fmt.Errorf("wrapped asset %s not deployed: %w", wrappedAddr.Hex(), bridge.ErrUnmappedAsset)
	}

	if err := tx.Set(r.processedKey(bridge.MessageKindLock, sourceChain, nonce), []byte{1}); err != nil {
		return err
	}
	if err := tok.Mint(tx, bridge.NewCaller(r.addr), recipient, amount); err != nil {
		return err
	}
	return tx.Emit(r.addr, bridgeabi.EventCompleted, recipient, wrappedAddr, amount.ToBig(), uint64(sourceChain), nonce)
}

// ReleaseBridge releases asset from custody for a burn observed on sourceChain.
func (r *Router) ReleaseBridge(tx *chain.Tx, caller bridge.Caller, asset, recipient common.Address, amount *uint256.Int, sourceChain bridge.ChainID, nonce uint64, signatures [][]byte) error {
	if err := r.whenNotPaused(tx); err != nil {
		return err
	}
	if err := r.onlyValidator(tx, caller); err != nil {
		return err
	}
	if r.vault == nil {
		return fmt.Errorf("no custody ledger: %w", bridge.ErrUnsupportedAsset)
	}
	if err := r.checkNotProcessed(tx, bridge.MessageKindBurn, sourceChain, nonce); err != nil {
		return err
	}
	err := r.verifier.VerifyBridgeBurn(tx, asset, recipient, amount.ToBig(), sourceChain, nonce, signatures)
	if err != nil {
		return err
	}

	if err := tx.Set(r.processedKey(bridge.MessageKindBurn, sourceChain, nonce), []byte{1}); err != nil {
		return err
	}
	return r.vault.Release(tx, bridge.NewCaller(r.addr), asset, recipient, amount, sourceChain, nonce)
}

func (r *Router) checkNotProcessed(tx *chain.Tx, kind bridge.MessageKind, source bridge.ChainID, nonce uint64) error {
	processed, err := r.IsProcessed(tx, kind, source, nonce)
	if err != nil {
		return err
	}
	if processed {
		return fmt.Errorf("%s %s/%d: %w", kind, source, nonce, bridge.ErrAlreadyProcessed)
	}
	return nil
}

// RegisterWrappedAsset maps original to wrapped. Each original asset gets
// exactly one wrapped asset and the mapping is permanent.
func (r *Router) RegisterWrappedAsset(tx *chain.Tx, caller bridge.Caller, original, wrappedAddr common.Address) error {
	if err := r.onlyOwner(tx, caller); err != nil {
		return err
	}
	if original == bridge.NullAddress || wrappedAddr == bridge.NullAddress {
		return bridge.ErrUnsupportedAsset
	}
	tok, ok := r.Token(wrappedAddr)
	if !ok {
		return fmt.Errorf("wrapped asset %s not deployed: %w", wrappedAddr.Hex(), bridge.ErrUnsupportedAsset)
	}
	minter, err := tok.Bridge(tx)
	if err != nil {
		return err
	}
	if minter != r.addr {
		return fmt.Errorf("wrapped asset %s is minted by %s: %w", wrappedAddr.Hex(), minter.Hex(), bridge.ErrNotBridge)
	}

	existing, err := r.WrappedAsset(tx, original)
	if err != nil {
		return err
	}
	if existing != bridge.NullAddress {
		return fmt.Errorf("%s already maps to %s: %w", original.Hex(), existing.Hex(), bridge.ErrAlreadyMapped)
	}
	existing, err = r.OriginalAsset(tx, wrappedAddr)
	if err != nil {
		return err
	}
	if existing != bridge.NullAddress {
		return fmt.Errorf("%s already represents %s: %w", wrappedAddr.Hex(), existing.Hex(), bridge.ErrAlreadyMapped)
	}

	if err := tx.SetAddress(r.key("wrapped", original.Hex()), wrappedAddr); err != nil {
		return err
	}
	if err := tx.SetAddress(r.key("original", wrappedAddr.Hex()), original); err != nil {
		return err
	}
	return tx.Emit(r.addr, bridgeabi.EventWrappedAssetRegistered, original, wrappedAddr)
}

func (r *Router) AddSupportedChain(tx *chain.Tx, caller bridge.Caller, id bridge.ChainID) error {
	if err := r.onlyOwner(tx, caller); err != nil {
		return err
	}
	if id == tx.ChainID() {
		return bridge.ErrSameChain
	}
	return tx.Set(r.key("chain", id.String()), []byte{1})
}

func (r *Router) RemoveSupportedChain(tx *chain.Tx, caller bridge.Caller, id bridge.ChainID) error {
	if err := r.onlyOwner(tx, caller); err != nil {
		return err
	}
	return tx.Delete(r.key("chain", id.String()))
}

func (r *Router) Pause(tx *chain.Tx, caller bridge.Caller) error {
	if err := r.onlyOwner(tx, caller); err != nil {
		return err
	}
	paused, err := r.Paused(tx)
	if err != nil {
		return err
	}
	if paused {
		return bridge.ErrPaused
	}
	if err := tx.Set(r.key("paused"), []byte{1}); err != nil {
		return err
	}
	return tx.Emit(r.addr, bridgeabi.EventPaused, caller.Address())
}

func (r *Router) Unpause(tx *chain.Tx, caller bridge.Caller) error {
	if err := r.onlyOwner(tx, caller); err != nil {
		return err
	}
	paused, err := r.Paused(tx)
	if err != nil {
		return err
	}
	if !paused {
		return bridge.ErrNotPaused
	}
	if err := tx.Delete(r.key("paused")); err != nil {
		return err
	}
	return tx.Emit(r.addr, bridgeabi.EventUnpaused, caller.Address())
}

func (r *Router) Paused(tx *chain.Tx) (bool, error) {
	return tx.Has(r.key("paused"))
}

func (r *Router) IsChainSupported(tx *chain.Tx, id bridge.ChainID) (bool, error) {
	return tx.Has(r.key("chain", id.String()))
}

// IsProcessed reports whether the message of the given kind from source with
// nonce has been executed by this router.
func (r *Router) IsProcessed(tx *chain.Tx, kind bridge.MessageKind, source bridge.ChainID, nonce uint64) (bool, error) {
	return tx.Has(r.processedKey(kind, source, nonce))
}

// WrappedAsset returns the wrapped asset mapped to original, or the null address.
func (r *Router) WrappedAsset(tx *chain.Tx, original common.Address) (common.Address, error) {
	return tx.GetAddress(r.key("wrapped", original.Hex()))
}

// OriginalAsset returns the original asset wrapped represents, or the null address.
func (r *Router) OriginalAsset(tx *chain.Tx, wrappedAddr common.Address) (common.Address, error) {
	return tx.GetAddress(r.key("original", wrappedAddr.Hex()))
}
