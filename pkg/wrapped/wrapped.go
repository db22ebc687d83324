// Package wrapped implements the pegged representation of a custodied asset.
// Only the registered bridge identity mints; any holder burns to move value
// back to the origin ledger.
package wrapped

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/token"
)

// Burn nonces are allocated from one counter shared by every wrapped asset on
// a ledger, so (sourceChain, burnNonce) identifies a burn uniquely.
var burnNonceKey = []byte("wrapped/nonce")

func burnKey(nonce uint64) []byte {
	return []byte("wrapped/burn/" + strconv.FormatUint(nonce, 10))
}

type Token struct {
	*token.Token
}

var _ token.Asset = (*Token)(nil)

func New(addr common.Address) *Token {
	return &Token{Token: token.New(addr)}
}

func (w *Token) key(suffix string) []byte {
	return []byte("wrapped/" + w.Address().Hex() + "/" + suffix)
}

// Initialize sets the token metadata, the identity allowed to mint and the
// asset this token represents.
func (w *Token) Initialize(tx *chain.Tx, bridgeAddr common.Address, decimals uint8, symbol string, originChain bridge.ChainID, originAsset common.Address) error {
	if bridgeAddr == bridge.NullAddress {
		return bridge.ErrNotBridge
	}
	if err := w.Init(tx, decimals, symbol); err != nil {
		return err
	}
	if err := tx.SetAddress(w.key("bridge"), bridgeAddr); err != nil {
		return err
	}
	if err := tx.SetUint64(w.key("origin_chain"), uint64(originChain)); err != nil {
		return err
	}
	return tx.SetAddress(w.key("origin_asset"), originAsset)
}

func (w *Token) Bridge(tx *chain.Tx) (common.Address, error) {
	return tx.GetAddress(w.key("bridge"))
}

func (w *Token) Origin(tx *chain.Tx) (bridge.ChainID, common.Address, error) {
	c, err := tx.GetUint64(w.key("origin_chain"))
	if err != nil {
		return 0, common.Address{}, err
	}
	a, err := tx.GetAddress(w.key("origin_asset"))
	if err != nil {
		return 0, common.Address{}, err
	}
	return bridge.ChainID(c), a, nil
}

// Mint creates amount tokens for to. Only the bridge may mint.
func (w *Token) Mint(tx *chain.Tx, caller bridge.Caller, to common.Address, amount *uint256.Int) error {
	b, err := w.Bridge(tx)
	if err != nil {
		return err
	}
	if b == bridge.NullAddress {
		return bridge.ErrNotInitialized
	}
	if !caller.Is(b) {
		return bridge.ErrNotBridge
	}
	if to == bridge.NullAddress {
		return bridge.ErrNullRecipient
	}
	if amount.IsZero() {
		return bridge.ErrZeroAmount
	}
	return w.Token.Mint(tx, to, amount)
}

// BurnForBridge destroys amount of the caller's tokens for release to
// recipient on the origin ledger and returns the burn nonce.
func (w *Token) BurnForBridge(tx *chain.Tx, caller bridge.Caller, amount *uint256.Int, destChain bridge.ChainID, recipient common.Address) (uint64, error) {
	if amount.IsZero() {
		return 0, bridge.ErrZeroAmount
	}
	if recipient == bridge.NullAddress {
		return 0, bridge.ErrNullRecipient
	}
	originChain, _, err := w.Origin(tx)
	if err != nil {
		return 0, err
	}
	if destChain != originChain {
		return 0, fmt.Errorf("burn to %s, origin is %s: %w", destChain, originChain, bridge.ErrUnsupportedChain)
	}
	if err := w.Token.Burn(tx, caller.Address(), amount); err != nil {
		return 0, err
	}

	nonce, err := tx.GetUint64(burnNonceKey)
	if err != nil {
		return 0, err
	}
	nonce++
	if err := tx.SetUint64(burnNonceKey, nonce); err != nil {
		return 0, err
	}
	record := &BurnRecord{
		BurnNonce: nonce,
		Token:     w.Address(),
		Burner:    caller.Address(),
		Amount:    amount.Clone(),
		DestChain: destChain,
		Recipient: recipient,
		CreatedAt: tx.Now(),
	}
	if err := tx.Set(burnKey(nonce), record.Marshal()); err != nil {
		return 0, err
	}
	err = tx.Emit(w.Address(), bridgeabi.EventBurned, caller.Address(), amount.ToBig(), uint64(destChain), recipient, nonce)
	if err != nil {
		return 0, err
	}
	return nonce, nil
}

// Burn returns the burn record for nonce.
func (w *Token) Burn(tx *chain.Tx, nonce uint64) (*BurnRecord, error) {
	return GetBurn(tx, nonce)
}

// GetBurn returns the burn record for nonce from any wrapped asset on the ledger.
func GetBurn(tx *chain.Tx, nonce uint64) (*BurnRecord, error) {
	b, ok, err := tx.Get(burnKey(nonce))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("burn %d: %w", nonce, bridge.ErrLockNotFound)
	}
	return UnmarshalBurnRecord(b)
}
