// Package token implements fungible asset balances on the in-process ledger.
package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
)

// Asset is a fungible token that a custody ledger can hold.
type Asset interface {
	Address() common.Address
	Decimals(tx *chain.Tx) (uint8, error)
	BalanceOf(tx *chain.Tx, holder common.Address) (*uint256.Int, error)
	Transfer(tx *chain.Tx, from bridge.Caller, to common.Address, amount *uint256.Int) error
	TransferFrom(tx *chain.Tx, spender bridge.Caller, from, to common.Address, amount *uint256.Int) error
}

// Token is a plain fungible token with allowances. A non-zero fee (in basis
// points) is deducted from every transfer and destroyed, which models tokens
// whose transfers do not move the requested amount.
type Token struct {
	addr   common.Address
	feeBps uint64
}

var _ Asset = (*Token)(nil)

func New(addr common.Address) *Token {
	return &Token{addr: addr}
}

// NewFeeOnTransfer returns a token that burns feeBps/10000 of every transfer.
func NewFeeOnTransfer(addr common.Address, feeBps uint64) *Token {
	return &Token{addr: addr, feeBps: feeBps}
}

func (t *Token) Address() common.Address {
	return t.addr
}

func (t *Token) key(parts ...string) []byte {
	k := "token/" + t.addr.Hex()
	for _, p := range parts {
		k += "/" + p
	}
	return []byte(k)
}

func (t *Token) balanceKey(holder common.Address) []byte {
	return t.key("balance", holder.Hex())
}

func (t *Token) allowanceKey(owner, spender common.Address) []byte {
	return t.key("allowance", owner.Hex(), spender.Hex())
}

// Init stores the token metadata. It can only run once.
func (t *Token) Init(tx *chain.Tx, decimals uint8, symbol string) error {
	ok, err := tx.Has(t.key("meta"))
	if err != nil {
		return err
	}
	if ok {
		return bridge.ErrAlreadyInitialized
	}
	return tx.Set(t.key("meta"), append([]byte{decimals}, symbol...))
}

func (t *Token) meta(tx *chain.Tx) (uint8, string, error) {
	b, ok, err := tx.Get(t.key("meta"))
	if err != nil {
		return 0, "", err
	}
	if !ok || len(b) == 0 {
		return 0, "", bridge.ErrNotInitialized
	}
	return b[0], string(b[1:]), nil
}

func (t *Token) Decimals(tx *chain.Tx) (uint8, error) {
	d, _, err := t.meta(tx)
	return d, err
}

func (t *Token) Symbol(tx *chain.Tx) (string, error) {
	_, s, err := t.meta(tx)
	return s, err
}

func (t *Token) BalanceOf(tx *chain.Tx, holder common.Address) (*uint256.Int, error) {
	return tx.GetU256(t.balanceKey(holder))
}

func (t *Token) TotalSupply(tx *chain.Tx) (*uint256.Int, error) {
	return tx.GetU256(t.key("supply"))
}

func (t *Token) Allowance(tx *chain.Tx, owner, spender common.Address) (*uint256.Int, error) {
	return tx.GetU256(t.allowanceKey(owner, spender))
}

// Approve lets spender move up to amount of the caller's balance.
func (t *Token) Approve(tx *chain.Tx, owner bridge.Caller, spender common.Address, amount *uint256.Int) error {
	return tx.SetU256(t.allowanceKey(owner.Address(), spender), amount)
}

// Transfer moves amount from the caller to to.
func (t *Token) Transfer(tx *chain.Tx, from bridge.Caller, to common.Address, amount *uint256.Int) error {
	return t.move(tx, from.Address(), to, amount)
}

// TransferFrom moves amount from from to to, spending the caller's allowance.
func (t *Token) TransferFrom(tx *chain.Tx, spender bridge.Caller, from, to common.Address, amount *uint256.Int) error {
	if !spender.Is(from) {
		allowed, err := t.Allowance(tx, from, spender.Address())
		if err != nil {
			return err
		}
		if allowed.Lt(amount) {
			return fmt.Errorf("allowance of %s for %s: %w", spender, from.Hex(), bridge.ErrUnauthorized)
		}
		if err := tx.SetU256(t.allowanceKey(from, spender.Address()), new(uint256.Int).Sub(allowed, amount)); err != nil {
			return err
		}
	}
	return t.move(tx, from, to, amount)
}

func (t *Token) move(tx *chain.Tx, from, to common.Address, amount *uint256.Int) error {
	if to == bridge.NullAddress {
		return bridge.ErrNullRecipient
	}
	fromBal, err := t.BalanceOf(tx, from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return bridge.ErrInsufficientBalance
	}
	if err := tx.SetU256(t.balanceKey(from), new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}

	received := amount
	if t.feeBps > 0 {
		fee := new(uint256.Int).Mul(amount, uint256.NewInt(t.feeBps))
		fee.Div(fee, uint256.NewInt(10_000))
		received = new(uint256.Int).Sub(amount, fee)
		supply, err := t.TotalSupply(tx)
		if err != nil {
			return err
		}
		if err := tx.SetU256(t.key("supply"), supply.Sub(supply, fee)); err != nil {
			return err
		}
	}

	toBal, err := t.BalanceOf(tx, to)
	if err != nil {
		return err
	}
	newBal, overflow := new(uint256.Int).AddOverflow(toBal, received)
	if overflow {
		return bridge.ErrAmountOverflow
	}
	if err := tx.SetU256(t.balanceKey(to), newBal); err != nil {
		return err
	}
	return tx.Emit(t.addr, bridgeabi.EventTransfer, from, to, received.ToBig())
}

// Mint creates amount new tokens for to. Authorization is the caller's concern.
func (t *Token) Mint(tx *chain.Tx, to common.Address, amount *uint256.Int) error {
	if to == bridge.NullAddress {
		return bridge.ErrNullRecipient
	}
	supply, err := t.TotalSupply(tx)
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return bridge.ErrAmountOverflow
	}
	bal, err := t.BalanceOf(tx, to)
	if err != nil {
		return err
	}
	if err := tx.SetU256(t.key("supply"), newSupply); err != nil {
		return err
	}
	// balance <= supply, so this cannot overflow
	if err := tx.SetU256(t.balanceKey(to), new(uint256.Int).Add(bal, amount)); err != nil {
		return err
	}
	return tx.Emit(t.addr, bridgeabi.EventTransfer, bridge.NullAddress, to, amount.ToBig())
}

// Burn destroys amount of from's tokens. Authorization is the caller's concern.
func (t *Token) Burn(tx *chain.Tx, from common.Address, amount *uint256.Int) error {
	bal, err := t.BalanceOf(tx, from)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return bridge.ErrInsufficientBalance
	}
	supply, err := t.TotalSupply(tx)
	if err != nil {
		return err
	}
	if err := tx.SetU256(t.balanceKey(from), new(uint256.Int).Sub(bal, amount)); err != nil {
		return err
	}
	if err := tx.SetU256(t.key("supply"), new(uint256.Int).Sub(supply, amount)); err != nil {
		return err
	}
	return tx.Emit(t.addr, bridgeabi.EventTransfer, from, bridge.NullAddress, amount.ToBig())
}
