package token

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/db"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	vault = common.HexToAddress("0x000000000000000000000000000000000000fa17")
)

func newChain(t *testing.T) *chain.Chain {
	t.Helper()
	database, err := db.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return chain.New(1, database, clock.NewMock(), zap.NewNop())
}

func exec(t *testing.T, c *chain.Chain, caller common.Address, fn func(tx *chain.Tx) error) error {
	t.Helper()
	_, err := c.Execute(bridge.NewCaller(caller), "test", fn)
	return err
}

func balance(t *testing.T, c *chain.Chain, tok *Token, holder common.Address) uint64 {
	t.Helper()
	var v *uint256.Int
	require.NoError(t, c.View(func(tx *chain.Tx) error {
		var err error
		v, err = tok.BalanceOf(tx, holder)
		return err
	}))
	return v.Uint64()
}

func TestMintTransferBurn(t *testing.T) {
	c := newChain(t)
	tok := New(common.HexToAddress("0x1"))

	require.NoError(t, exec(t, c, alice, func(tx *chain.Tx) error {
		if err := tok.Init(tx, 18, "TKN"); err != nil {
			return err
		}
		return tok.Mint(tx, alice, uint256.NewInt(1000))
	}))
	assert.ErrorIs(t, exec(t, c, alice, func(tx *chain.Tx) error {
		return tok.Init(tx, 6, "X")
	}), bridge.ErrAlreadyInitialized)

	require.NoError(t, exec(t, c, alice, func(tx *chain.Tx) error {
		return tok.Transfer(tx, bridge.NewCaller(alice), bob, uint256.NewInt(300))
	}))
	assert.Equal(t, uint64(700), balance(t, c, tok, alice))
	assert.Equal(t, uint64(300), balance(t, c, tok, bob))

	assert.ErrorIs(t, exec(t, c, bob, func(tx *chain.Tx) error {
		return tok.Transfer(tx, bridge.NewCaller(bob), alice, uint256.NewInt(301))
	}), bridge.ErrInsufficientBalance)

	require.NoError(t, exec(t, c, bob, func(tx *chain.Tx) error {
		return tok.Burn(tx, bob, uint256.NewInt(100))
	}))
	require.NoError(t, c.View(func(tx *chain.Tx) error {
		supply, err := tok.TotalSupply(tx)
		require.NoError(t, err)
		assert.Equal(t, uint64(900), supply.Uint64())
		d, err := tok.Decimals(tx)
		require.NoError(t, err)
		assert.Equal(t, uint8(18), d)
		return nil
	}))
}

func TestTransferFromNeedsAllowance(t *testing.T) {
	c := newChain(t)
	tok := New(common.HexToAddress("0x1"))
	require.NoError(t, exec(t, c, alice, func(tx *chain.Tx) error {
		return tok.Mint(tx, alice, uint256.NewInt(100))
	}))

	assert.ErrorIs(t, exec(t, c, vault, func(tx *chain.Tx) error {
		return tok.TransferFrom(tx, bridge.NewCaller(vault), alice, vault, uint256.NewInt(10))
	}), bridge.ErrUnauthorized)

	require.NoError(t, exec(t, c, alice, func(tx *chain.Tx) error {
		return tok.Approve(tx, bridge.NewCaller(alice), vault, uint256.NewInt(10))
	}))
	require.NoError(t, exec(t, c, vault, func(tx *chain.Tx) error {
		return tok.TransferFrom(tx, bridge.NewCaller(vault), alice, vault, uint256.NewInt(10))
	}))
	assert.Equal(t, uint64(10), balance(t, c, tok, vault))

	// allowance is spent
	assert.ErrorIs(t, exec(t, c, vault, func(tx *chain.Tx) error {
		return tok.TransferFrom(tx, bridge.NewCaller(vault), alice, vault, uint256.NewInt(1))
	}), bridge.ErrUnauthorized)
}

func TestSafeTransferRejectsFeeOnTransfer(t *testing.T) {
	c := newChain(t)
	plain := New(common.HexToAddress("0x1"))
	fee := NewFeeOnTransfer(common.HexToAddress("0x2"), 100)

	require.NoError(t, exec(t, c, alice, func(tx *chain.Tx) error {
		if err := plain.Mint(tx, alice, uint256.NewInt(1000)); err != nil {
			return err
		}
		return fee.Mint(tx, alice, uint256.NewInt(1000))
	}))

	require.NoError(t, exec(t, c, alice, func(tx *chain.Tx) error {
		return SafeTransfer(tx, plain, bridge.NewCaller(alice), vault, uint256.NewInt(100))
	}))
	assert.Equal(t, uint64(100), balance(t, c, plain, vault))

	err := exec(t, c, alice, func(tx *chain.Tx) error {
		return SafeTransfer(tx, fee, bridge.NewCaller(alice), vault, uint256.NewInt(100))
	})
	assert.ErrorIs(t, err, bridge.ErrTransferMismatch)
	// the whole call reverted
	assert.Equal(t, uint64(0), balance(t, c, fee, vault))
	assert.Equal(t, uint64(1000), balance(t, c, fee, alice))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	tok := New(common.HexToAddress("0x1"))
	r.Add(tok)

	got, err := r.Get(tok.Address())
	require.NoError(t, err)
	assert.Same(t, tok, got)

	_, err = r.Get(common.HexToAddress("0x2"))
	assert.ErrorIs(t, err, bridge.ErrUnsupportedAsset)
}
