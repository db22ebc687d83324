package wrapped

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/db"
)

var (
	router    = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	holder    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	recipient = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	original  = common.HexToAddress("0x00000000000000000000000000000000000a55e7")
)

func setup(t *testing.T) (*chain.Chain, *Token, *Token) {
	t.Helper()
	database, err := db.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	c := chain.New(2, database, clk, zap.NewNop())
	a := New(common.HexToAddress("0xaaaa"))
	b := New(common.HexToAddress("0xbbbb"))
	_, err = c.Execute(bridge.NewCaller(router), "deploy", func(tx *chain.Tx) error {
		if err := a.Initialize(tx, router, 18, "wTKN", 1, original); err != nil {
			return err
		}
		if err := b.Initialize(tx, router, 6, "wUSD", 1, common.HexToAddress("0x05d")); err != nil {
			return err
		}
		if err := a.Mint(tx, bridge.NewCaller(router), holder, uint256.NewInt(100)); err != nil {
			return err
		}
		return b.Mint(tx, bridge.NewCaller(router), holder, uint256.NewInt(100))
	})
	require.NoError(t, err)
	return c, a, b
}

func TestMintIsGated(t *testing.T) {
	c, a, _ := setup(t)

	_, err := c.Execute(bridge.NewCaller(holder), "mint", func(tx *chain.Tx) error {
		return a.Mint(tx, bridge.NewCaller(holder), holder, uint256.NewInt(1))
	})
	assert.ErrorIs(t, err, bridge.ErrNotBridge)

	_, err = c.Execute(bridge.NewCaller(router), "mint", func(tx *chain.Tx) error {
		return a.Mint(tx, bridge.NewCaller(router), bridge.NullAddress, uint256.NewInt(1))
	})
	assert.ErrorIs(t, err, bridge.ErrNullRecipient)

	_, err = c.Execute(bridge.NewCaller(router), "mint", func(tx *chain.Tx) error {
		return a.Mint(tx, bridge.NewCaller(router), holder, uint256.NewInt(0))
	})
	assert.ErrorIs(t, err, bridge.ErrZeroAmount)
}

func TestBurnForBridge(t *testing.T) {
	c, a, b := setup(t)

	burn := func(tok *Token, amount uint64) (uint64, *chain.Receipt, error) {
		var nonce uint64
		receipt, err := c.Execute(bridge.NewCaller(holder), "burnForBridge", func(tx *chain.Tx) error {
			var err error
			nonce, err = tok.BurnForBridge(tx, bridge.NewCaller(holder), uint256.NewInt(amount), 1, recipient)
			return err
		})
		return nonce, receipt, err
	}

	nonce, receipt, err := burn(a, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	var ev bridgeabi.Burned
	last := receipt.Logs[len(receipt.Logs)-1]
	require.NoError(t, bridgeabi.DecodeLog(&ev, bridgeabi.EventBurned, last))
	assert.Equal(t, holder, ev.Burner)
	assert.Equal(t, int64(50), ev.Amount.Int64())
	assert.Equal(t, uint64(1), ev.DestChainId)
	assert.Equal(t, recipient, ev.Recipient)
	assert.Equal(t, uint64(1), ev.BurnNonce)
	assert.Equal(t, a.Address(), last.Address)

	// nonces are shared across wrapped assets on the ledger
	nonce, _, err = burn(b, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), nonce)

	_, _, err = burn(a, 51)
	assert.ErrorIs(t, err, bridge.ErrInsufficientBalance)
	_, _, err = burn(a, 0)
	assert.ErrorIs(t, err, bridge.ErrZeroAmount)

	require.NoError(t, c.View(func(tx *chain.Tx) error {
		supply, err := a.TotalSupply(tx)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), supply.Uint64())

		r, err := a.Burn(tx, 1)
		require.NoError(t, err)
		assert.Equal(t, a.Address(), r.Token)
		assert.Equal(t, holder, r.Burner)
		assert.Equal(t, uint64(50), r.Amount.Uint64())
		assert.Equal(t, recipient, r.Recipient)

		r, err = GetBurn(tx, 2)
		require.NoError(t, err)
		assert.Equal(t, b.Address(), r.Token)

		_, err = GetBurn(tx, 3)
		assert.ErrorIs(t, err, bridge.ErrLockNotFound)
		return nil
	}))
}

func TestBurnValidation(t *testing.T) {
	c, a, _ := setup(t)

	_, err := c.Execute(bridge.NewCaller(holder), "burnForBridge", func(tx *chain.Tx) error {
		_, err := a.BurnForBridge(tx, bridge.NewCaller(holder), uint256.NewInt(1), 1, bridge.NullAddress)
		return err
	})
	assert.ErrorIs(t, err, bridge.ErrNullRecipient)

	_, err = c.Execute(bridge.NewCaller(holder), "burnForBridge", func(tx *chain.Tx) error {
		_, err := a.BurnForBridge(tx, bridge.NewCaller(holder), uint256.NewInt(1), 3, recipient)
		return err
	})
	assert.ErrorIs(t, err, bridge.ErrUnsupportedChain)
}

func TestOrigin(t *testing.T) {
	c, a, _ := setup(t)
	require.NoError(t, c.View(func(tx *chain.Tx) error {
		chainID, asset, err := a.Origin(tx)
		require.NoError(t, err)
		assert.Equal(t, bridge.ChainID(1), chainID)
		assert.Equal(t, original, asset)
		d, err := a.Decimals(tx)
		require.NoError(t, err)
		assert.Equal(t, uint8(18), d)
		return nil
	}))
}
