package chain

import (
	"context"
	"errors"
	"math/big"
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
	"github.com/mayur2811/chainbridge/pkg/db"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	contract = common.HexToAddress("0x000000000000000000000000000000000000c0de")
)

func newTestChain(t *testing.T) (*Chain, *clock.Mock) {
	t.Helper()
	database, err := db.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	return New(1337, database, clk, zap.NewNop()), clk
}

func TestExecuteCommitsStateAndLogs(t *testing.T) {
	c, clk := newTestChain(t)

	receipt, err := c.Execute(bridge.NewCaller(alice), "write", func(tx *Tx) error {
		assert.Equal(t, bridge.ChainID(1337), tx.ChainID())
		assert.Equal(t, clk.Now(), tx.Now())
		assert.True(t, tx.Sender().Is(alice))
		if err := tx.SetU256([]byte("k"), uint256.NewInt(42)); err != nil {
			return err
		}
		return tx.Emit(contract, bridgeabi.EventLockCompleted, uint64(7))
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.BlockNumber)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, receipt.TxHash, receipt.Logs[0].TxHash)

	head, err := c.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head)

	err = c.View(func(tx *Tx) error {
		v, err := tx.GetU256([]byte("k"))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), v.Uint64())
		return nil
	})
	require.NoError(t, err)

	logs, err := c.Logs(1, 1, contract)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	name, ok := bridgeabi.EventName(logs[0])
	assert.True(t, ok)
	assert.Equal(t, bridgeabi.EventLockCompleted, name)
	assert.Equal(t, uint64(1), logs[0].BlockNumber)
}

func TestFailedCallLeavesNoTrace(t *testing.T) {
	c, _ := newTestChain(t)
	boom := errors.New("boom")

	_, err := c.Execute(bridge.NewCaller(alice), "fail", func(tx *Tx) error {
		require.NoError(t, tx.SetUint64([]byte("k"), 1))
		require.NoError(t, tx.Emit(contract, bridgeabi.EventPaused, alice))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	head, err := c.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head)

	err = c.View(func(tx *Tx) error {
		ok, err := tx.Has([]byte("k"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	logs, err := c.Logs(0, 100)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestViewIsReadOnly(t *testing.T) {
	c, _ := newTestChain(t)
	err := c.View(func(tx *Tx) error {
		return tx.Set([]byte("k"), []byte("v"))
	})
	assert.ErrorIs(t, err, ErrReadOnly)

	err = c.View(func(tx *Tx) error {
		return tx.Emit(contract, bridgeabi.EventTransfer, alice, alice, big.NewInt(1))
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestLogsRangeAndFilter(t *testing.T) {
	c, _ := newTestChain(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	for i := 0; i < 3; i++ {
		_, err := c.Execute(bridge.NewCaller(alice), "emit", func(tx *Tx) error {
			if err := tx.Emit(contract, bridgeabi.EventLockCompleted, uint64(i)); err != nil {
				return err
			}
			return tx.Emit(other, bridgeabi.EventLockCompleted, uint64(i))
		})
		require.NoError(t, err)
	}
	_, err := c.Mine()
	require.NoError(t, err)

	all, err := c.Logs(1, 4)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	mid, err := c.Logs(2, 2, contract)
	require.NoError(t, err)
	require.Len(t, mid, 1)
	assert.Equal(t, uint64(2), mid[0].BlockNumber)
	assert.Equal(t, uint(0), mid[0].Index)

	blk, err := c.BlockByNumber(4)
	require.NoError(t, err)
	assert.Empty(t, blk.TxHashes)

	_, err = c.BlockByNumber(5)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestBlockProducer(t *testing.T) {
	c, clk := newTestChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.RunBlockProducer(ctx, time.Second) }()

	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		head, err := c.Head()
		return err == nil && head >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
