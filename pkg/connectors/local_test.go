package connectors

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/devnet"
	"github.com/mayur2811/chainbridge/pkg/signer"
)

var recipient = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

func newNetwork(t *testing.T) (*devnet.Network, *LocalConnector, *LocalConnector) {
	t.Helper()
	n, err := devnet.New(devnet.Config{Validators: 1, Threshold: 1})
	require.NoError(t, err)
	t.Cleanup(n.Close)
	s := n.Validators[0]
	return n, NewLocalConnector(n.Custody, s, zap.NewNop()), NewLocalConnector(n.Wrapped, s, zap.NewNop())
}

func lockTransfer(n *devnet.Network, amount int64, nonce uint64) *Transfer {
	return &Transfer{
		Kind:        bridge.MessageKindLock,
		Asset:       n.Asset.Address(),
		Recipient:   recipient,
		Amount:      big.NewInt(amount),
		SourceChain: devnet.CustodyChainID,
		DestChain:   devnet.WrappedChainID,
		Nonce:       nonce,
	}
}

func sign(t *testing.T, s signer.Signer, tr *Transfer) [][]byte {
	t.Helper()
	h, err := tr.MessageHash()
	require.NoError(t, err)
	sig, err := signer.SignMessage(s, h)
	require.NoError(t, err)
	return [][]byte{sig}
}

func TestLocalConnectorMetadata(t *testing.T) {
	n, custody, wrapped := newNetwork(t)
	ctx := context.Background()

	assert.Equal(t, devnet.CustodyChainID, custody.ChainID())
	assert.True(t, custody.HasCustody())
	assert.False(t, wrapped.HasCustody())
	assert.Equal(t, []common.Address{n.Custody.Vault.Address()}, custody.Sources())
	assert.Equal(t, []common.Address{n.WrappedAsset.Address()}, wrapped.Sources())
	assert.Equal(t, n.Wrapped.Router.Address(), wrapped.RouterAddress())

	members, threshold, err := wrapped.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{n.Validators[0].Address()}, members)
	assert.Equal(t, uint64(1), threshold)

	original, err := wrapped.OriginalAsset(ctx, n.WrappedAsset.Address())
	require.NoError(t, err)
	assert.Equal(t, n.Asset.Address(), original)

	_, err = wrapped.LockStatus(ctx, 1)
	assert.Error(t, err)
	assert.Error(t, wrapped.MarkCompleted(ctx, 1))
}

func TestCheckDecimals(t *testing.T) {
	n, custody, wrapped := newNetwork(t)
	ctx := context.Background()

	dec, err := custody.Decimals(ctx, n.Asset.Address())
	require.NoError(t, err)
	assert.Equal(t, uint8(devnet.AssetDecimals), dec)
	require.NoError(t, CheckDecimals(ctx, custody, wrapped))

	usdc, err := n.Custody.AddNativeAsset("USDC", 6)
	require.NoError(t, err)
	_, err = n.Wrapped.AddWrappedAsset("wUSDC", 18, devnet.CustodyChainID, usdc.Address())
	require.NoError(t, err)
	err = CheckDecimals(ctx, custody, wrapped)
	assert.ErrorContains(t, err, "has 18 decimals")
	assert.ErrorContains(t, err, "has 6")
}

func TestLocalConnectorLockLifecycle(t *testing.T) {
	n, custody, wrapped := newNetwork(t)
	ctx := context.Background()
	user := devnet.UserSigner().Address()

	require.NoError(t, n.Fund(user, uint256.NewInt(1000)))
	nonce, err := n.Lock(user, uint256.NewInt(100), recipient)
	require.NoError(t, err)

	head, err := custody.BlockNumber(ctx)
	require.NoError(t, err)
	logs, err := custody.FilterLogs(ctx, 1, head, custody.Sources())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	name, ok := bridgeabi.EventName(logs[0])
	require.True(t, ok)
	assert.Equal(t, bridgeabi.EventInitiated, name)

	included, err := custody.LogIncluded(ctx, logs[0])
	require.NoError(t, err)
	assert.True(t, included)

	moved := logs[0]
	moved.BlockHash = common.HexToHash("0x01")
	included, err = custody.LogIncluded(ctx, moved)
	require.NoError(t, err)
	assert.False(t, included)

	missing := types.Log{BlockNumber: head + 10}
	included, err = custody.LogIncluded(ctx, missing)
	require.NoError(t, err)
	assert.False(t, included)

	status, err := custody.LockStatus(ctx, nonce)
	require.NoError(t, err)
	assert.True(t, status.Open())
	status, err = custody.LockStatus(ctx, nonce+1)
	require.NoError(t, err)
	assert.False(t, status.Exists)

	tr := lockTransfer(n, 100, nonce)
	sigs := sign(t, n.Validators[0], tr)
	require.NoError(t, Submit(ctx, wrapped, tr, sigs))
	processed, err := wrapped.IsProcessed(ctx, bridge.MessageKindLock, devnet.CustodyChainID, nonce)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.ErrorIs(t, Submit(ctx, wrapped, tr, sigs), bridge.ErrAlreadyProcessed)

	require.NoError(t, custody.MarkCompleted(ctx, nonce))
	status, err = custody.LockStatus(ctx, nonce)
	require.NoError(t, err)
	assert.True(t, status.Completed)
	assert.False(t, status.Open())
	assert.ErrorIs(t, custody.MarkCompleted(ctx, nonce), bridge.ErrAlreadyCompleted)

	locked, supply, err := n.Peg()
	require.NoError(t, err)
	assert.True(t, locked.Eq(supply))
}

func TestLocalConnectorRejectsBadAmounts(t *testing.T) {
	n, _, wrapped := newNetwork(t)
	ctx := context.Background()

	tr := lockTransfer(n, -1, 1)
	assert.ErrorIs(t, wrapped.CompleteBridge(ctx, tr, nil), bridge.ErrZeroAmount)

	tr.Amount = new(big.Int).Lsh(big.NewInt(1), 256)
	assert.ErrorIs(t, wrapped.CompleteBridge(ctx, tr, nil), bridge.ErrAmountOverflow)

	tr.Kind = 9
	assert.Error(t, Submit(ctx, wrapped, tr, nil))
}

func TestLocalConnectorHonoursContext(t *testing.T) {
	_, custody, _ := newNetwork(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := custody.BlockNumber(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

var revertArgs = func() abi.Arguments {
	typ, _ := abi.NewType("string", "", nil)
	return abi.Arguments{{Type: typ}}
}()

type revertError struct {
	data interface{}
}

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorData() interface{} { return e.data }

func revertData(reason string) []byte {
	// Error(string) selector followed by the ABI-encoded reason.
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	s, _ := revertArgs.Pack(reason)
	return append(selector, s...)
}

func TestDecodeRevert(t *testing.T) {
	err := decodeRevert(revertError{data: hexutil.Encode(revertData("AlreadyProcessed"))})
	assert.ErrorIs(t, err, bridge.ErrAlreadyProcessed)
	assert.True(t, bridge.IsReplay(err))

	err = decodeRevert(revertError{data: revertData("SomethingElse")})
	assert.EqualError(t, err, "SomethingElse: execution reverted")
	assert.ErrorIs(t, err, bridge.ErrExecutionReverted)
	assert.True(t, bridge.IsLedgerError(err))

	// Custom Solidity error: selector only, no Error(string) payload.
	err = decodeRevert(revertError{data: []byte{0xde, 0xad, 0xbe, 0xef}})
	assert.ErrorIs(t, err, bridge.ErrExecutionReverted)

	err = decodeRevert(errors.New("execution reverted"))
	assert.ErrorIs(t, err, bridge.ErrExecutionReverted)

	err = decodeRevert(revertError{})
	assert.ErrorIs(t, err, bridge.ErrExecutionReverted)

	plain := errors.New("connection refused")
	assert.Equal(t, plain, decodeRevert(plain))
}

type nodeError struct{}

func (nodeError) Error() string          { return "nonce too low" }
func (nodeError) ErrorData() interface{} { return nil }

func TestNodeErrorIsTransient(t *testing.T) {
	assert.False(t, bridge.IsLedgerError(decodeRevert(nodeError{})))
}

func TestRevertedReceiptIsTerminal(t *testing.T) {
	ok := &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}
	assert.NoError(t, checkReceipt("completeBridge", ok))

	reverted := &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(7)}
	err := checkReceipt("completeBridge", reverted)
	assert.ErrorIs(t, err, bridge.ErrExecutionReverted)
	assert.True(t, bridge.IsLedgerError(err))
	assert.False(t, bridge.IsReplay(err))
}
