package deploy

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
	testOwner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testValidator = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newChain(t *testing.T, id bridge.ChainID) *chain.Chain {
	t.Helper()
	database, err := db.OpenInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return chain.New(id, database, clock.NewMock(), zap.NewNop())
}

func deployPair(t *testing.T) (*Deployment, *Deployment) {
	t.Helper()
	src, err := Deploy(newChain(t, 1), Config{
		Owner:           testOwner,
		Validators:      []common.Address{testValidator},
		Threshold:       1,
		Custody:         true,
		SupportedChains: []bridge.ChainID{2},
	})
	require.NoError(t, err)
	dst, err := Deploy(newChain(t, 2), Config{
		Owner:           testOwner,
		Validators:      []common.Address{testValidator},
		Threshold:       1,
		SupportedChains: []bridge.ChainID{1},
	})
	require.NoError(t, err)
	return src, dst
}

func TestDeployRequiresOwner(t *testing.T) {
	_, err := Deploy(newChain(t, 1), Config{Validators: []common.Address{testValidator}, Threshold: 1})
	assert.Error(t, err)
}

func TestDeployLayout(t *testing.T) {
	src, dst := deployPair(t)
	assert.NotNil(t, src.Vault)
	assert.Nil(t, dst.Vault)
	assert.NotEqual(t, src.Router.Address(), src.Vault.Address())

	asset, err := src.AddNativeAsset("DEV", 18)
	require.NoError(t, err)
	w, err := dst.AddWrappedAsset("wDEV", 18, 1, asset.Address())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{w.Address()}, dst.WrappedAssets())
	assert.Empty(t, src.WrappedAssets())
	require.NoError(t, CheckDecimals(src, asset.Address(), dst, w.Address()))

	var supported bool
	require.NoError(t, src.Chain.View(func(tx *chain.Tx) error {
		var err error
		supported, err = src.Vault.IsAssetSupported(tx, asset.Address())
		return err
	}))
	assert.True(t, supported)
}

func TestCheckDecimalsMismatch(t *testing.T) {
	src, dst := deployPair(t)
	asset, err := src.AddNativeAsset("DEV", 18)
	require.NoError(t, err)
	w, err := dst.AddWrappedAsset("wDEV", 6, 1, asset.Address())
	require.NoError(t, err)
	assert.ErrorContains(t, CheckDecimals(src, asset.Address(), dst, w.Address()), "6 decimals")
}

func TestFund(t *testing.T) {
	src, _ := deployPair(t)
	asset, err := src.AddNativeAsset("DEV", 18)
	require.NoError(t, err)
	holder := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	require.NoError(t, src.Fund(asset.Address(), holder, uint256.NewInt(50)))
	var bal *uint256.Int
	require.NoError(t, src.Chain.View(func(tx *chain.Tx) error {
		var err error
		bal, err = asset.BalanceOf(tx, holder)
		return err
	}))
	assert.Equal(t, uint64(50), bal.Uint64())

	err = src.Fund(common.HexToAddress("0x1234"), holder, uint256.NewInt(1))
	assert.ErrorIs(t, err, bridge.ErrUnsupportedAsset)
}
