package devnet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/chain"
)

func TestNetworkLockAndBurn(t *testing.T) {
	n, err := New(Config{Validators: 3, Threshold: 2})
	require.NoError(t, err)
	defer n.Close()

	assert.Len(t, n.Validators, 3)
	assert.Equal(t, CustodyChainID, n.Custody.Chain.ID())
	assert.Equal(t, WrappedChainID, n.Wrapped.Chain.ID())
	assert.Equal(t, []common.Address{n.WrappedAsset.Address()}, n.Wrapped.WrappedAssets())

	user := UserSigner().Address()
	require.NoError(t, n.Fund(user, uint256.NewInt(500)))
	nonce, err := n.Lock(user, uint256.NewInt(200), user)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	native, wrappedBal, err := n.Balances(user)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), native.Uint64())
	assert.True(t, wrappedBal.IsZero())

	locked, supply, err := n.Peg()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), locked.Uint64())
	assert.True(t, supply.IsZero())

	_, err = n.Burn(user, uint256.NewInt(1), user)
	assert.ErrorIs(t, err, bridge.ErrInsufficientBalance)
}

func TestSingleValidatorCannotDrainCustody(t *testing.T) {
	n, err := New(Config{Validators: 3, Threshold: 2})
	require.NoError(t, err)
	defer n.Close()

	user := UserSigner().Address()
	require.NoError(t, n.Fund(user, uint256.NewInt(500)))
	_, err = n.Lock(user, uint256.NewInt(500), user)
	require.NoError(t, err)

	rogue := bridge.NewCaller(n.Validators[0].Address())
	_, err = n.Custody.Chain.Execute(rogue, "release", func(tx *chain.Tx) error {
		return n.Custody.Vault.Release(tx, rogue, n.Asset.Address(), rogue.Address(), uint256.NewInt(500), WrappedChainID, 999)
	})
	assert.ErrorIs(t, err, bridge.ErrUnauthorized)

	_, err = n.Custody.Chain.Execute(rogue, "releaseBridge", func(tx *chain.Tx) error {
		return n.Custody.Router.ReleaseBridge(tx, rogue, n.Asset.Address(), rogue.Address(), uint256.NewInt(500), WrappedChainID, 999, nil)
	})
	assert.ErrorIs(t, err, bridge.ErrNotEnoughSignatures)

	locked, _, err := n.Peg()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), locked.Uint64())
}
