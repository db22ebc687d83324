package verifier

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/chain"
	"github.com/mayur2811/chainbridge/pkg/db"
	"github.com/mayur2811/chainbridge/pkg/validatorset"
)

var (
	owner     = common.HexToAddress("0x000000000000000000000000000000000000beef")
	asset     = common.HexToAddress("0x00000000000000000000000000000000000a55e7")
	recipient = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestHashesAreDomainSeparated(t *testing.T) {
	amount := big.NewInt(100)
	lock := HashLock(asset, recipient, amount, 1, 2, 1)
	burn := HashBurn(asset, recipient, amount, 1, 2, 1)
	plain := validatorset.MessageHash(asset, recipient, amount, 1, 2, 1)

	assert.NotEqual(t, lock, burn)
	assert.NotEqual(t, lock, plain)
	assert.NotEqual(t, burn, plain)

	h, err := Hash(bridge.MessageKindBurn, asset, recipient, amount, 1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, burn, h)

	_, err = Hash(bridge.MessageKind(9), asset, recipient, amount, 1, 2, 1)
	assert.Error(t, err)
}

func setup(t *testing.T) (*chain.Chain, *Verifier, *ecdsa.PrivateKey) {
	t.Helper()
	database, err := db.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	c := chain.New(2, database, clock.NewMock(), zap.NewNop())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	set := validatorset.New(common.HexToAddress("0x5e7"))
	_, err = c.Execute(bridge.NewCaller(owner), "initialize", func(tx *chain.Tx) error {
		return set.Initialize(tx, owner, []common.Address{crypto.PubkeyToAddress(key.PublicKey)}, 1)
	})
	require.NoError(t, err)
	return c, New(common.HexToAddress("0x7e7"), set), key
}

func TestVerifyBridgeLock(t *testing.T) {
	c, v, key := setup(t)
	amount := big.NewInt(100)

	// signed for this chain (2) as destination
	sig, err := crypto.Sign(validatorset.SigningDigest(HashLock(asset, recipient, amount, 1, 2, 7)), key)
	require.NoError(t, err)

	receipt, err := c.Execute(bridge.NewCaller(owner), "verify", func(tx *chain.Tx) error {
		return v.VerifyBridgeLock(tx, asset, recipient, amount, 1, 7, [][]byte{sig})
	})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)
	name, _ := bridgeabi.EventName(receipt.Logs[0])
	assert.Equal(t, bridgeabi.EventMessageVerified, name)

	// a lock approval does not authorize a release
	_, err = c.Execute(bridge.NewCaller(owner), "verify", func(tx *chain.Tx) error {
		return v.VerifyBridgeBurn(tx, asset, recipient, amount, 1, 7, [][]byte{sig})
	})
	assert.ErrorIs(t, err, bridge.ErrVerificationFailed)
}

func TestVerifyRejectsOtherDestination(t *testing.T) {
	c, v, key := setup(t)
	amount := big.NewInt(100)

	sig, err := crypto.Sign(validatorset.SigningDigest(HashBurn(asset, recipient, amount, 1, 3, 7)), key)
	require.NoError(t, err)

	_, err = c.Execute(bridge.NewCaller(owner), "verify", func(tx *chain.Tx) error {
		return v.VerifyBridgeBurn(tx, asset, recipient, amount, 1, 7, [][]byte{sig})
	})
	assert.ErrorIs(t, err, bridge.ErrVerificationFailed)
}
