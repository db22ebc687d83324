package bridgeabi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiatedLogRoundTrip(t *testing.T) {
	contract := common.HexToAddress("0x1000000000000000000000000000000000000001")
	owner := common.HexToAddress("0x2000000000000000000000000000000000000002")
	asset := common.HexToAddress("0x3000000000000000000000000000000000000003")
	recipient := common.HexToAddress("0x4000000000000000000000000000000000000004")

	l, err := EncodeLog(contract, EventInitiated, owner, asset, big.NewInt(100), uint64(2), recipient, uint64(7))
	require.NoError(t, err)
	assert.Equal(t, contract, l.Address)

	name, ok := EventName(l)
	require.True(t, ok)
	assert.Equal(t, EventInitiated, name)

	var ev Initiated
	require.NoError(t, DecodeLog(&ev, EventInitiated, l))
	assert.Equal(t, owner, ev.Owner)
	assert.Equal(t, asset, ev.Asset)
	assert.Equal(t, 0, big.NewInt(100).Cmp(ev.Amount))
	assert.Equal(t, uint64(2), ev.DestChainId)
	assert.Equal(t, recipient, ev.Recipient)
	assert.Equal(t, uint64(7), ev.Nonce)
}

func TestDecodeLogRejectsOtherEvent(t *testing.T) {
	l, err := EncodeLog(common.Address{}, EventLockCompleted, uint64(1))
	require.NoError(t, err)

	var ev Burned
	assert.ErrorIs(t, DecodeLog(&ev, EventBurned, l), ErrEventMismatch)
}

func TestEncodeLogWrongArity(t *testing.T) {
	_, err := EncodeLog(common.Address{}, EventBurned, uint64(1))
	assert.Error(t, err)

	_, err = EncodeLog(common.Address{}, "NoSuchEvent")
	assert.Error(t, err)
}
