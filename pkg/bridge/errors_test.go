package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("release: %w", ErrAlreadyProcessed)

	assert.True(t, errors.Is(err, ErrAlreadyProcessed))
	c, ok := ClassOf(err)
	require.True(t, ok)
	assert.Equal(t, ClassReplay, c)
	assert.True(t, IsReplay(err))
	assert.True(t, IsLedgerError(err))
}

func TestNonLedgerError(t *testing.T) {
	err := errors.New("connection refused")
	assert.False(t, IsLedgerError(err))
	assert.False(t, IsReplay(err))
}

func TestErrorByName(t *testing.T) {
	e, ok := ErrorByName("DuplicateSignature")
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateSignature, e)
	assert.Equal(t, ClassThreshold, e.Class())

	_, ok = ErrorByName("NoSuchError")
	assert.False(t, ok)
}

func TestMessageIDIsOrderSensitive(t *testing.T) {
	assert.NotEqual(t, MessageID(1, 2), MessageID(2, 1))
	assert.Equal(t, MessageID(5, 9), MessageID(5, 9))
}

func TestCaller(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	c := NewCaller(addr)
	assert.True(t, c.Is(addr))
	assert.Equal(t, addr, c.Address())
	assert.False(t, c.Is(NullAddress))
}
