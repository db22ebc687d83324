package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithScissorsCatchesPanic(t *testing.T) {
	errC := make(chan error, 1)
	RunWithScissors(context.Background(), errC, "panicker", func(ctx context.Context) error {
		panic("bad thing")
	})
	select {
	case err := <-errC:
		assert.EqualError(t, err, "panicker: bad thing")
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
}

func TestRunWithScissorsForwardsError(t *testing.T) {
	errC := make(chan error, 1)
	boom := errors.New("boom")
	RunWithScissors(context.Background(), errC, "worker", func(ctx context.Context) error {
		return boom
	})
	err := <-errC
	assert.ErrorIs(t, err, boom)
}

func TestGoCatchesPanic(t *testing.T) {
	got := make(chan error, 1)
	Go("task", func(err error) { got <- err }, func() {
		panic(errors.New("oops"))
	})
	select {
	case err := <-got:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task: oops")
	case <-time.After(time.Second):
		t.Fatal("panic not reported")
	}
}
