package attest

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
)

func newNATSPair(t *testing.T) (*NATSTransport, *NATSTransport) {
	t.Helper()
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	pub, err := NewNATSTransport(srv.ClientURL(), "", "relayer-a", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })
	sub, err := NewNATSTransport(srv.ClientURL(), "", "relayer-b", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func TestNATSTransportRoundTrip(t *testing.T) {
	pub, sub := newNATSPair(t)
	assert.Equal(t, DefaultSubject, pub.subject)

	got := make(chan *Attestation, 4)
	unsubscribe, err := sub.Subscribe(func(a *Attestation) { got <- a })
	require.NoError(t, err)
	require.NoError(t, sub.conn.Flush())

	// Malformed payloads are dropped without reaching the handler.
	require.NoError(t, pub.conn.Publish(DefaultSubject, []byte("not an attestation")))

	s := testSigners(t, 1)[0]
	a, err := Sign(s, bridge.MessageKindLock, 1, 2, 1, testHash)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), a))

	select {
	case received := <-got:
		assert.Equal(t, a, received)
		require.NoError(t, received.Verify())
	case <-time.After(5 * time.Second):
		t.Fatal("attestation not delivered")
	}

	unsubscribe()
	require.NoError(t, sub.conn.Flush())
	require.NoError(t, pub.Publish(context.Background(), a))
	require.NoError(t, pub.conn.Flush())
	select {
	case <-got:
		t.Fatal("attestation delivered after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSTransportUnreachable(t *testing.T) {
	_, err := NewNATSTransport("nats://127.0.0.1:1", "", "relayer", zap.NewNop())
	assert.ErrorContains(t, err, "failed to connect to NATS")
}
