package attest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultSubject is the NATS subject attestations are gossiped on.
const DefaultSubject = "chainbridge.attestations"

var natsConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "chainbridge_nats_connected",
		Help: "Whether the attestation transport is connected to NATS (1) or not (0)",
	})

// Transport delivers attestations between relayers.
type Transport interface {
	Publish(ctx context.Context, a *Attestation) error
	// Subscribe calls handler for every attestation published by any relayer.
	Subscribe(handler func(*Attestation)) (unsubscribe func(), err error)
	Close() error
}

// LocalBus is an in-process transport shared by relayers running in the same
// process.
type LocalBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(*Attestation)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]func(*Attestation))}
}

func (b *LocalBus) Publish(_ context.Context, a *Attestation) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(a)
	}
	return nil
}

func (b *LocalBus) Subscribe(handler func(*Attestation)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}, nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[int]func(*Attestation))
	return nil
}

// NATSTransport gossips attestations over a NATS subject.
type NATSTransport struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewNATSTransport(url string, subject string, name string, logger *zap.Logger) (*NATSTransport, error) {
	logger = logger.With(zap.String("component", "nats"))
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from NATS", zap.Error(err))
			natsConnected.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
			natsConnected.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	natsConnected.Set(1)
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSTransport{conn: conn, subject: subject, logger: logger}, nil
}

func (t *NATSTransport) Publish(_ context.Context, a *Attestation) error {
	b, err := a.Marshal()
	if err != nil {
		return err
	}
	if err := t.conn.Publish(t.subject, b); err != nil {
		return fmt.Errorf("failed to publish attestation: %w", err)
	}
	return nil
}

func (t *NATSTransport) Subscribe(handler func(*Attestation)) (func(), error) {
	sub, err := t.conn.Subscribe(t.subject, func(msg *nats.Msg) {
		a, err := UnmarshalAttestation(msg.Data)
		if err != nil {
			t.logger.Warn("dropping malformed attestation", zap.Error(err))
			return
		}
		handler(a)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", t.subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Warn("failed to unsubscribe", zap.Error(err))
		}
	}, nil
}

func (t *NATSTransport) Close() error {
	t.conn.Close()
	natsConnected.Set(0)
	return nil
}
