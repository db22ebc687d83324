package attest

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	attestationsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainbridge_attestations_received_total",
			Help: "Total number of valid attestations received",
		})
	attestationsInvalid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainbridge_attestations_invalid_total",
			Help: "Total number of attestations dropped because their signature did not verify",
		})
	attestationsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainbridge_attestations_pending_messages",
			Help: "Number of message hashes with collected signatures held in memory",
		})
)

type entry struct {
	firstSeen time.Time
	sigs      map[common.Address][]byte
	// updated is closed and replaced whenever a signature is added
	updated chan struct{}
}

// Collector gathers attestations per message hash.
type Collector struct {
	logger *zap.Logger
	clock  clock.Clock

	mu      sync.Mutex
	entries map[common.Hash]*entry
}

func NewCollector(logger *zap.Logger, clk clock.Clock) *Collector {
	return &Collector{
		logger:  logger,
		clock:   clk,
		entries: make(map[common.Hash]*entry),
	}
}

func (c *Collector) entryLocked(h common.Hash) *entry {
	e, ok := c.entries[h]
	if !ok {
		e = &entry{
			firstSeen: c.clock.Now(),
			sigs:      make(map[common.Address][]byte),
			updated:   make(chan struct{}),
		}
		c.entries[h] = e
		attestationsPending.Set(float64(len(c.entries)))
	}
	return e
}

// Add records a verified attestation. Attestations with an invalid signature
// are dropped.
func (c *Collector) Add(a *Attestation) {
	if err := a.Verify(); err != nil {
		attestationsInvalid.Inc()
		c.logger.Debug("dropping invalid attestation",
			zap.Stringer("message_hash", a.MessageHash),
			zap.Stringer("signer", a.Signer),
			zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(a.MessageHash)
	if _, ok := e.sigs[a.Signer]; ok {
		return
	}
	e.sigs[a.Signer] = a.Signature
	close(e.updated)
	e.updated = make(chan struct{})
	attestationsReceived.Inc()
}

// Wait blocks until threshold distinct members of roster have attested to h
// and returns their signatures in roster order.
func (c *Collector) Wait(ctx context.Context, h common.Hash, roster []common.Address, threshold uint64) ([][]byte, error) {
	for {
		c.mu.Lock()
		e := c.entryLocked(h)
		sigs := make([][]byte, 0, threshold)
		for _, member := range roster {
			if sig, ok := e.sigs[member]; ok {
				sigs = append(sigs, sig)
				if uint64(len(sigs)) == threshold {
					break
				}
			}
		}
		updated := e.updated
		c.mu.Unlock()

		if uint64(len(sigs)) >= threshold {
			return sigs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-updated:
		}
	}
}

// Count returns the number of signatures collected for h.
func (c *Collector) Count(h common.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[h]; ok {
		return len(e.sigs)
	}
	return 0
}

// Forget drops everything collected for h.
func (c *Collector) Forget(h common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, h)
	attestationsPending.Set(float64(len(c.entries)))
}

// Prune drops entries first seen more than maxAge ago and returns how many
// were dropped.
func (c *Collector) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.clock.Now().Add(-maxAge)
	n := 0
	for h, e := range c.entries {
		if e.firstSeen.Before(cutoff) {
			delete(c.entries, h)
			n++
		}
	}
	attestationsPending.Set(float64(len(c.entries)))
	return n
}

// Run prunes stale entries every interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, interval, maxAge time.Duration) error {
	t := c.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := c.Prune(maxAge); n > 0 {
				c.logger.Info("pruned stale attestations", zap.Int("messages", n))
			}
		}
	}
}
