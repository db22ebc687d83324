// Package watcher observes outbound bridge events on one ledger and hands them
// to the relayer. A historical backfill from the durable checkpoint and live
// polling of new blocks run concurrently and share one dedup filter.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
	"github.com/mayur2811/chainbridge/pkg/bridgeabi"
	"github.com/mayur2811/chainbridge/pkg/connectors"
	"github.com/mayur2811/chainbridge/pkg/db"
	"github.com/mayur2811/chainbridge/pkg/readiness"
)

var (
	eventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_watcher_events_observed_total",
			Help: "Total number of bridge events observed (pre-confirmation)",
		}, []string{"chain_id", "kind"})
	eventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_watcher_events_duplicate_total",
			Help: "Total number of bridge events dropped because they were already observed",
		}, []string{"chain_id"})
	eventsIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_watcher_events_ignored_total",
			Help: "Total number of logs from watched contracts that carry no message for the counter ledger",
		}, []string{"chain_id", "reason"})
	connectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainbridge_watcher_connection_errors_total",
			Help: "Total number of ledger connection errors while watching",
		}, []string{"chain_id", "reason"})
	currentHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainbridge_watcher_current_height",
			Help: "Latest block height seen by the watcher",
		}, []string{"chain_id"})
	checkpointHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainbridge_watcher_checkpoint",
			Help: "Next block the watcher rescans from after a restart",
		}, []string{"chain_id"})
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 1000
	defaultDedupSize    = 10_000
)

// Observation is a bridge message seen on its source ledger.
type Observation struct {
	Transfer connectors.Transfer
	Log      types.Log
	// Done reports that the observation reached a terminal state.
	Done func()
}

type dedupKey struct {
	txHash common.Hash
	nonce  uint64
}

type Config struct {
	// DestChain is the counter ledger. Messages to any other ledger are ignored.
	DestChain    bridge.ChainID
	PollInterval time.Duration
	BatchSize    uint64
	// StartBlock is where a watcher without a checkpoint starts scanning.
	StartBlock uint64
}

type Watcher struct {
	conn      connectors.Connector
	cfg       Config
	db        *db.Database
	clock     clock.Clock
	logger    *zap.Logger
	readiness *readiness.Registry
	component readiness.Component

	seen    *lru.Cache
	tracker *Tracker

	obsC chan<- *Observation
}

func New(conn connectors.Connector, cfg Config, database *db.Database, clk clock.Clock, ready *readiness.Registry, obsC chan<- *Observation, logger *zap.Logger) (*Watcher, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.StartBlock == 0 {
		cfg.StartBlock = 1
	}
	seen, err := lru.New(defaultDedupSize)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		conn:      conn,
		cfg:       cfg,
		db:        database,
		clock:     clk,
		logger:    logger.With(zap.String("component", "watcher"), zap.Stringer("chain_id", conn.ChainID())),
		readiness: ready,
		component: readiness.Component(fmt.Sprintf("watcher-%s", conn.ChainID())),
		seen:      seen,
		obsC:      obsC,
	}
	ready.RegisterComponent(w.component)
	return w, nil
}

func (w *Watcher) chainLabel() string {
	return w.conn.ChainID().String()
}

// Tracker is the checkpoint tracker, available once Run has started.
func (w *Watcher) Tracker() *Tracker {
	return w.tracker
}

func (w *Watcher) persistCheckpoint(next uint64) {
	checkpointHeight.WithLabelValues(w.chainLabel()).Set(float64(next))
	if err := w.db.StoreCheckpoint(uint64(w.conn.ChainID()), next); err != nil {
		w.logger.Error("failed to persist checkpoint", zap.Uint64("next_block", next), zap.Error(err))
	}
}

// Run backfills from the checkpoint and polls for new blocks until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	start, ok, err := w.db.GetCheckpoint(uint64(w.conn.ChainID()))
	if err != nil {
		return err
	}
	if !ok {
		start = w.cfg.StartBlock
	}
	w.tracker = NewTracker(start, w.persistCheckpoint)

	var head uint64
	err = backoff.Retry(func() error {
		var err error
		head, err = w.conn.BlockNumber(ctx)
		if err != nil {
			connectionErrors.WithLabelValues(w.chainLabel(), "block_number").Inc()
			w.logger.Warn("failed to query head", zap.Error(err))
		}
		return err
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
	if err != nil {
		return fmt.Errorf("failed to query head of chain %s: %w", w.conn.ChainID(), err)
	}
	currentHeight.WithLabelValues(w.chainLabel()).Set(float64(head))
	w.readiness.SetReady(w.component)
	w.logger.Info("watcher started",
		zap.Uint64("checkpoint", start),
		zap.Uint64("head", head),
		zap.Stringers("sources", w.conn.Sources()))

	errC := make(chan error, 1)
	go func() {
		errC <- w.backfill(ctx, start, head)
	}()

	last := head
	if last < start-1 {
		last = start - 1
	}
	t := w.clock.Ticker(w.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errC:
			if err != nil && ctx.Err() == nil {
				return err
			}
		case <-t.C:
			last = w.poll(ctx, last)
		}
	}
}

func (w *Watcher) backfill(ctx context.Context, from, to uint64) error {
	if from > to {
		return nil
	}
	w.logger.Info("backfilling", zap.Uint64("from", from), zap.Uint64("to", to))
	for lo := from; lo <= to; lo += w.cfg.BatchSize {
		hi := lo + w.cfg.BatchSize - 1
		if hi > to {
			hi = to
		}
		err := backoff.Retry(func() error {
			return w.scan(ctx, lo, hi)
		}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
		if err != nil {
			return fmt.Errorf("backfill of blocks %d-%d failed: %w", lo, hi, err)
		}
	}
	w.logger.Info("backfill complete", zap.Uint64("to", to))
	return nil
}

// poll scans everything after last up to the current head and returns the new
// last scanned block. Errors are logged and retried on the next tick.
func (w *Watcher) poll(ctx context.Context, last uint64) uint64 {
	head, err := w.conn.BlockNumber(ctx)
	if err != nil {
		connectionErrors.WithLabelValues(w.chainLabel(), "block_number").Inc()
		w.logger.Warn("failed to query head", zap.Error(err))
		return last
	}
	currentHeight.WithLabelValues(w.chainLabel()).Set(float64(head))
	for last < head {
		hi := last + w.cfg.BatchSize
		if hi > head {
			hi = head
		}
		if err := w.scan(ctx, last+1, hi); err != nil {
			w.logger.Warn("failed to scan blocks", zap.Uint64("from", last+1), zap.Uint64("to", hi), zap.Error(err))
			return last
		}
		last = hi
	}
	return last
}

// scan forwards every new message in [from, to] and then marks the range
// scanned.
func (w *Watcher) scan(ctx context.Context, from, to uint64) error {
	logs, err := w.conn.FilterLogs(ctx, from, to, w.conn.Sources())
	if err != nil {
		connectionErrors.WithLabelValues(w.chainLabel(), "filter_logs").Inc()
		return err
	}
	for _, l := range logs {
		obs, err := w.decode(ctx, l)
		if err != nil {
			return err
		}
		if obs == nil {
			continue
		}
		if found, _ := w.seen.ContainsOrAdd(dedupKey{txHash: l.TxHash, nonce: obs.Transfer.Nonce}, struct{}{}); found {
			eventsDuplicate.WithLabelValues(w.chainLabel()).Inc()
			continue
		}
		obs.Done = w.tracker.Add(l.BlockNumber)
		eventsObserved.WithLabelValues(w.chainLabel(), obs.Transfer.Kind.String()).Inc()
		w.logger.Info("observed bridge message",
			zap.Stringer("kind", obs.Transfer.Kind),
			zap.Uint64("nonce", obs.Transfer.Nonce),
			zap.Stringer("tx", l.TxHash),
			zap.Uint64("block", l.BlockNumber))

		select {
		case w.obsC <- obs:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.tracker.MarkScanned(from, to)
	return nil
}

// decode turns l into an observation, or nil if l carries no message for the
// counter ledger.
func (w *Watcher) decode(ctx context.Context, l types.Log) (*Observation, error) {
	name, ok := bridgeabi.EventName(l)
	if !ok {
		return nil, nil
	}
	var t connectors.Transfer
	switch name {
	case bridgeabi.EventInitiated:
		var ev bridgeabi.Initiated
		if err := bridgeabi.DecodeLog(&ev, name, l); err != nil {
			w.ignore(l, "malformed", err)
			return nil, nil
		}
		t = connectors.Transfer{
			Kind:        bridge.MessageKindLock,
			Asset:       ev.Asset,
			Recipient:   ev.Recipient,
			Amount:      ev.Amount,
			SourceChain: w.conn.ChainID(),
			DestChain:   bridge.ChainID(ev.DestChainId),
			Nonce:       ev.Nonce,
		}
	case bridgeabi.EventBurned:
		var ev bridgeabi.Burned
		if err := bridgeabi.DecodeLog(&ev, name, l); err != nil {
			w.ignore(l, "malformed", err)
			return nil, nil
		}
		original, err := w.conn.OriginalAsset(ctx, l.Address)
		if err != nil {
			connectionErrors.WithLabelValues(w.chainLabel(), "original_asset").Inc()
			return nil, err
		}
		if original == bridge.NullAddress {
			w.ignore(l, "unmapped", bridge.ErrUnmappedAsset)
			return nil, nil
		}
		t = connectors.Transfer{
			Kind:        bridge.MessageKindBurn,
			Asset:       original,
			Recipient:   ev.Recipient,
			Amount:      ev.Amount,
			SourceChain: w.conn.ChainID(),
			DestChain:   bridge.ChainID(ev.DestChainId),
			Nonce:       ev.BurnNonce,
		}
	default:
		return nil, nil
	}

	if t.DestChain != w.cfg.DestChain {
		w.ignore(l, "other_destination", nil)
		return nil, nil
	}
	return &Observation{Transfer: t, Log: l}, nil
}

func (w *Watcher) ignore(l types.Log, reason string, err error) {
	eventsIgnored.WithLabelValues(w.chainLabel(), reason).Inc()
	w.logger.Debug("ignoring log",
		zap.String("reason", reason),
		zap.Stringer("tx", l.TxHash),
		zap.Uint("index", l.Index),
		zap.Error(err))
}
