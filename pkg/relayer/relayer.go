// Package relayer drives bridge messages from their source ledger to the
// counter ledger. Every observed event runs through
//
//	Detected -> ConfirmationWait -> Executing -> Done | Failed | Skipped
//
// in its own goroutine. Ledger-level bridge errors are terminal, replays are
// skipped and everything else is retried with exponential backoff.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/attest"
	"github.com/mayur2811/chainbridge/pkg/bridge"
	chcommon "github.com/mayur2811/chainbridge/pkg/common"
	"github.com/mayur2811/chainbridge/pkg/connectors"
	"github.com/mayur2811/chainbridge/pkg/db"
	"github.com/mayur2811/chainbridge/pkg/readiness"
	"github.com/mayur2811/chainbridge/pkg/signer"
	"github.com/mayur2811/chainbridge/pkg/watcher"
)

type State int

const (
	StateDetected State = iota
	StateConfirmationWait
	StateExecuting
	StateDone
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateDetected:
		return "detected"
	case StateConfirmationWait:
		return "confirmation_wait"
	case StateExecuting:
		return "executing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

const (
	componentRelayer readiness.Component = "relayer"

	submitQueueSize   = 64
	attestationMaxAge = time.Hour
	pruneInterval     = time.Minute
)

var (
	errOrphaned           = errors.New("log is no longer part of the canonical ledger")
	errAttestationTimeout = errors.New("timed out collecting attestations")
)

// Result reports the terminal state of one observed transfer.
type Result struct {
	Transfer connectors.Transfer
	State    State
	Attempts int
	Err      error
}

type Option func(*Relayer)

// WithResults delivers every terminal result to c.
func WithResults(c chan<- Result) Option {
	return func(r *Relayer) { r.results = c }
}

func WithClock(clk clock.Clock) Option {
	return func(r *Relayer) { r.clock = clk }
}

// WithReadiness registers the relayer's components on ready instead of a
// private registry.
func WithReadiness(ready *readiness.Registry) Option {
	return func(r *Relayer) { r.ready = ready }
}

type side struct {
	conn    connectors.Connector
	queue   *SubmitQueue
	watcher *watcher.Watcher
}

type Relayer struct {
	cfg       Config
	signer    signer.Signer
	custody   *side
	wrapped   *side
	transport attest.Transport
	collector *attest.Collector
	db        *db.Database
	clock     clock.Clock
	ready     *readiness.Registry
	logger    *zap.Logger

	obsC     chan *watcher.Observation
	results  chan<- Result
	inFlight sync.WaitGroup
}

func applyDefaults(cfg *Config) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = watcher.DefaultPollInterval
	}
	if cfg.RetryInitial == 0 {
		cfg.RetryInitial = time.Second
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = time.Minute
	}
	if cfg.AttestationTimeout == 0 {
		cfg.AttestationTimeout = 30 * time.Second
	}
}

func New(cfg Config, s signer.Signer, custody, wrapped connectors.Connector, transport attest.Transport, database *db.Database, logger *zap.Logger, opts ...Option) (*Relayer, error) {
	if !custody.HasCustody() {
		return nil, fmt.Errorf("chain %s has no custody ledger", custody.ChainID())
	}
	if wrapped.HasCustody() {
		return nil, fmt.Errorf("chain %s must not have a custody ledger", wrapped.ChainID())
	}
	if custody.ChainID() == wrapped.ChainID() {
		return nil, fmt.Errorf("both ledgers have chain id %s", custody.ChainID())
	}
	applyDefaults(&cfg)

	r := &Relayer{
		cfg:       cfg,
		signer:    s,
		transport: transport,
		db:        database,
		clock:     clock.New(),
		logger:    logger.With(zap.String("component", "relayer"), zap.Stringer("signer", s.Address())),
		obsC:      make(chan *watcher.Observation, 128),
	}
	for _, o := range opts {
		o(r)
	}
	if r.ready == nil {
		r.ready = readiness.NewRegistry()
	}
	r.collector = attest.NewCollector(r.logger, r.clock)
	r.ready.RegisterComponent(componentRelayer)

	var err error
	if r.custody, err = r.newSide(custody, wrapped.ChainID(), cfg.Custody.StartBlock); err != nil {
		return nil, err
	}
	if r.wrapped, err = r.newSide(wrapped, custody.ChainID(), cfg.Wrapped.StartBlock); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relayer) newSide(conn connectors.Connector, dest bridge.ChainID, startBlock uint64) (*side, error) {
	w, err := watcher.New(conn, watcher.Config{
		DestChain:    dest,
		PollInterval: r.cfg.PollInterval,
		StartBlock:   startBlock,
	}, r.db, r.clock, r.ready, r.obsC, r.logger)
	if err != nil {
		return nil, err
	}
	return &side{
		conn:    conn,
		queue:   NewSubmitQueue(conn.ChainID(), submitQueueSize, r.logger),
		watcher: w,
	}, nil
}

func (r *Relayer) Readiness() *readiness.Registry {
	return r.ready
}

func (r *Relayer) sideFor(id bridge.ChainID) *side {
	switch id {
	case r.custody.conn.ChainID():
		return r.custody
	case r.wrapped.conn.ChainID():
		return r.wrapped
	default:
		return nil
	}
}

// Run starts both watchers and submit workers and processes observations
// until ctx is cancelled or a component fails. On return no transfer is
// running anymore.
func (r *Relayer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe, err := r.transport.Subscribe(r.collector.Add)
	if err != nil {
		return err
	}
	defer unsubscribe()

	errC := make(chan error, 8)
	chcommon.RunWithScissors(ctx, errC, "custody-watcher", r.custody.watcher.Run)
	chcommon.RunWithScissors(ctx, errC, "wrapped-watcher", r.wrapped.watcher.Run)
	chcommon.RunWithScissors(ctx, errC, "custody-submitter", r.custody.queue.Run)
	chcommon.RunWithScissors(ctx, errC, "wrapped-submitter", r.wrapped.queue.Run)
	chcommon.RunWithScissors(ctx, errC, "attestation-pruner", func(ctx context.Context) error {
		return r.collector.Run(ctx, pruneInterval, attestationMaxAge)
	})
	r.ready.SetReady(componentRelayer)
	r.logger.Info("relayer started",
		zap.Stringer("custody_chain", r.custody.conn.ChainID()),
		zap.Stringer("wrapped_chain", r.wrapped.conn.ChainID()),
		zap.Uint64("confirmations", r.cfg.Confirmations))

	stop := func() {
		cancel()
		r.inFlight.Wait()
	}
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relayer stopping")
			stop()
			return nil
		case err := <-errC:
			r.logger.Error("relayer component failed", zap.Error(err))
			stop()
			return err
		case obs := <-r.obsC:
			r.inFlight.Add(1)
			chcommon.Go("transfer", func(err error) {
				defer r.inFlight.Done()
				logger := r.logger.With(
					zap.Stringer("kind", obs.Transfer.Kind),
					zap.Uint64("nonce", obs.Transfer.Nonce),
					zap.Stringer("tx", obs.Log.TxHash))
				logger.Error("transfer handler panicked", zap.Error(err))
				r.finish(ctx, logger, obs, StateFailed, 0, err)
			}, func() {
				r.handle(ctx, obs)
				r.inFlight.Done()
			})
		}
	}
}

func (r *Relayer) handle(ctx context.Context, obs *watcher.Observation) {
	t := obs.Transfer
	logger := r.logger.With(
		zap.Stringer("kind", t.Kind),
		zap.Stringer("source_chain", t.SourceChain),
		zap.Stringer("dest_chain", t.DestChain),
		zap.Uint64("nonce", t.Nonce),
		zap.Stringer("tx", obs.Log.TxHash))
	logger.Info("transfer detected", zap.Stringer("state", StateDetected))
	transfersInFlight.Inc()
	defer transfersInFlight.Dec()

	src, dst := r.sideFor(t.SourceChain), r.sideFor(t.DestChain)
	if src == nil || dst == nil {
		r.finish(ctx, logger, obs, StateFailed, 0, fmt.Errorf("no connector for %s -> %s", t.SourceChain, t.DestChain))
		return
	}

	var (
		attempts int
		final    State
	)
	op := func() error {
		attempts++
		state, err := r.attempt(ctx, logger, obs, src, dst)
		if errors.Is(err, errOrphaned) {
			final = StateSkipped
			return nil
		}
		if bridge.IsReplay(err) {
			logger.Info("message already processed by another relayer")
			state, err = StateSkipped, nil
		}
		if err == nil && t.Kind == bridge.MessageKindLock {
			err = r.closeLock(ctx, logger, src, t.Nonce)
		}
		if err == nil {
			final = state
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if bridge.IsLedgerError(err) {
			return backoff.Permanent(err)
		}
		retries.WithLabelValues(t.Kind.String(), t.SourceChain.String()).Inc()
		logger.Warn("transfer attempt failed, retrying", zap.Int("attempt", attempts), zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInitial
	b.MaxInterval = r.cfg.RetryMax
	b.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx))
	if ctx.Err() != nil {
		// Not terminal: the checkpoint stays before this event and it is
		// rescanned on restart.
		logger.Info("abandoning transfer on shutdown")
		return
	}
	if err != nil {
		r.finish(ctx, logger, obs, StateFailed, attempts, err)
		return
	}
	r.finish(ctx, logger, obs, final, attempts, nil)
}

// attempt runs ConfirmationWait and Executing once.
func (r *Relayer) attempt(ctx context.Context, logger *zap.Logger, obs *watcher.Observation, src, dst *side) (State, error) {
	t := &obs.Transfer
	logger.Debug("waiting for confirmations", zap.Stringer("state", StateConfirmationWait))
	detected := r.clock.Now()
	if err := r.waitConfirmations(ctx, src.conn, obs.Log.BlockNumber); err != nil {
		return 0, err
	}
	confirmationLatency.WithLabelValues(t.SourceChain.String()).Observe(r.clock.Since(detected).Seconds())

	included, err := src.conn.LogIncluded(ctx, obs.Log)
	if err != nil {
		return 0, fmt.Errorf("failed to re-check log inclusion: %w", err)
	}
	if !included {
		orphanedEvents.WithLabelValues(t.SourceChain.String()).Inc()
		logger.Warn("event orphaned after confirmation wait")
		return 0, errOrphaned
	}

	logger.Debug("executing", zap.Stringer("state", StateExecuting))
	processed, err := dst.conn.IsProcessed(ctx, t.Kind, t.SourceChain, t.Nonce)
	if err != nil {
		return 0, fmt.Errorf("failed to query processed state: %w", err)
	}
	if processed {
		return StateSkipped, nil
	}

	hash, err := t.MessageHash()
	if err != nil {
		return 0, err
	}
	a, err := attest.Sign(r.signer, t.Kind, t.SourceChain, t.DestChain, t.Nonce, hash)
	if err != nil {
		return 0, err
	}
	r.collector.Add(a)
	if err := r.transport.Publish(ctx, a); err != nil {
		logger.Warn("failed to publish attestation", zap.Error(err))
	}

	roster, threshold, err := dst.conn.Roster(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query validator set: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.AttestationTimeout)
	sigs, err := r.collector.Wait(waitCtx, hash, roster, threshold)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("collected %d of %d attestations: %w", r.collector.Count(hash), threshold, errAttestationTimeout)
	}

	err = dst.queue.Submit(ctx, func(ctx context.Context) error {
		return connectors.Submit(ctx, dst.conn, t, sigs)
	})
	submitAttempts.WithLabelValues(t.DestChain.String(), outcome(err)).Inc()
	if err != nil {
		return 0, err
	}
	r.collector.Forget(hash)
	logger.Info("transfer executed", zap.Int("signatures", len(sigs)))
	return StateDone, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case bridge.IsReplay(err):
		return "replay"
	case bridge.IsLedgerError(err):
		return "rejected"
	default:
		return "error"
	}
}

func (r *Relayer) waitConfirmations(ctx context.Context, conn connectors.Connector, block uint64) error {
	for {
		head, err := conn.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to query head: %w", err)
		}
		if head >= block && head-block >= r.cfg.Confirmations {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(r.cfg.PollInterval):
		}
	}
}

// closeLock marks a delivered lock completed on the custody ledger so that
// its emergency path closes.
func (r *Relayer) closeLock(ctx context.Context, logger *zap.Logger, custody *side, nonce uint64) error {
	status, err := custody.conn.LockStatus(ctx, nonce)
	if err != nil {
		return fmt.Errorf("failed to query lock record: %w", err)
	}
	if !status.Open() {
		if status.Withdrawn {
			logger.Error("delivered lock was withdrawn through the emergency path")
		}
		return nil
	}
	err = custody.queue.Submit(ctx, func(ctx context.Context) error {
		return custody.conn.MarkCompleted(ctx, nonce)
	})
	switch {
	case err == nil:
		logger.Info("lock marked completed")
		return nil
	case errors.Is(err, bridge.ErrAlreadyCompleted):
		return nil
	case bridge.IsLedgerError(err):
		logger.Error("failed to mark lock completed", zap.Error(err))
		return nil
	default:
		return err
	}
}

func (r *Relayer) finish(ctx context.Context, logger *zap.Logger, obs *watcher.Observation, state State, attempts int, err error) {
	t := obs.Transfer
	transfersByState.WithLabelValues(t.Kind.String(), t.SourceChain.String(), state.String()).Inc()
	if state == StateFailed {
		r.recordFailure(logger, obs, attempts, err)
	} else {
		logger.Info("transfer finished", zap.Stringer("state", state), zap.Int("attempts", attempts))
	}
	if obs.Done != nil {
		obs.Done()
	}
	if r.results != nil {
		select {
		case r.results <- Result{Transfer: t, State: state, Attempts: attempts, Err: err}:
		case <-ctx.Done():
		}
	}
}

// recordFailure persists a failed transfer for the operator.
func (r *Relayer) recordFailure(logger *zap.Logger, obs *watcher.Observation, attempts int, err error) {
	t := obs.Transfer
	terminal := bridge.IsLedgerError(err)
	logger.Error("transfer failed",
		zap.Int("attempts", attempts),
		zap.Bool("terminal", terminal),
		zap.Error(err))

	amount := ""
	if t.Amount != nil {
		amount = t.Amount.String()
	}
	f := &db.FailedEvent{
		Kind:        t.Kind.String(),
		SourceChain: uint64(t.SourceChain),
		TargetChain: uint64(t.DestChain),
		TxHash:      obs.Log.TxHash.Hex(),
		BlockNumber: obs.Log.BlockNumber,
		Nonce:       t.Nonce,
		Asset:       t.Asset.Hex(),
		Recipient:   t.Recipient.Hex(),
		Amount:      amount,
		Reason:      err.Error(),
		Attempts:    attempts,
		Terminal:    terminal,
		FailedAt:    r.clock.Now(),
	}
	if err := r.db.StoreFailed(f); err != nil {
		logger.Error("failed to persist failed transfer", zap.Error(err))
	}
}
