package relayer

import (
	"context"

	"go.uber.org/zap"

	"github.com/mayur2811/chainbridge/pkg/bridge"
)

type submission struct {
	fn   func(ctx context.Context) error
	errC chan error
}

// SubmitQueue serializes every transaction one signing identity sends to one
// ledger. Submissions are executed in FIFO order by a single worker.
type SubmitQueue struct {
	chainID bridge.ChainID
	queue   chan *submission
	logger  *zap.Logger
}

func NewSubmitQueue(chainID bridge.ChainID, size int, logger *zap.Logger) *SubmitQueue {
	return &SubmitQueue{
		chainID: chainID,
		queue:   make(chan *submission, size),
		logger:  logger.With(zap.String("component", "submitter"), zap.Stringer("chain_id", chainID)),
	}
}

// Submit enqueues fn and waits for its result.
func (q *SubmitQueue) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	s := &submission{fn: fn, errC: make(chan error, 1)}
	select {
	case q.queue <- s:
		submitQueueDepth.WithLabelValues(q.chainID.String()).Inc()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-s.errC:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled.
func (q *SubmitQueue) Run(ctx context.Context) error {
	q.logger.Info("submit worker started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-q.queue:
			submitQueueDepth.WithLabelValues(q.chainID.String()).Dec()
			s.errC <- s.fn(ctx)
		}
	}
}
