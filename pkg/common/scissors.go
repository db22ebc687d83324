package common

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScissorsErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainbridge_scissor_errors_caught",
			Help: "Total number of unhandled errors caught",
		})
)

// Runnable is a long-running unit of work that stops when ctx is cancelled.
type Runnable func(ctx context.Context) error

// RunWithScissors starts runnable in a goroutine. A panic is recovered and
// delivered to errC like a returned error.
func RunWithScissors(ctx context.Context, errC chan error, name string, runnable Runnable) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				switch x := r.(type) {
				case error:
					errC <- fmt.Errorf("%s: %w", name, x)
				default:
					errC <- fmt.Errorf("%s: %v", name, x)
				}
				ScissorsErrors.Inc()
			}
		}()
		err := runnable(ctx)
		if err != nil {
			errC <- fmt.Errorf("%s: %w", name, err)
		}
	}()
}

// Go runs fn in a goroutine and reports a panic to onPanic instead of
// crashing the process.
func Go(name string, onPanic func(error), fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ScissorsErrors.Inc()
				switch x := r.(type) {
				case error:
					onPanic(fmt.Errorf("%s: %w", name, x))
				default:
					onPanic(fmt.Errorf("%s: %v", name, x))
				}
			}
		}()
		fn()
	}()
}
