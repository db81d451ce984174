package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BestEffort runs fire-and-forget side tasks. Failures are logged and
// never reach the caller.
type BestEffort struct {
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewBestEffort(timeout time.Duration, logger *slog.Logger) *BestEffort {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BestEffort{timeout: timeout, logger: logger.With("component", "best_effort")}
}

func (b *BestEffort) Go(name string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("best-effort task panicked", "task", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			b.logger.Warn("best-effort task failed", "task", name, "error", err)
			return
		}
		b.logger.Debug("best-effort task done", "task", name)
	}()
}

// Wait blocks until every submitted task has returned.
func (b *BestEffort) Wait() {
	b.wg.Wait()
}
