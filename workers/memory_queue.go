package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrQueueFull = errors.New("queue is full")

// MemoryQueue keeps jobs in a buffered channel. Jobs do not survive a restart.
type MemoryQueue struct {
	jobs   chan Job
	logger *slog.Logger
}

func NewMemoryQueue(capacity int, logger *slog.Logger) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{jobs: make(chan Job, capacity), logger: logger.With("component", "memory_queue")}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		if err := q.Enqueue(context.Background(), job); err != nil {
			q.logger.Error("requeue job", "job_id", job.ID, "task", job.Task, "error", err)
		}
	})
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			handle(ctx, job, func() {})
		}
	}
}

func (q *MemoryQueue) Finish(ctx context.Context, job Job, outcome Outcome) error {
	return nil
}

func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}
