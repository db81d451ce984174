package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexbalandi/chatwoot-dify/models"

	"github.com/google/uuid"
)

var ErrUnknownTask = errors.New("unknown task")

// Task is a named unit of work the scheduler knows how to run.
type Task struct {
	Name string
	Run  func(ctx context.Context, job Job) (any, error)
	// Decide classifies a failed attempt. Nil means never retry.
	Decide func(job Job, err error) Decision
	// GiveUp runs once when the job fails for good, before on_error.
	GiveUp      func(ctx context.Context, job Job, err error)
	MaxAttempts int
	Countdown   time.Duration
	Timeout     time.Duration
}

func (t Task) maxAttempts() int {
	if t.MaxAttempts <= 0 {
		return 1
	}
	return t.MaxAttempts
}

// Scheduler runs registered tasks from a Queue on a bounded pool of goroutines.
type Scheduler struct {
	queue  Queue
	logger *slog.Logger

	mu    sync.RWMutex
	tasks map[string]Task

	sem chan struct{}
	wg  sync.WaitGroup

	defaultTimeout time.Duration
}

func NewScheduler(queue Queue, workers int, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		queue:          queue,
		logger:         logger.With("component", "scheduler"),
		tasks:          map[string]Task{},
		sem:            make(chan struct{}, workers),
		defaultTimeout: 2 * time.Minute,
	}
}

func (s *Scheduler) Register(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.Name] = t
}

func (s *Scheduler) task(name string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[name]
	return t, ok
}

type submitConfig struct {
	onSuccess *linkSpec
	onError   *linkSpec
}

type linkSpec struct {
	task string
	args any
}

type SubmitOption func(*submitConfig)

// Then links task to run with the job's result when it succeeds.
func Then(task string, args any) SubmitOption {
	return func(c *submitConfig) { c.onSuccess = &linkSpec{task: task, args: args} }
}

// Catch links task to run when the job fails for good.
func Catch(task string, args any) SubmitOption {
	return func(c *submitConfig) { c.onError = &linkSpec{task: task, args: args} }
}

func (l *linkSpec) build() (*Link, error) {
	if l == nil {
		return nil, nil
	}
	link := &Link{Task: l.task}
	if l.args != nil {
		raw, err := json.Marshal(l.args)
		if err != nil {
			return nil, fmt.Errorf("encode %s args: %w", l.task, err)
		}
		link.Args = raw
	}
	return link, nil
}

// Submit enqueues a new job for task. It returns once the queue accepted it.
func (s *Scheduler) Submit(ctx context.Context, task string, payload any, opts ...SubmitOption) (Job, error) {
	if _, ok := s.task(task); !ok {
		return Job{}, fmt.Errorf("submit %s: %w", task, ErrUnknownTask)
	}
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("submit %s: encode payload: %w", task, err)
	}
	job := Job{ID: uuid.NewString(), Task: task, Payload: raw}
	if job.OnSuccess, err = cfg.onSuccess.build(); err != nil {
		return Job{}, fmt.Errorf("submit %s: %w", task, err)
	}
	if job.OnError, err = cfg.onError.build(); err != nil {
		return Job{}, fmt.Errorf("submit %s: %w", task, err)
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		return Job{}, fmt.Errorf("submit %s: %w", task, err)
	}
	s.logger.Debug("job submitted", "job_id", job.ID, "task", task)
	return job, nil
}

// Run consumes the queue until ctx is done. In-flight jobs keep running;
// call Wait to drain them.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "workers", cap(s.sem))
	err := s.queue.Consume(ctx, s.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) handle(ctx context.Context, job Job, done func()) {
	s.sem <- struct{}{}
	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.wg.Done()
		}()
		defer done()
		s.process(context.WithoutCancel(ctx), job)
	}()
}

func (s *Scheduler) process(ctx context.Context, job Job) {
	task, ok := s.task(job.Task)
	if !ok {
		s.logger.Error("dropping job for unknown task", "job_id", job.ID, "task", job.Task)
		s.finish(ctx, job, Outcome{Status: models.JOB_STATUS_FAILED, Err: ErrUnknownTask})
		return
	}

	job.Attempt++
	logger := s.logger.With("job_id", job.ID, "task", job.Task, "attempt", job.Attempt)

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	result, err := runTask(runCtx, task, job)
	cancel()

	if err == nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			err = fmt.Errorf("encode result: %w", merr)
		} else {
			logger.Debug("job done")
			s.finish(ctx, job, Outcome{Status: models.JOB_STATUS_DONE, Result: raw})
			if job.OnSuccess != nil {
				s.follow(ctx, job, job.OnSuccess, SuccessPayload{ParentID: job.ID, Result: raw, Args: job.OnSuccess.Args})
			}
			return
		}
	}

	job.LastError = err.Error()
	decision := DecisionFail
	if task.Decide != nil {
		decision = task.Decide(job, err)
	}
	if decision == DecisionRetry && job.Attempt < task.maxAttempts() {
		logger.Warn("job failed, retrying", "error", err, "delay", task.Countdown)
		rerr := s.queue.Retry(ctx, job, task.Countdown)
		if rerr == nil {
			return
		}
		logger.Error("could not reschedule job", "error", rerr)
	}

	logger.Error("job failed", "error", err, "decision", decision.String(), "max_attempts", task.maxAttempts())
	if task.GiveUp != nil {
		giveUpCtx, cancel := context.WithTimeout(ctx, timeout)
		task.GiveUp(giveUpCtx, job, err)
		cancel()
	}
	s.finish(ctx, job, Outcome{Status: models.JOB_STATUS_FAILED, Err: err})
	if job.OnError != nil {
		s.follow(ctx, job, job.OnError, FailurePayload{
			ParentID: job.ID,
			Task:     job.Task,
			Request:  job.Payload,
			Error:    err.Error(),
			Attempts: job.Attempt,
			Args:     job.OnError.Args,
		})
	}
}

func runTask(ctx context.Context, task Task, job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx, job)
}

func (s *Scheduler) follow(ctx context.Context, parent Job, link *Link, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode continuation payload", "job_id", parent.ID, "task", link.Task, "error", err)
		return
	}
	next := Job{ID: uuid.NewString(), Task: link.Task, Payload: raw}
	if err := s.queue.Enqueue(ctx, next); err != nil {
		s.logger.Error("enqueue continuation", "job_id", parent.ID, "task", link.Task, "error", err)
	}
}

func (s *Scheduler) finish(ctx context.Context, job Job, outcome Outcome) {
	if err := s.queue.Finish(ctx, job, outcome); err != nil {
		s.logger.Error("record job outcome", "job_id", job.ID, "status", outcome.Status, "error", err)
	}
}
