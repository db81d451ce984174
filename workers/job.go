package workers

import (
	"context"
	"encoding/json"
	"time"
)

// Link names the task that runs after a job settles. Args are passed
// through untouched to the linked task.
type Link struct {
	Task string          `json:"task"`
	Args json.RawMessage `json:"args,omitempty"`
}

type Job struct {
	ID        string          `json:"id"`
	Task      string          `json:"task"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	OnSuccess *Link           `json:"on_success,omitempty"`
	OnError   *Link           `json:"on_error,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Decision is a task's verdict on a failed attempt.
type Decision int

const (
	DecisionFail Decision = iota
	DecisionRetry
)

func (d Decision) String() string {
	if d == DecisionRetry {
		return "retry"
	}
	return "fail"
}

// SuccessPayload is what an on_success task receives.
type SuccessPayload struct {
	ParentID string          `json:"parent_id"`
	Result   json.RawMessage `json:"result"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// FailurePayload is what an on_error task receives.
type FailurePayload struct {
	ParentID string          `json:"parent_id"`
	Task     string          `json:"task"`
	Request  json.RawMessage `json:"request"`
	Error    string          `json:"error"`
	Attempts int             `json:"attempts"`
	Args     json.RawMessage `json:"args,omitempty"`
}

type Outcome struct {
	Status string
	Result json.RawMessage
	Err    error
}

// Handler receives a dequeued job. done must be called once the job has settled.
type Handler func(ctx context.Context, job Job, done func())

// Queue is a job transport. Retry re-delivers the job after delay without
// blocking the caller.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job, delay time.Duration) error
	Consume(ctx context.Context, handle Handler) error
	Finish(ctx context.Context, job Job, outcome Outcome) error
}
