package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue publishes jobs to a durable RabbitMQ queue. Deliveries are
// acked once the scheduler settles the job; retries are re-published
// after the countdown.
type AMQPQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
	logger   *slog.Logger

	mu sync.Mutex
}

func DialAMQP(url, queue string, prefetch int, logger *slog.Logger) (*AMQPQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	return &AMQPQueue{
		conn:     conn,
		ch:       ch,
		queue:    queue,
		prefetch: prefetch,
		logger:   logger.With("component", "amqp_queue", "queue", queue),
	}, nil
}

// ErrPoison marks a delivery that can never be decoded into a Job.
var ErrPoison = errors.New("poison message")

func encodePublishing(job Job) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode job: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         job.Task,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

func decodeDelivery(d amqp.Delivery) (Job, error) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrPoison, err)
	}
	if job.Task == "" {
		return Job{}, fmt.Errorf("%w: missing task", ErrPoison)
	}
	return job, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job Job) error {
	msg, err := encodePublishing(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg)
}

func (q *AMQPQueue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := q.Enqueue(pubCtx, job); err != nil {
			q.logger.Error("republish job", "job_id", job.ID, "task", job.Task, "error", err)
		}
	})
	return nil
}

func (q *AMQPQueue) Consume(ctx context.Context, handle Handler) error {
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			job, err := decodeDelivery(d)
			if err != nil {
				q.logger.Error("dropping poison message", "message_id", d.MessageId, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			delivery := d
			handle(ctx, job, func() {
				if err := delivery.Ack(false); err != nil {
					q.logger.Error("ack delivery", "job_id", job.ID, "error", err)
				}
			})
		}
	}
}

func (q *AMQPQueue) Finish(ctx context.Context, job Job, outcome Outcome) error {
	q.logger.Debug("job settled", "job_id", job.ID, "task", job.Task, "status", outcome.Status)
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
