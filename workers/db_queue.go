package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexbalandi/chatwoot-dify/models"

	"github.com/jinzhu/gorm"
)

// DefaultLease is how long a claimed job may stay "processing" before it
// is handed out again.
const DefaultLease = 10 * time.Minute

// DBQueue stores jobs in the jobs table and polls for rows whose
// ScheduledAt <= now.
type DBQueue struct {
	db           *gorm.DB
	pollInterval time.Duration
	lease        time.Duration
	batch        int
	now          func() time.Time
	logger       *slog.Logger
}

type jobLinks struct {
	OnSuccess *Link `json:"on_success,omitempty"`
	OnError   *Link `json:"on_error,omitempty"`
}

// NewDBQueue returns a polling queue. lease must exceed the longest task
// timeout, or a slow job may run twice.
func NewDBQueue(db *gorm.DB, pollInterval, lease time.Duration, batch int, logger *slog.Logger) *DBQueue {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	if batch <= 0 {
		batch = 50
	}
	return &DBQueue{
		db:           db,
		pollInterval: pollInterval,
		lease:        lease,
		batch:        batch,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With("component", "db_queue"),
	}
}

func (q *DBQueue) Enqueue(ctx context.Context, job Job) error {
	links, err := json.Marshal(jobLinks{OnSuccess: job.OnSuccess, OnError: job.OnError})
	if err != nil {
		return fmt.Errorf("encode links: %w", err)
	}
	now := q.now()
	row := models.Job{
		ID:          job.ID,
		Task:        job.Task,
		Payload:     string(job.Payload),
		Links:       string(links),
		Status:      models.JOB_STATUS_PENDING,
		Attempt:     job.Attempt,
		ScheduledAt: &now,
	}
	if err := q.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Retry puts the job back to pending with a later ScheduledAt.
func (q *DBQueue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	at := q.now().Add(delay)
	res := q.db.Model(&models.Job{}).Where("id = ?", job.ID).Updates(map[string]any{
		"status":       models.JOB_STATUS_PENDING,
		"attempt":      job.Attempt,
		"scheduled_at": &at,
		"last_error":   job.LastError,
	})
	if res.Error != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reschedule job %s: row missing", job.ID)
	}
	return nil
}

func (q *DBQueue) Finish(ctx context.Context, job Job, outcome Outcome) error {
	now := q.now()
	updates := map[string]any{
		"status":       outcome.Status,
		"attempt":      job.Attempt,
		"processed_at": &now,
		"result":       string(outcome.Result),
	}
	if outcome.Err != nil {
		updates["last_error"] = outcome.Err.Error()
	}
	return q.db.Model(&models.Job{}).Where("id = ?", job.ID).Updates(updates).Error
}

func (q *DBQueue) Consume(ctx context.Context, handle Handler) error {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			q.dispatchDue(ctx, handle)
		}
	}
}

// requeueStale returns jobs claimed by a worker that never settled them.
func (q *DBQueue) requeueStale() {
	now := q.now()
	res := q.db.Model(&models.Job{}).
		Where("status = ?", models.JOB_STATUS_PROCESSING).
		Where("claimed_at IS NULL OR claimed_at <= ?", now.Add(-q.lease)).
		Updates(map[string]any{
			"status":       models.JOB_STATUS_PENDING,
			"scheduled_at": &now,
		})
	if res.Error != nil {
		q.logger.Error("requeue stale jobs", "error", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		q.logger.Warn("requeued jobs with expired lease", "count", res.RowsAffected, "lease", q.lease)
	}
}

func (q *DBQueue) dispatchDue(ctx context.Context, handle Handler) {
	q.requeueStale()

	var rows []models.Job
	if err := q.db.
		Where("status = ?", models.JOB_STATUS_PENDING).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", q.now()).
		Order("scheduled_at asc, id asc").
		Limit(q.batch).
		Find(&rows).Error; err != nil {
		q.logger.Error("query due jobs", "error", err)
		return
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		// optimistic lock: only the instance that flips the status runs the job
		claimedAt := q.now()
		res := q.db.Model(&models.Job{}).
			Where("id = ? AND status = ?", row.ID, models.JOB_STATUS_PENDING).
			Updates(map[string]any{
				"status":     models.JOB_STATUS_PROCESSING,
				"claimed_at": &claimedAt,
			})
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}

		job, err := rowToJob(row)
		if err != nil {
			q.logger.Error("decode job row", "job_id", row.ID, "error", err)
			_ = q.Finish(ctx, Job{ID: row.ID, Attempt: row.Attempt}, Outcome{Status: models.JOB_STATUS_FAILED, Err: err})
			continue
		}
		handle(ctx, job, func() {})
	}
}

func rowToJob(row models.Job) (Job, error) {
	job := Job{
		ID:        row.ID,
		Task:      row.Task,
		Payload:   json.RawMessage(row.Payload),
		Attempt:   row.Attempt,
		LastError: row.LastError,
	}
	if row.Links != "" {
		var links jobLinks
		if err := json.Unmarshal([]byte(row.Links), &links); err != nil {
			return Job{}, fmt.Errorf("decode links: %w", err)
		}
		job.OnSuccess = links.OnSuccess
		job.OnError = links.OnError
	}
	return job, nil
}
