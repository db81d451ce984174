package models

import "time"

/************************************************
/**** MARK: JOB STATUS ****/
/************************************************/
const JOB_STATUS_PENDING = "pending"
const JOB_STATUS_PROCESSING = "processing"
const JOB_STATUS_DONE = "done"
const JOB_STATUS_FAILED = "failed"

// Job is a queued background task persisted by the database queue driver.
// It enters as "pending" and is picked up once ScheduledAt <= now.
// A "processing" row whose ClaimedAt is older than the queue lease belongs
// to a worker that died and is put back to "pending".
type Job struct {
	ID          string     `gorm:"primary_key;type:varchar(36)" json:"id"`
	Task        string     `gorm:"not null;index" json:"task"`
	Payload     string     `gorm:"type:text" json:"payload"`
	Links       string     `gorm:"type:text" json:"links"`
	Status      string     `gorm:"not null;default:'pending';index" json:"status"`
	Attempt     int        `gorm:"not null" json:"attempt"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at"`
	ClaimedAt   *time.Time `gorm:"index" json:"claimed_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	Result      string     `gorm:"type:text" json:"result"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}
