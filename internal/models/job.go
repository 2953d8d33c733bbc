package models

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// MessageJob is an inbound chat message accepted for asynchronous handling.
type MessageJob struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID   string `gorm:"type:varchar(64);index;not null;uniqueIndex:uniq_job_user_idempo,priority:1"`
	UserName string `gorm:"type:varchar(128)"`
	Text     string `gorm:"type:text;not null"`

	// Channel message id; redeliveries of the same message map to one job.
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_job_user_idempo,priority:2" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	Response *string `gorm:"type:text"`
	State    string  `gorm:"type:varchar(16)"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MessageJob) TableName() string { return "message_jobs" }
