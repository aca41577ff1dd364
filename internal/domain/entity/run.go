package entity

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	StatusReceived          RunStatus = "RECEIVED"
	StatusProcessing        RunStatus = "PROCESSING"
	StatusPublishedAndAcked RunStatus = "PUBLISHED_AND_ACKED"
	StatusFailedUnacked     RunStatus = "FAILED_UNACKED"
)

// Run records one message's trip through a stage.
type Run struct {
	ID           uuid.UUID `gorm:"primaryKey;type:uuid"`
	Stage        Stage     `gorm:"not null;type:text;index:idx_runs_stage_path"`
	MessageKey   string    `gorm:"not null"`
	SourceBucket string
	SourcePath   string
	DestBucket   string
	DestPath     string    `gorm:"index:idx_runs_stage_path"`
	Status       RunStatus `gorm:"not null;type:text"`
	Attempt      int
	Objects      int
	Skipped      int
	PublishedID  string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Run) TableName() string {
	return "pipeline_runs"
}

func NewRun(job Job, attempt int) *Run {
	return &Run{
		ID:           uuid.New(),
		Stage:        job.Stage,
		MessageKey:   job.Key,
		SourceBucket: job.SourceBucket,
		SourcePath:   job.SourcePath,
		DestBucket:   job.DestBucket,
		DestPath:     job.DestPath,
		Status:       StatusReceived,
		Attempt:      attempt,
	}
}
