// internal/models/job.go
package models

import "time"

// BatchJobStatus is the lifecycle state of one comparison batch.
type BatchJobStatus string

const (
	BatchStatusProcessing BatchJobStatus = "processing"
	BatchStatusComplete   BatchJobStatus = "complete"
	BatchStatusError      BatchJobStatus = "error"
)

// BatchJob is the persisted record for one estimation run. Observers poll
// it for live progress; the worker's return value only acknowledges.
type BatchJob struct {
	ProjectID         string             `json:"projectId"`
	JobID             string             `json:"jobId"`
	Status            BatchJobStatus     `json:"status"`
	TotalProducts     int                `json:"totalProducts"`
	CompletedProducts int                `json:"completedProducts"`
	Results           []ComparisonResult `json:"results"`
	ErrorMessage      string             `json:"errorMessage,omitempty"`
	StartedAt         time.Time          `json:"startedAt"`
	CompletedAt       *time.Time         `json:"completedAt,omitempty"`
}
