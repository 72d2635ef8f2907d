// internal/pricing/resolver/orchestrator.go
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pricing-workers/internal/common/aws"
	"pricing-workers/internal/common/errors"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/models"
)

// ProductResolver resolves one product name end to end.
type ProductResolver interface {
	ResolveOne(ctx context.Context, name, zip string) models.ComparisonResult
}

// JobStore persists batch job lifecycle state.
type JobStore interface {
	Get(ctx context.Context, projectID, jobID string) (*models.BatchJob, error)
	Create(ctx context.Context, job *models.BatchJob) error
	AppendResult(ctx context.Context, projectID, jobID string, result models.ComparisonResult) error
	MarkComplete(ctx context.Context, projectID, jobID string) error
	MarkError(ctx context.Context, projectID, jobID, message string) error
}

// Notifier publishes batch completion events. nil disables notification.
type Notifier interface {
	PublishBatchCompletion(ctx context.Context, event aws.BatchCompletionEvent) error
}

// CompareOutput acknowledges a batch request. Results are read from the
// job record, not from the worker's return value.
type CompareOutput struct {
	Cached bool   `json:"cached"`
	JobID  string `json:"jobId"`
}

// Orchestrator runs batches: products strictly in order, one at a time,
// progress persisted after every product so observers can poll the job
// row while the batch is still running.
type Orchestrator struct {
	resolver   ProductResolver
	jobs       JobStore
	notifier   Notifier
	defaultZIP string
	logger     logger.Logger
}

func NewOrchestrator(res ProductResolver, jobs JobStore, notifier Notifier, defaultZIP string, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:   res,
		jobs:       jobs,
		notifier:   notifier,
		defaultZIP: defaultZIP,
		logger:     log,
	}
}

// Compare runs one batch. A previously completed job with the same id
// short-circuits unless forceRefresh is set.
func (o *Orchestrator) Compare(ctx context.Context, projectID, jobID string, names []string, zip string, forceRefresh bool) (*CompareOutput, error) {
	cleaned := cleanNames(names)
	if jobID == "" {
		return nil, errors.NewBatchValidationError("jobId is required")
	}
	if len(cleaned) == 0 {
		return nil, errors.NewBatchValidationError("at least one product name is required")
	}
	if zip == "" {
		zip = o.defaultZIP
	}

	existing, err := o.jobs.Get(ctx, projectID, jobID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == models.BatchStatusComplete && !forceRefresh {
		o.logger.Info("batch already complete, returning cached job", map[string]interface{}{
			"project_id": projectID,
			"job_id":     jobID,
		})
		return &CompareOutput{Cached: true, JobID: jobID}, nil
	}

	job := &models.BatchJob{
		ProjectID:     projectID,
		JobID:         jobID,
		Status:        models.BatchStatusProcessing,
		TotalProducts: len(cleaned),
		StartedAt:     time.Now().UTC(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	completed := 0
	for _, name := range cleaned {
		result, err := o.resolveSafely(ctx, name, zip)
		if err == nil {
			err = o.jobs.AppendResult(ctx, projectID, jobID, result)
		}
		if err != nil {
			o.failJob(ctx, projectID, jobID, completed, err)
			return nil, errors.NewBatchFailedError(err)
		}
		completed++
	}

	if err := o.jobs.MarkComplete(ctx, projectID, jobID); err != nil {
		return nil, err
	}
	o.notifyCompletion(ctx, projectID, jobID, models.BatchStatusComplete, len(cleaned), completed)

	o.logger.Info("batch complete", map[string]interface{}{
		"project_id": projectID,
		"job_id":     jobID,
		"products":   completed,
	})
	return &CompareOutput{Cached: false, JobID: jobID}, nil
}

// resolveSafely shields the batch from a panicking resolution; the
// panic becomes an error that fails the job with its partial results
// intact.
func (o *Orchestrator) resolveSafely(ctx context.Context, name, zip string) (result models.ComparisonResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolution panic on %q: %v", name, r)
		}
	}()
	result = o.resolver.ResolveOne(ctx, name, zip)
	return result, nil
}

func (o *Orchestrator) failJob(ctx context.Context, projectID, jobID string, completed int, cause error) {
	o.logger.Error("batch failed mid-run", map[string]interface{}{
		"project_id": projectID,
		"job_id":     jobID,
		"completed":  completed,
		"error":      cause.Error(),
	})
	if err := o.jobs.MarkError(ctx, projectID, jobID, cause.Error()); err != nil {
		o.logger.Error("failed to mark job as errored", map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		})
	}
	o.notifyCompletion(ctx, projectID, jobID, models.BatchStatusError, 0, completed)
}

func (o *Orchestrator) notifyCompletion(ctx context.Context, projectID, jobID string, status models.BatchJobStatus, total, completed int) {
	if o.notifier == nil {
		return
	}
	event := aws.BatchCompletionEvent{
		ProjectID:         projectID,
		JobID:             jobID,
		Status:            string(status),
		TotalProducts:     total,
		CompletedProducts: completed,
		CompletedAt:       time.Now().UTC(),
	}
	if err := o.notifier.PublishBatchCompletion(ctx, event); err != nil {
		o.logger.Warn("batch completion event publish failed", map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		})
	}
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
