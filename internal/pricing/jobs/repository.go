// internal/pricing/jobs/repository.go
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pricing-workers/internal/common/errors"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/common/metrics"
	"pricing-workers/internal/models"
)

// Repository persists batch job state in Postgres. Each job row carries
// its accumulated comparison results as JSONB so a partially failed
// batch still leaves its completed products readable.
type Repository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewRepository(db *sql.DB, log logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

// Get returns the job, or nil when no row exists.
func (r *Repository) Get(ctx context.Context, projectID, jobID string) (*models.BatchJob, error) {
	const query = `
		SELECT project_id, job_id, status, total_products, completed_products,
		       results, error_message, started_at, completed_at
		FROM batch_jobs
		WHERE project_id = $1 AND job_id = $2`

	row := r.db.QueryRowContext(ctx, query, projectID, jobID)

	var (
		job       models.BatchJob
		rawResult []byte
		errMsg    sql.NullString
		completed sql.NullTime
	)
	err := row.Scan(&job.ProjectID, &job.JobID, &job.Status, &job.TotalProducts,
		&job.CompletedProducts, &rawResult, &errMsg, &job.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewJobPersistenceError(fmt.Errorf("read job %s: %v", jobID, err))
	}

	if len(rawResult) > 0 {
		if err := json.Unmarshal(rawResult, &job.Results); err != nil {
			return nil, errors.NewJobPersistenceError(fmt.Errorf("decode job %s results: %v", jobID, err))
		}
	}
	job.ErrorMessage = errMsg.String
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// Create inserts a fresh processing row. An existing complete or error
// row for the same (project_id, job_id) is reset in place so a retried
// or force-refreshed job reprocesses from scratch; a row still in
// processing is left untouched and reported as a conflict.
func (r *Repository) Create(ctx context.Context, job *models.BatchJob) error {
	const query = `
		INSERT INTO batch_jobs
			(project_id, job_id, status, total_products, completed_products, results, started_at)
		VALUES ($1, $2, $3, $4, 0, '[]'::jsonb, $5)
		ON CONFLICT (project_id, job_id) DO UPDATE
		SET status = EXCLUDED.status,
		    total_products = EXCLUDED.total_products,
		    completed_products = 0,
		    results = '[]'::jsonb,
		    error_message = NULL,
		    started_at = EXCLUDED.started_at,
		    completed_at = NULL
		WHERE batch_jobs.status <> $3`

	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, query,
		job.ProjectID, job.JobID, models.BatchStatusProcessing, job.TotalProducts, job.StartedAt)
	if err != nil {
		return errors.NewJobPersistenceError(fmt.Errorf("create job %s: %v", job.JobID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewJobPersistenceError(fmt.Errorf("create job %s: %v", job.JobID, err))
	}
	if n == 0 {
		return errors.NewJobPersistenceError(fmt.Errorf("job %s is already processing", job.JobID))
	}
	metrics.BatchJobsTotal.WithLabelValues(string(models.BatchStatusProcessing)).Inc()
	return nil
}

// AppendResult adds one product's comparison to the job and bumps the
// completed counter in a single statement.
func (r *Repository) AppendResult(ctx context.Context, projectID, jobID string, result models.ComparisonResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return errors.NewJobPersistenceError(fmt.Errorf("encode result for job %s: %v", jobID, err))
	}

	const query = `
		UPDATE batch_jobs
		SET results = results || $3::jsonb,
		    completed_products = completed_products + 1
		WHERE project_id = $1 AND job_id = $2`

	res, err := r.db.ExecContext(ctx, query, projectID, jobID, string(raw))
	if err != nil {
		return errors.NewJobPersistenceError(fmt.Errorf("append result to job %s: %v", jobID, err))
	}
	return r.requireRow(res, jobID)
}

// MarkComplete finalizes a fully processed job.
func (r *Repository) MarkComplete(ctx context.Context, projectID, jobID string) error {
	const query = `
		UPDATE batch_jobs
		SET status = $3, completed_at = $4
		WHERE project_id = $1 AND job_id = $2`

	res, err := r.db.ExecContext(ctx, query, projectID, jobID,
		models.BatchStatusComplete, time.Now().UTC())
	if err != nil {
		return errors.NewJobPersistenceError(fmt.Errorf("complete job %s: %v", jobID, err))
	}
	metrics.BatchJobsTotal.WithLabelValues(string(models.BatchStatusComplete)).Inc()
	return r.requireRow(res, jobID)
}

// MarkError finalizes a failed job, keeping whatever results were
// appended before the failure.
func (r *Repository) MarkError(ctx context.Context, projectID, jobID, message string) error {
	const query = `
		UPDATE batch_jobs
		SET status = $3, error_message = $4, completed_at = $5
		WHERE project_id = $1 AND job_id = $2`

	res, err := r.db.ExecContext(ctx, query, projectID, jobID,
		models.BatchStatusError, message, time.Now().UTC())
	if err != nil {
		return errors.NewJobPersistenceError(fmt.Errorf("fail job %s: %v", jobID, err))
	}
	metrics.BatchJobsTotal.WithLabelValues(string(models.BatchStatusError)).Inc()
	return r.requireRow(res, jobID)
}

func (r *Repository) requireRow(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewJobPersistenceError(fmt.Errorf("job %s: %v", jobID, err))
	}
	if n == 0 {
		return errors.NewJobPersistenceError(fmt.Errorf("job %s not found", jobID))
	}
	return nil
}
