// internal/pricing/resolver/orchestrator_test.go
package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-workers/internal/common/aws"
	"pricing-workers/internal/common/errors"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/models"
)

// ---------------------------------------------------------------------------
// stubs
// ---------------------------------------------------------------------------

type stubResolver struct {
	resolved []string
	panicOn  string
}

func (s *stubResolver) ResolveOne(_ context.Context, name, _ string) models.ComparisonResult {
	if name == s.panicOn {
		panic("nil map write")
	}
	s.resolved = append(s.resolved, name)
	return models.ComparisonResult{
		Query: name,
		Tier:  models.TierLiveSearch,
		Matches: map[string]models.RetailerMatch{
			"homedepot": {Product: &models.Product{ID: "p", Name: name, Price: 1}},
		},
	}
}

type memoryJobStore struct {
	jobs      map[string]*models.BatchJob
	appendErr error
	createErr error
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: map[string]*models.BatchJob{}}
}

func (s *memoryJobStore) key(projectID, jobID string) string { return projectID + "/" + jobID }

func (s *memoryJobStore) Get(_ context.Context, projectID, jobID string) (*models.BatchJob, error) {
	return s.jobs[s.key(projectID, jobID)], nil
}

// Create mirrors the repository's upsert: a finished row is reset, a
// row still in processing conflicts.
func (s *memoryJobStore) Create(_ context.Context, job *models.BatchJob) error {
	if s.createErr != nil {
		return s.createErr
	}
	if existing, ok := s.jobs[s.key(job.ProjectID, job.JobID)]; ok &&
		existing.Status == models.BatchStatusProcessing {
		return errors.NewJobPersistenceError(fmt.Errorf("job %s is already processing", job.JobID))
	}
	copied := *job
	s.jobs[s.key(job.ProjectID, job.JobID)] = &copied
	return nil
}

func (s *memoryJobStore) AppendResult(_ context.Context, projectID, jobID string, result models.ComparisonResult) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	job := s.jobs[s.key(projectID, jobID)]
	job.Results = append(job.Results, result)
	job.CompletedProducts++
	return nil
}

func (s *memoryJobStore) MarkComplete(_ context.Context, projectID, jobID string) error {
	s.jobs[s.key(projectID, jobID)].Status = models.BatchStatusComplete
	return nil
}

func (s *memoryJobStore) MarkError(_ context.Context, projectID, jobID, message string) error {
	job := s.jobs[s.key(projectID, jobID)]
	job.Status = models.BatchStatusError
	job.ErrorMessage = message
	return nil
}

type stubNotifier struct {
	events []aws.BatchCompletionEvent
	err    error
}

func (s *stubNotifier) PublishBatchCompletion(_ context.Context, event aws.BatchCompletionEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func newOrchestrator(res ProductResolver, store JobStore, notifier Notifier) *Orchestrator {
	return NewOrchestrator(res, store, notifier, "27513", logger.NewNoOpLogger())
}

// ---------------------------------------------------------------------------
// validation
// ---------------------------------------------------------------------------

func TestOrchestrator_RejectsMissingJobID(t *testing.T) {
	o := newOrchestrator(&stubResolver{}, newMemoryJobStore(), nil)
	_, err := o.Compare(context.Background(), "proj", "", []string{"2x4"}, "", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBatchValidationFailed, errors.CodeOf(err))
}

func TestOrchestrator_RejectsEmptyProductList(t *testing.T) {
	o := newOrchestrator(&stubResolver{}, newMemoryJobStore(), nil)
	_, err := o.Compare(context.Background(), "proj", "job-1", []string{"  ", ""}, "", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBatchValidationFailed, errors.CodeOf(err))
}

// ---------------------------------------------------------------------------
// happy path
// ---------------------------------------------------------------------------

func TestOrchestrator_RunsProductsSequentially(t *testing.T) {
	res := &stubResolver{}
	store := newMemoryJobStore()
	notifier := &stubNotifier{}
	o := newOrchestrator(res, store, notifier)

	out, err := o.Compare(context.Background(), "proj", "job-1",
		[]string{"2x4 lumber", " deck screws ", "drywall sheet"}, "", false)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, "job-1", out.JobID)

	assert.Equal(t, []string{"2x4 lumber", "deck screws", "drywall sheet"}, res.resolved)

	job := store.jobs["proj/job-1"]
	require.NotNil(t, job)
	assert.Equal(t, models.BatchStatusComplete, job.Status)
	assert.Equal(t, 3, job.TotalProducts)
	assert.Equal(t, 3, job.CompletedProducts)
	assert.Len(t, job.Results, 3)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, "complete", notifier.events[0].Status)
	assert.Equal(t, 3, notifier.events[0].CompletedProducts)
}

func TestOrchestrator_CompletedJobShortCircuits(t *testing.T) {
	res := &stubResolver{}
	store := newMemoryJobStore()
	store.jobs["proj/job-1"] = &models.BatchJob{
		ProjectID: "proj", JobID: "job-1", Status: models.BatchStatusComplete,
	}
	o := newOrchestrator(res, store, nil)

	out, err := o.Compare(context.Background(), "proj", "job-1", []string{"2x4"}, "", false)
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Empty(t, res.resolved, "no resolution work for a cached job")
}

func TestOrchestrator_ForceRefreshReruns(t *testing.T) {
	res := &stubResolver{}
	store := newMemoryJobStore()
	store.jobs["proj/job-1"] = &models.BatchJob{
		ProjectID: "proj", JobID: "job-1", Status: models.BatchStatusComplete,
		TotalProducts: 2, CompletedProducts: 2,
		Results: []models.ComparisonResult{{Query: "old"}, {Query: "stale"}},
	}
	o := newOrchestrator(res, store, nil)

	out, err := o.Compare(context.Background(), "proj", "job-1", []string{"2x4"}, "", true)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, []string{"2x4"}, res.resolved)

	job := store.jobs["proj/job-1"]
	assert.Equal(t, models.BatchStatusComplete, job.Status)
	assert.Equal(t, 1, job.CompletedProducts, "stale results are discarded")
	require.Len(t, job.Results, 1)
	assert.Equal(t, "2x4", job.Results[0].Query)
}

func TestOrchestrator_ErroredJobRetriesFromScratch(t *testing.T) {
	res := &stubResolver{}
	store := newMemoryJobStore()
	store.jobs["proj/job-1"] = &models.BatchJob{
		ProjectID: "proj", JobID: "job-1", Status: models.BatchStatusError,
		TotalProducts: 2, CompletedProducts: 1,
		Results:      []models.ComparisonResult{{Query: "2x4 lumber"}},
		ErrorMessage: "resolution panic",
	}
	o := newOrchestrator(res, store, nil)

	out, err := o.Compare(context.Background(), "proj", "job-1",
		[]string{"2x4 lumber", "deck screws"}, "", false)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, []string{"2x4 lumber", "deck screws"}, res.resolved)

	job := store.jobs["proj/job-1"]
	assert.Equal(t, models.BatchStatusComplete, job.Status)
	assert.Equal(t, 2, job.CompletedProducts)
	assert.Empty(t, job.ErrorMessage)
}

func TestOrchestrator_ProcessingJobConflicts(t *testing.T) {
	res := &stubResolver{}
	store := newMemoryJobStore()
	store.jobs["proj/job-1"] = &models.BatchJob{
		ProjectID: "proj", JobID: "job-1", Status: models.BatchStatusProcessing,
	}
	o := newOrchestrator(res, store, nil)

	_, err := o.Compare(context.Background(), "proj", "job-1", []string{"2x4"}, "", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeJobPersistenceFailed, errors.CodeOf(err))
	assert.Empty(t, res.resolved)
}

// ---------------------------------------------------------------------------
// failure paths
// ---------------------------------------------------------------------------

func TestOrchestrator_PanicMidBatchKeepsPartialResults(t *testing.T) {
	res := &stubResolver{panicOn: "deck screws"}
	store := newMemoryJobStore()
	notifier := &stubNotifier{}
	o := newOrchestrator(res, store, notifier)

	_, err := o.Compare(context.Background(), "proj", "job-1",
		[]string{"2x4 lumber", "deck screws", "drywall sheet"}, "", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBatchFailed, errors.CodeOf(err))

	job := store.jobs["proj/job-1"]
	assert.Equal(t, models.BatchStatusError, job.Status)
	assert.Equal(t, 1, job.CompletedProducts, "first product's result survives")
	assert.Contains(t, job.ErrorMessage, "deck screws")
	assert.NotContains(t, res.resolved, "drywall sheet", "batch stops at the failure")

	require.Len(t, notifier.events, 1)
	assert.Equal(t, "error", notifier.events[0].Status)
}

func TestOrchestrator_PersistenceFailureFailsJob(t *testing.T) {
	store := newMemoryJobStore()
	store.appendErr = assert.AnError
	o := newOrchestrator(&stubResolver{}, store, nil)

	_, err := o.Compare(context.Background(), "proj", "job-1", []string{"2x4"}, "", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBatchFailed, errors.CodeOf(err))
	assert.Equal(t, models.BatchStatusError, store.jobs["proj/job-1"].Status)
}

func TestOrchestrator_NotifierFailureDoesNotFailBatch(t *testing.T) {
	store := newMemoryJobStore()
	notifier := &stubNotifier{err: assert.AnError}
	o := newOrchestrator(&stubResolver{}, store, notifier)

	out, err := o.Compare(context.Background(), "proj", "job-1", []string{"2x4"}, "", false)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, models.BatchStatusComplete, store.jobs["proj/job-1"].Status)
}
