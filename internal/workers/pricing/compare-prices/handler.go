// internal/workers/pricing/compare-prices/handler.go
package compareprices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	stderrors "pricing-workers/internal/common/errors"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/pricing/resolver"
)

const (
	TaskType = "compare-prices"
)

var (
	ErrValidationFailed = errors.New("BATCH_VALIDATION_FAILED")
	ErrBatchFailed      = errors.New("BATCH_FAILED")
	ErrBatchTimeout     = errors.New("BATCH_TIMEOUT")
)

// Comparer runs one price comparison batch.
type Comparer interface {
	Compare(ctx context.Context, projectID, jobID string, names []string, zip string, forceRefresh bool) (*resolver.CompareOutput, error)
}

type Handler struct {
	config       *Config
	orchestrator Comparer
	logger       logger.Logger
}

func NewHandler(config *Config, orchestrator Comparer, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		orchestrator: orchestrator,
		logger:       log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "BATCH_FAILED"
		retries := int32(0)
		if errors.Is(err, ErrValidationFailed) {
			errorCode = "BATCH_VALIDATION_FAILED"
		} else if errors.Is(err, ErrBatchTimeout) {
			errorCode = "BATCH_TIMEOUT"
			retries = 1
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateInput(input, h.config.MaxProducts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	result, err := h.orchestrator.Compare(ctx, input.ProjectID, input.JobID,
		input.ProductNames, input.ZipCode, input.ForceRefresh)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrBatchTimeout
		}
		if stderrors.CodeOf(err) == stderrors.ErrCodeBatchValidationFailed {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}

	return &Output{Cached: result.Cached, JobID: result.JobID}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
