// internal/workers/loan/approve-application/handler.go
package approveapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/common/metrics"
	"loan-workers/internal/loan/lifecycle"
)

const TaskType = "approve-application"

type Handler struct {
	config       *Config
	machine      *lifecycle.Machine
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, machine *lifecycle.Machine, log logger.Logger) *Handler {
	workerLogger := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		machine:      machine,
		logger:       workerLogger,
		errorHandler: apperrors.NewErrorHandler(workerLogger),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.ErrCodeValidationFailed)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode(err)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicationID == "" {
		return nil, apperrors.NewValidationError("applicationId is required")
	}

	result, err := h.machine.Approve(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues(lifecycle.CommandApprove, string(result.Status)).Inc()

	return &Output{
		ApplicationID:     result.ApplicationID,
		ApplicationStatus: string(result.Status),
		MonthlyPayment:    result.MonthlyPayment,
		TotalPayment:      result.TotalPayment,
		TotalInterest:     result.TotalInterest,
		ContractRef:       result.ContractRef,
		ScheduleRef:       result.ScheduleRef,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err = cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey":        job.Key,
		"applicationId": output.ApplicationID,
		"contractRef":   output.ContractRef,
	})
}

// Execute exposes the business path for tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func errorCode(err error) string {
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}
