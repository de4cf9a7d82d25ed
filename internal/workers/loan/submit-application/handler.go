// internal/workers/loan/submit-application/handler.go
package submitapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/xeipuuv/gojsonschema"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/common/metrics"
	"loan-workers/internal/loan/lifecycle"
)

const TaskType = "submit-application"

// inputSchema rejects malformed submissions before the state machine sees
// them, so every validation failure carries the offending constraint.
var inputSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"principal", "termMonths", "declaredIncome", "idDocumentRef", "salarySlipRef"},
	"properties": map[string]interface{}{
		"principal":      map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
		"termMonths":     map[string]interface{}{"type": "integer", "minimum": 1},
		"declaredIncome": map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
		"idDocumentRef":  map[string]interface{}{"type": "string", "minLength": 1},
		"salarySlipRef":  map[string]interface{}{"type": "string", "minLength": 1},
	},
}

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
	if err := validateInput(input); err != nil {
		return nil, err
	}

	app, err := h.machine.Submit(ctx, lifecycle.SubmitInput{
		Principal:      input.Principal,
		TermMonths:     input.TermMonths,
		DeclaredIncome: input.DeclaredIncome,
		IDDocumentRef:  input.IDDocumentRef,
		SalarySlipRef:  input.SalarySlipRef,
	})
	if err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues(lifecycle.CommandSubmit, app.Status).Inc()

	return &Output{
		ApplicationID:     app.ApplicationID,
		ApplicationStatus: app.Status,
		CreatedAt:         app.CreatedAt.Format(time.RFC3339),
	}, nil
}

func validateInput(input *Input) error {
	schemaLoader := gojsonschema.NewGoLoader(inputSchema)
	documentLoader := gojsonschema.NewGoLoader(input)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("schema validation error: %v", err))
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return apperrors.NewValidationError(fmt.Sprintf("invalid submission: %v", errs))
	}

	return nil
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
