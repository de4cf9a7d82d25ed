// internal/workers/loan/send-decision-notification/handler.go

// Package senddecisionnotification tells the applicant what happened to
// their application, over whichever channels are enabled and reachable.
package senddecisionnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/common/metrics"
	"loan-workers/internal/loan/lifecycle"
)

const TaskType = "send-decision-notification"

// Sender is the notification transport, satisfied by notify.Service.
type Sender interface {
	EmailEnabled() bool
	SMSEnabled() bool
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, message string) error
}

type messageTemplate struct {
	subject string
	body    string
}

// Templates keyed by the decided status. The body doubles as the SMS text.
var templates = map[string]messageTemplate{
	string(lifecycle.StatusPreApproved): {
		subject: "Your loan application is pre-approved",
		body:    "Good news: application {{applicationId}} has been pre-approved. We will be in touch to finalize your contract.",
	},
	string(lifecycle.StatusReviewRequired): {
		subject: "Your loan application needs a closer look",
		body:    "Application {{applicationId}} requires a manual review of your income documents. We will contact you shortly.",
	},
	string(lifecycle.StatusApproved): {
		subject: "Your loan has been approved",
		body:    "Application {{applicationId}} is approved. Your contract and repayment schedule are ready.",
	},
	string(lifecycle.StatusRejected): {
		subject: "Your loan application decision",
		body:    "Unfortunately application {{applicationId}} was not approved. {{rejectReason}}",
	},
}

type Handler struct {
	config       *Config
	sender       Sender
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, sender Sender, log logger.Logger) *Handler {
	workerLogger := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		sender:       sender,
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

	template, exists := templates[input.ApplicationStatus]
	if !exists {
		return nil, apperrors.NewValidationError(fmt.Sprintf("no notification template for status %q", input.ApplicationStatus))
	}

	body := renderTemplate(template.body, map[string]string{
		"applicationId": input.ApplicationID,
		"rejectReason":  input.RejectReason,
	})

	sentAt := time.Now().UTC().Format(time.RFC3339)
	notificationID := uuid.New().String()

	emailSent := false
	smsSent := false

	if h.sender.EmailEnabled() && input.ApplicantEmail != "" {
		if err := h.sender.SendEmail(ctx, input.ApplicantEmail, template.subject, body); err != nil {
			return nil, err
		}
		emailSent = true
	}

	if h.sender.SMSEnabled() && input.ApplicantPhone != "" {
		if err := h.sender.SendSMS(ctx, input.ApplicantPhone, body); err != nil {
			return nil, err
		}
		smsSent = true
	}

	status := StatusDisabled
	if emailSent || smsSent {
		status = StatusSent
	}

	h.logger.Info("decision notification handled", map[string]interface{}{
		"applicationId":  input.ApplicationID,
		"status":         input.ApplicationStatus,
		"notificationId": notificationID,
		"emailSent":      emailSent,
		"smsSent":        smsSent,
	})

	return &Output{
		NotificationID:     notificationID,
		NotificationStatus: status,
		SentAt:             sentAt,
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
		"jobKey":         job.Key,
		"notificationId": output.NotificationID,
	})
}

// Execute exposes the business path for tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// renderTemplate substitutes {{key}} placeholders; unknown placeholders
// render as empty strings.
func renderTemplate(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return strings.TrimSpace(result)
}

func errorCode(err error) string {
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}
