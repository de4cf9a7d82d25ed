// internal/loan/documents/issuer.go

// Package documents coordinates the approval artifacts. Rendering happens
// before the approval is committed, so a rendering failure leaves the
// application in its pre-approval status with no half-issued documents.
package documents

import (
	"context"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/amortization"
	"loan-workers/internal/models"
)

const (
	documentContract = "loan-contract"
	documentSchedule = "repayment-schedule"
)

// Renderer produces one stored artifact from a named document and payload.
type Renderer interface {
	Render(ctx context.Context, document string, payload interface{}) (string, error)
}

// Issuer renders the loan contract and the repayment schedule for an
// application that is about to be approved.
type Issuer struct {
	renderer Renderer
	logger   logger.Logger
}

// NewIssuer builds an issuer on the given renderer.
func NewIssuer(renderer Renderer, log logger.Logger) *Issuer {
	return &Issuer{
		renderer: renderer,
		logger:   log.WithFields(map[string]interface{}{"component": "documents"}),
	}
}

type contractPayload struct {
	ApplicationID  string  `json:"applicationId"`
	Principal      float64 `json:"principal"`
	TermMonths     int     `json:"termMonths"`
	MonthlyPayment float64 `json:"monthlyPayment"`
	TotalPayment   float64 `json:"totalPayment"`
	TotalInterest  float64 `json:"totalInterest"`
}

type schedulePayload struct {
	ApplicationID string             `json:"applicationId"`
	Rows          []amortization.Row `json:"rows"`
}

// Issue renders both artifacts and returns their references. Either both
// references come back or an error does; a schedule failure after a rendered
// contract discards the contract reference.
func (i *Issuer) Issue(ctx context.Context, app *models.LoanApplication, schedule []amortization.Row, summary *amortization.Summary) (string, string, error) {
	contractRef, err := i.renderer.Render(ctx, documentContract, contractPayload{
		ApplicationID:  app.ApplicationID,
		Principal:      app.Principal,
		TermMonths:     app.TermMonths,
		MonthlyPayment: summary.MonthlyPayment,
		TotalPayment:   summary.TotalPayment,
		TotalInterest:  summary.TotalInterest,
	})
	if err != nil {
		return "", "", err
	}

	scheduleRef, err := i.renderer.Render(ctx, documentSchedule, schedulePayload{
		ApplicationID: app.ApplicationID,
		Rows:          schedule,
	})
	if err != nil {
		i.logger.Warn("Schedule rendering failed after contract was rendered, discarding contract reference", map[string]interface{}{
			"error":          err.Error(),
			"application_id": app.ApplicationID,
			"contract_ref":   contractRef,
		})
		return "", "", err
	}

	i.logger.Info("Approval documents issued", map[string]interface{}{
		"application_id": app.ApplicationID,
		"contract_ref":   contractRef,
		"schedule_ref":   scheduleRef,
	})

	return contractRef, scheduleRef, nil
}
