// internal/workers/loan/query-application/models.go
package queryapplication

import "loan-workers/internal/models"

const (
	OperationGet          = "get"
	OperationList         = "list"
	OperationVerifyIncome = "verify-income"
)

type Input struct {
	Operation     string `json:"operation"`
	ApplicationID string `json:"applicationId,omitempty"`
}

type Output struct {
	Application  *models.LoanApplication          `json:"application,omitempty"`
	Applications []models.LoanApplication         `json:"applications,omitempty"`
	Count        int                              `json:"count"`
	Verification *models.IncomeVerificationDetail `json:"verification,omitempty"`
}
