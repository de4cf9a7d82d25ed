// internal/models/application.go
package models

import "time"

// LoanApplication is the central record of the origination pipeline. Status is
// the single source of truth for workflow position and is mutated only through
// the lifecycle state machine.
type LoanApplication struct {
	ApplicationID   string     `json:"applicationId"`
	Principal       float64    `json:"principal"`
	TermMonths      int        `json:"termMonths"`
	DeclaredIncome  float64    `json:"declaredIncome"`
	ExtractedIncome *float64   `json:"extractedIncome,omitempty"`
	Status          string     `json:"status"`
	IDDocumentRef   string     `json:"idDocumentRef,omitempty"`
	SalarySlipRef   string     `json:"salarySlipRef,omitempty"`
	ContractRef     string     `json:"contractRef,omitempty"`
	ScheduleRef     string     `json:"scheduleRef,omitempty"`
	RejectReason    string     `json:"rejectReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
}

// IncomeVerificationDetail is the read model behind income verification
// queries: what was declared, what the OCR collaborator extracted, and the
// affordability figures derived from the amortized payment.
type IncomeVerificationDetail struct {
	ApplicationID     string   `json:"applicationId"`
	DeclaredIncome    float64  `json:"declaredIncome"`
	ExtractedIncome   *float64 `json:"extractedIncome,omitempty"`
	MonthlyPayment    float64  `json:"monthlyPayment"`
	IncomeVerified    bool     `json:"incomeVerified"`
	DebtToIncomeRatio *float64 `json:"debtToIncomeRatio,omitempty"` // percent
}
