// internal/workers/loan/submit-application/models.go
package submitapplication

type Input struct {
	Principal      float64 `json:"principal"`
	TermMonths     int     `json:"termMonths"`
	DeclaredIncome float64 `json:"declaredIncome"`
	IDDocumentRef  string  `json:"idDocumentRef"`
	SalarySlipRef  string  `json:"salarySlipRef"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	CreatedAt         string `json:"createdAt"` // ISO 8601
}
