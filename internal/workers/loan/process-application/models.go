// internal/workers/loan/process-application/models.go
package processapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID     string   `json:"applicationId"`
	ApplicationStatus string   `json:"applicationStatus"`
	DeclaredIncome    float64  `json:"declaredIncome"`
	ExtractedIncome   *float64 `json:"extractedIncome,omitempty"`
	ResolvedIncome    float64  `json:"resolvedIncome"`
	MonthlyPayment    float64  `json:"monthlyPayment"`
	IncomeMatches     bool     `json:"incomeMatches"`
	IncomeVerified    bool     `json:"incomeVerified"`
}
