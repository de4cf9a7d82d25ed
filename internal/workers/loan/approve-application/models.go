// internal/workers/loan/approve-application/models.go
package approveapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID     string  `json:"applicationId"`
	ApplicationStatus string  `json:"applicationStatus"`
	MonthlyPayment    float64 `json:"monthlyPayment"`
	TotalPayment      float64 `json:"totalPayment"`
	TotalInterest     float64 `json:"totalInterest"`
	ContractRef       string  `json:"contractRef"`
	ScheduleRef       string  `json:"scheduleRef"`
}
