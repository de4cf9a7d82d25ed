// internal/workers/loan/reject-application/models.go
package rejectapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
	Reason        string `json:"reason"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	Reason            string `json:"reason,omitempty"`
}
