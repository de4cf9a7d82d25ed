// internal/workers/loan/send-decision-notification/models.go
package senddecisionnotification

const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
)

type Input struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	ApplicantEmail    string `json:"applicantEmail,omitempty"`
	ApplicantPhone    string `json:"applicantPhone,omitempty"`
	RejectReason      string `json:"rejectReason,omitempty"`
}

type Output struct {
	NotificationID     string `json:"notificationId"`
	NotificationStatus string `json:"notificationStatus"`
	SentAt             string `json:"sentAt"` // ISO 8601
}
