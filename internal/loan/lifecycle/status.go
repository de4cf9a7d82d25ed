// internal/loan/lifecycle/status.go
package lifecycle

import "loan-workers/internal/loan/decision"

// Status is the workflow position of a loan application.
type Status string

const (
	StatusSubmitted      Status = "Submitted"
	StatusPreApproved    Status = "Pre-approved"
	StatusReviewRequired Status = "Review-required"
	StatusApproved       Status = "Approved"
	StatusRejected       Status = "Rejected"
)

// Command names, used in guard failures and audit events.
const (
	CommandSubmit  = "submit"
	CommandProcess = "process"
	CommandApprove = "approve"
	CommandReject  = "reject"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a member of the finite status set.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusPreApproved, StatusReviewRequired, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Transition table. A command is legal only when the current status is a
// listed source; everything else fails without mutating state.
var (
	processSources = []Status{StatusSubmitted}
	approveSources = []Status{StatusPreApproved, StatusReviewRequired}
	rejectSources  = []Status{StatusSubmitted, StatusPreApproved, StatusReviewRequired}
)

// ProcessSources returns the legal source statuses for the process command.
func ProcessSources() []Status { return processSources }

// ApproveSources returns the legal source statuses for the approve command.
func ApproveSources() []Status { return approveSources }

// RejectSources returns the legal source statuses for the reject command.
func RejectSources() []Status { return rejectSources }

// CanProcess reports whether the process command is legal from s.
func CanProcess(s Status) bool { return contains(processSources, s) }

// CanApprove reports whether the approve command is legal from s.
func CanApprove(s Status) bool { return contains(approveSources, s) }

// CanReject reports whether the reject command is legal from s.
func CanReject(s Status) bool { return contains(rejectSources, s) }

// StatusFromClassification maps a credit decision onto the status the process
// command transitions to.
func StatusFromClassification(c decision.Classification) Status {
	switch c {
	case decision.PreApproved:
		return StatusPreApproved
	case decision.ReviewRequired:
		return StatusReviewRequired
	default:
		return StatusRejected
	}
}

func contains(set []Status, s Status) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
