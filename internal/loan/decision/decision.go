// internal/loan/decision/decision.go

// Package decision classifies a loan application from its income figures and
// amortized monthly payment. This is the single place the affordability
// policy lives; callers must not re-derive the thresholds.
package decision

// Classification is the credit decision for an application.
type Classification string

const (
	PreApproved    Classification = "Pre-approved"
	ReviewRequired Classification = "Review-required"
	Rejected       Classification = "Rejected"
)

// DefaultAffordabilityMultiple requires income of at least this many times
// the monthly payment, on both the declared and the resolved figure.
const DefaultAffordabilityMultiple = 2.0

// Input carries the three figures the policy is a pure function of.
type Input struct {
	DeclaredIncome float64
	ResolvedIncome float64
	MonthlyPayment float64
	IncomeMatches  bool
}

// Classify applies the debt-to-income affordability rule with the default
// multiple. Affordability must hold on both income figures; a mismatch with
// affordability intact routes to manual review instead of rejection.
func Classify(in Input) Classification {
	return ClassifyWithMultiple(in, DefaultAffordabilityMultiple)
}

// ClassifyWithMultiple is Classify with an explicit affordability multiple.
func ClassifyWithMultiple(in Input, multiple float64) Classification {
	threshold := multiple * in.MonthlyPayment
	canAfford := in.ResolvedIncome >= threshold && in.DeclaredIncome >= threshold

	switch {
	case canAfford && in.IncomeMatches:
		return PreApproved
	case canAfford:
		return ReviewRequired
	default:
		return Rejected
	}
}
