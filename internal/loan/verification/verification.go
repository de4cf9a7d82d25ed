// internal/loan/verification/verification.go

// Package verification reconciles declared income against the value the OCR
// collaborator extracted from the salary slip. It never performs extraction
// itself and degrades gracefully when no extracted value is available.
package verification

import "math"

// DefaultTolerance is the relative deviation between extracted and declared
// income below which the two figures are considered a match.
const DefaultTolerance = 0.20

// Result is the outcome of an income reconciliation.
type Result struct {
	// ResolvedIncome is the income figure downstream policy should use:
	// the extracted value when one exists, otherwise the declared one.
	ResolvedIncome float64 `json:"resolvedIncome"`
	// Matches is true when the extracted income deviates from the declared
	// income by less than the tolerance. Always false without an extracted
	// value or with a non-positive declared income.
	Matches bool `json:"incomeMatches"`
	// Verified is true only when an extracted value was actually compared.
	Verified bool `json:"incomeVerified"`
}

// Reconcile compares declaredIncome with the optional extracted value using
// DefaultTolerance.
func Reconcile(declaredIncome float64, extractedIncome *float64) Result {
	return ReconcileWithTolerance(declaredIncome, extractedIncome, DefaultTolerance)
}

// ReconcileWithTolerance compares declaredIncome with the optional extracted
// value. A nil extractedIncome means the collaborator had nothing to offer;
// the declared income is used unverified rather than failing the pipeline.
func ReconcileWithTolerance(declaredIncome float64, extractedIncome *float64, tolerance float64) Result {
	if extractedIncome == nil {
		return Result{
			ResolvedIncome: declaredIncome,
			Matches:        false,
			Verified:       false,
		}
	}

	matches := false
	if declaredIncome > 0 {
		deviation := math.Abs(*extractedIncome-declaredIncome) / declaredIncome
		matches = deviation < tolerance
	}

	return Result{
		ResolvedIncome: *extractedIncome,
		Matches:        matches,
		Verified:       true,
	}
}
