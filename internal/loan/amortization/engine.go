// internal/loan/amortization/engine.go

// Package amortization implements the fixed-rate payment mathematics used by
// both the processing and approval stages. It is pure: no I/O, no state.
package amortization

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	apperrors "loan-workers/internal/common/errors"
)

// Row is one entry of a payment schedule. Monetary fields are rounded to two
// decimal places at exposure; accumulation happens on the raw values so
// rounding error does not compound across the schedule.
type Row struct {
	Month            int     `json:"month"`
	Payment          float64 `json:"payment"`
	PrincipalPortion float64 `json:"principal"`
	InterestPortion  float64 `json:"interest"`
	RemainingBalance float64 `json:"remaining"`
}

// Summary carries the contract-level figures derived from a payment plan.
type Summary struct {
	MonthlyPayment float64 `json:"monthlyPayment"`
	TotalPayment   float64 `json:"totalPayment"`
	TotalInterest  float64 `json:"totalInterest"`
}

// MonthlyPayment returns the fixed monthly installment for the given
// principal, term and annual rate. A zero rate degenerates to straight
// division, which keeps the standard formula out of its division-by-zero
// corner. The returned value is unrounded.
func MonthlyPayment(principal float64, termMonths int, annualRate float64) (float64, error) {
	if err := validate(principal, termMonths, annualRate); err != nil {
		return 0, err
	}

	r := annualRate / 12
	if r == 0 {
		return principal / float64(termMonths), nil
	}
	return principal * r / (1 - math.Pow(1+r, -float64(termMonths))), nil
}

// Schedule produces the full ordered amortization schedule. Each month pays
// interest on the remaining balance first; the remainder of the installment
// retires principal. The final balance is floored at zero to absorb
// floating-point drift.
func Schedule(principal float64, termMonths int, annualRate float64) ([]Row, error) {
	payment, err := MonthlyPayment(principal, termMonths, annualRate)
	if err != nil {
		return nil, err
	}

	r := annualRate / 12
	remaining := principal
	rows := make([]Row, 0, termMonths)

	for month := 1; month <= termMonths; month++ {
		interest := remaining * r
		principalPortion := payment - interest
		remaining -= principalPortion

		rows = append(rows, Row{
			Month:            month,
			Payment:          Round2(payment),
			PrincipalPortion: Round2(principalPortion),
			InterestPortion:  Round2(interest),
			RemainingBalance: Round2(math.Max(remaining, 0)),
		})
	}

	return rows, nil
}

// Summarize computes the exposed contract figures for a loan.
func Summarize(principal float64, termMonths int, annualRate float64) (*Summary, error) {
	payment, err := MonthlyPayment(principal, termMonths, annualRate)
	if err != nil {
		return nil, err
	}

	total := payment * float64(termMonths)
	return &Summary{
		MonthlyPayment: Round2(payment),
		TotalPayment:   Round2(total),
		TotalInterest:  Round2(total - principal),
	}, nil
}

// Round2 rounds a monetary amount to two decimal places, half away from zero.
func Round2(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}

func validate(principal float64, termMonths int, annualRate float64) error {
	if principal <= 0 {
		return apperrors.NewValidationError(fmt.Sprintf("principal must be positive, got %v", principal))
	}
	if termMonths < 1 {
		return apperrors.NewValidationError(fmt.Sprintf("termMonths must be >= 1, got %d", termMonths))
	}
	if annualRate < 0 {
		return apperrors.NewValidationError(fmt.Sprintf("annualRate must be >= 0, got %v", annualRate))
	}
	return nil
}
