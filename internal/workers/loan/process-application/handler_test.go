// internal/workers/loan/process-application/handler_test.go
package processapplication

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/lifecycle"
	"loan-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type memStore struct {
	mu   sync.Mutex
	apps map[string]*models.LoanApplication
}

func newMemStore() *memStore {
	return &memStore{apps: make(map[string]*models.LoanApplication)}
}

func (s *memStore) Create(_ context.Context, app *models.LoanApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *app
	s.apps[app.ApplicationID] = &copied
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, apperrors.NewApplicationNotFoundError(id)
	}
	copied := *app
	return &copied, nil
}

func (s *memStore) List(context.Context) ([]models.LoanApplication, error) { return nil, nil }

func (s *memStore) CompleteProcessing(_ context.Context, id string, extractedIncome *float64, to lifecycle.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return apperrors.NewApplicationNotFoundError(id)
	}
	if lifecycle.Status(app.Status) != lifecycle.StatusSubmitted {
		return apperrors.NewIllegalTransitionError(id, lifecycle.CommandProcess, app.Status)
	}
	app.Status = string(to)
	app.ExtractedIncome = extractedIncome
	return nil
}

func (s *memStore) Approve(context.Context, string, string, string) error { return nil }

func (s *memStore) Reject(context.Context, string, string) error { return nil }

type fakeOCR struct {
	available bool
	income    *float64
}

func (f *fakeOCR) Available() bool { return f.available }

func (f *fakeOCR) ExtractIncome(context.Context, string) (*float64, error) {
	return f.income, nil
}

func floatPtr(v float64) *float64 { return &v }

// newTestHandler wires a machine with a zero interest rate so the monthly
// payment is exactly principal/termMonths.
func newTestHandler(t *testing.T, ocr lifecycle.IncomeExtractor) (*Handler, *memStore, *lifecycle.Machine) {
	t.Helper()
	store := newMemStore()
	cfg := lifecycle.Config{AnnualRate: 0, IncomeTolerance: 0.20, AffordabilityMultiple: 2.0}
	machine := lifecycle.NewMachine(store, ocr, nil, nil, cfg, logger.NewTestLogger(t))
	return NewHandler(LoadConfig(), machine, logger.NewTestLogger(t)), store, machine
}

func submitTestApplication(t *testing.T, machine *lifecycle.Machine, principal float64, termMonths int, declaredIncome float64) string {
	t.Helper()
	app, err := machine.Submit(context.Background(), lifecycle.SubmitInput{
		Principal:      principal,
		TermMonths:     termMonths,
		DeclaredIncome: declaredIncome,
		IDDocumentRef:  "doc/id-1",
		SalarySlipRef:  "doc/slip-1",
	})
	require.NoError(t, err)
	return app.ApplicationID
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_PreApproves(t *testing.T) {
	handler, store, machine := newTestHandler(t, &fakeOCR{available: true, income: floatPtr(4500)})
	id := submitTestApplication(t, machine, 18000, 12, 4000)

	output, err := handler.Execute(context.Background(), &Input{ApplicationID: id})
	require.NoError(t, err)

	assert.Equal(t, "Pre-approved", output.ApplicationStatus)
	assert.Equal(t, 1500.0, output.MonthlyPayment)
	assert.True(t, output.IncomeMatches)
	assert.True(t, output.IncomeVerified)
	require.NotNil(t, output.ExtractedIncome)
	assert.Equal(t, 4500.0, *output.ExtractedIncome)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Pre-approved", stored.Status)
}

func TestHandler_Execute_Rejects(t *testing.T) {
	handler, _, machine := newTestHandler(t, &fakeOCR{available: true, income: floatPtr(2000)})
	id := submitTestApplication(t, machine, 18000, 12, 4000)

	output, err := handler.Execute(context.Background(), &Input{ApplicationID: id})
	require.NoError(t, err)

	assert.Equal(t, "Rejected", output.ApplicationStatus)
	assert.False(t, output.IncomeMatches)
}

func TestHandler_Execute_ReviewOnMismatch(t *testing.T) {
	handler, _, machine := newTestHandler(t, &fakeOCR{available: true, income: floatPtr(2000)})
	id := submitTestApplication(t, machine, 10800, 12, 4000)

	output, err := handler.Execute(context.Background(), &Input{ApplicationID: id})
	require.NoError(t, err)

	assert.Equal(t, "Review-required", output.ApplicationStatus)
	assert.Equal(t, 900.0, output.MonthlyPayment)
}

func TestHandler_Execute_OCRUnavailable(t *testing.T) {
	handler, _, machine := newTestHandler(t, &fakeOCR{available: false})
	id := submitTestApplication(t, machine, 18000, 12, 4000)

	output, err := handler.Execute(context.Background(), &Input{ApplicationID: id})
	require.NoError(t, err)

	assert.Nil(t, output.ExtractedIncome)
	assert.Equal(t, 4000.0, output.ResolvedIncome)
	assert.False(t, output.IncomeVerified)
}

func TestHandler_Execute_AlreadyProcessed(t *testing.T) {
	handler, _, machine := newTestHandler(t, &fakeOCR{available: true, income: floatPtr(4500)})
	id := submitTestApplication(t, machine, 18000, 12, 4000)

	_, err := handler.Execute(context.Background(), &Input{ApplicationID: id})
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), &Input{ApplicationID: id})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIllegalTransition))
}

func TestHandler_Execute_MissingApplicationID(t *testing.T) {
	handler, _, _ := newTestHandler(t, nil)

	_, err := handler.Execute(context.Background(), &Input{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

func TestHandler_Execute_UnknownApplication(t *testing.T) {
	handler, _, _ := newTestHandler(t, nil)

	_, err := handler.Execute(context.Background(), &Input{ApplicationID: "missing"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationNotFound))
}
