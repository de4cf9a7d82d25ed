// internal/workers/loan/submit-application/handler_test.go
package submitapplication

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

func (s *memStore) CompleteProcessing(context.Context, string, *float64, lifecycle.Status) error {
	return nil
}

func (s *memStore) Approve(context.Context, string, string, string) error { return nil }

func (s *memStore) Reject(context.Context, string, string) error { return nil }

func newTestHandler(t *testing.T) (*Handler, *memStore) {
	t.Helper()
	store := newMemStore()
	machine := lifecycle.NewMachine(store, nil, nil, nil, lifecycle.DefaultConfig(), logger.NewTestLogger(t))
	return NewHandler(LoadConfig(), machine, logger.NewTestLogger(t)), store
}

func validInput() *Input {
	return &Input{
		Principal:      12000,
		TermMonths:     12,
		DeclaredIncome: 4000,
		IDDocumentRef:  "doc/id-1",
		SalarySlipRef:  "doc/slip-1",
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	handler, store := newTestHandler(t)

	output, err := handler.Execute(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, output.ApplicationID)
	assert.Equal(t, "Submitted", output.ApplicationStatus)
	assert.NotEmpty(t, output.CreatedAt)

	stored, err := store.Get(context.Background(), output.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, 12000.0, stored.Principal)
	assert.Equal(t, "doc/slip-1", stored.SalarySlipRef)
}

func TestHandler_Execute_UniqueIdentifiers(t *testing.T) {
	handler, _ := newTestHandler(t)

	first, err := handler.Execute(context.Background(), validInput())
	require.NoError(t, err)
	second, err := handler.Execute(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEqual(t, first.ApplicationID, second.ApplicationID)
}

func TestHandler_Execute_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Input)
	}{
		{"zero principal", func(in *Input) { in.Principal = 0 }},
		{"negative principal", func(in *Input) { in.Principal = -500 }},
		{"zero term", func(in *Input) { in.TermMonths = 0 }},
		{"negative declared income", func(in *Input) { in.DeclaredIncome = -1 }},
		{"missing id document", func(in *Input) { in.IDDocumentRef = "" }},
		{"missing salary slip", func(in *Input) { in.SalarySlipRef = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newTestHandler(t)
			input := validInput()
			tt.modify(input)

			_, err := handler.Execute(context.Background(), input)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
		})
	}
}
