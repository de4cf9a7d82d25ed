// internal/loan/lifecycle/machine_test.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/amortization"
	"loan-workers/internal/models"
)

// ==========================
// Test Fakes
// ==========================

// memoryStore mimics the conditional-update contract of the real store:
// transitions mutate iff the current status is a legal source, under a lock,
// so concurrent commands race exactly the way they do against the database.
type memoryStore struct {
	mu   sync.Mutex
	apps map[string]*models.LoanApplication
}

func newMemoryStore() *memoryStore {
	return &memoryStore{apps: make(map[string]*models.LoanApplication)}
}

func (s *memoryStore) Create(_ context.Context, app *models.LoanApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ApplicationID]; exists {
		return apperrors.NewDuplicateApplicationError(app.ApplicationID)
	}
	copied := *app
	s.apps[app.ApplicationID] = &copied
	return nil
}

func (s *memoryStore) Get(_ context.Context, applicationID string) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[applicationID]
	if !ok {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	copied := *app
	return &copied, nil
}

func (s *memoryStore) List(_ context.Context) ([]models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LoanApplication, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, *app)
	}
	return out, nil
}

func (s *memoryStore) swap(applicationID, command string, sources []Status, mutate func(*models.LoanApplication)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[applicationID]
	if !ok {
		return apperrors.NewApplicationNotFoundError(applicationID)
	}
	current := Status(app.Status)
	legal := false
	for _, source := range sources {
		if current == source {
			legal = true
			break
		}
	}
	if !legal {
		return apperrors.NewIllegalTransitionError(applicationID, command, app.Status)
	}
	mutate(app)
	return nil
}

func (s *memoryStore) CompleteProcessing(_ context.Context, applicationID string, extractedIncome *float64, to Status) error {
	return s.swap(applicationID, CommandProcess, ProcessSources(), func(app *models.LoanApplication) {
		app.Status = string(to)
		app.ExtractedIncome = extractedIncome
	})
}

func (s *memoryStore) Approve(_ context.Context, applicationID string, contractRef, scheduleRef string) error {
	return s.swap(applicationID, CommandApprove, ApproveSources(), func(app *models.LoanApplication) {
		app.Status = string(StatusApproved)
		app.ContractRef = contractRef
		app.ScheduleRef = scheduleRef
	})
}

func (s *memoryStore) Reject(_ context.Context, applicationID string, reason string) error {
	return s.swap(applicationID, CommandReject, RejectSources(), func(app *models.LoanApplication) {
		app.Status = string(StatusRejected)
		app.RejectReason = reason
	})
}

func (s *memoryStore) status(t *testing.T, applicationID string) Status {
	t.Helper()
	app, err := s.Get(context.Background(), applicationID)
	require.NoError(t, err)
	return Status(app.Status)
}

type fakeExtractor struct {
	available bool
	income    *float64
	err       error
}

func (f *fakeExtractor) Available() bool { return f.available }

func (f *fakeExtractor) ExtractIncome(context.Context, string) (*float64, error) {
	return f.income, f.err
}

type fakeIssuer struct {
	mu     sync.Mutex
	calls  int
	err    error
	refSeq int
}

func (f *fakeIssuer) Issue(_ context.Context, app *models.LoanApplication, schedule []amortization.Row, summary *amortization.Summary) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	f.refSeq++
	return fmt.Sprintf("contract-%d", f.refSeq), fmt.Sprintf("schedule-%d", f.refSeq), nil
}

func (f *fakeIssuer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAudit) RecordTransition(_ context.Context, event AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func floatPtr(v float64) *float64 { return &v }

// zeroRateConfig pins the monthly payment to principal/termMonths so tests
// can choose exact payment figures.
func zeroRateConfig() Config {
	return Config{
		AnnualRate:            0,
		IncomeTolerance:       0.20,
		AffordabilityMultiple: 2.0,
	}
}

func newTestMachine(t *testing.T, store Store, ocr IncomeExtractor, issuer DocumentIssuer, cfg Config) *Machine {
	t.Helper()
	return NewMachine(store, ocr, issuer, &recordingAudit{}, cfg, logger.NewTestLogger(t))
}

func submitApplication(t *testing.T, m *Machine, principal float64, termMonths int, declaredIncome float64) *models.LoanApplication {
	t.Helper()
	app, err := m.Submit(context.Background(), SubmitInput{
		Principal:      principal,
		TermMonths:     termMonths,
		DeclaredIncome: declaredIncome,
		IDDocumentRef:  "doc/id-1",
		SalarySlipRef:  "doc/slip-1",
	})
	require.NoError(t, err)
	return app
}

// ==========================
// Submit
// ==========================

func TestMachine_Submit(t *testing.T) {
	store := newMemoryStore()
	m := newTestMachine(t, store, nil, &fakeIssuer{}, DefaultConfig())

	app := submitApplication(t, m, 12000, 12, 4000)

	assert.NotEmpty(t, app.ApplicationID)
	assert.Equal(t, string(StatusSubmitted), app.Status)
	assert.Equal(t, StatusSubmitted, store.status(t, app.ApplicationID))

	// Identities are unique per submission.
	other := submitApplication(t, m, 12000, 12, 4000)
	assert.NotEqual(t, app.ApplicationID, other.ApplicationID)
}

func TestMachine_Submit_Validation(t *testing.T) {
	m := newTestMachine(t, newMemoryStore(), nil, &fakeIssuer{}, DefaultConfig())

	tests := []struct {
		name  string
		input SubmitInput
	}{
		{"zero principal", SubmitInput{Principal: 0, TermMonths: 12, DeclaredIncome: 4000, IDDocumentRef: "a", SalarySlipRef: "b"}},
		{"zero term", SubmitInput{Principal: 12000, TermMonths: 0, DeclaredIncome: 4000, IDDocumentRef: "a", SalarySlipRef: "b"}},
		{"zero income", SubmitInput{Principal: 12000, TermMonths: 12, DeclaredIncome: 0, IDDocumentRef: "a", SalarySlipRef: "b"}},
		{"missing id document", SubmitInput{Principal: 12000, TermMonths: 12, DeclaredIncome: 4000, SalarySlipRef: "b"}},
		{"missing salary slip", SubmitInput{Principal: 12000, TermMonths: 12, DeclaredIncome: 4000, IDDocumentRef: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Submit(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
		})
	}
}

// ==========================
// Process
// ==========================

func TestMachine_Process_Decisions(t *testing.T) {
	tests := []struct {
		name            string
		principal       float64
		termMonths      int
		declaredIncome  float64
		extractedIncome *float64
		wantStatus      Status
		wantMatches     bool
	}{
		{
			// payment 1500, both incomes clear 3000, extracted within 20%
			name:            "affordable and matching income pre-approves",
			principal:       18000,
			termMonths:      12,
			declaredIncome:  4000,
			extractedIncome: floatPtr(4500),
			wantStatus:      StatusPreApproved,
			wantMatches:     true,
		},
		{
			// payment 1500, extracted 2000 < 3000
			name:            "unaffordable resolved income rejects",
			principal:       18000,
			termMonths:      12,
			declaredIncome:  4000,
			extractedIncome: floatPtr(2000),
			wantStatus:      StatusRejected,
			wantMatches:     false,
		},
		{
			// payment 900, both incomes clear 1800, but extracted mismatches
			name:            "affordable but mismatched income requires review",
			principal:       10800,
			termMonths:      12,
			declaredIncome:  4000,
			extractedIncome: floatPtr(2000),
			wantStatus:      StatusReviewRequired,
			wantMatches:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			ocr := &fakeExtractor{available: true, income: tt.extractedIncome}
			m := newTestMachine(t, store, ocr, &fakeIssuer{}, zeroRateConfig())

			app := submitApplication(t, m, tt.principal, tt.termMonths, tt.declaredIncome)

			result, err := m.Process(context.Background(), app.ApplicationID)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantMatches, result.IncomeMatches)
			assert.True(t, result.IncomeVerified)
			assert.Equal(t, *tt.extractedIncome, result.ResolvedIncome)
			assert.Equal(t, tt.wantStatus, store.status(t, app.ApplicationID))

			stored, err := store.Get(context.Background(), app.ApplicationID)
			require.NoError(t, err)
			require.NotNil(t, stored.ExtractedIncome)
			assert.Equal(t, *tt.extractedIncome, *stored.ExtractedIncome)
		})
	}
}

func TestMachine_Process_UsesAmortizedPayment(t *testing.T) {
	// principal/term alone would give 1000 and pre-approve a 2050 income;
	// the amortized payment at 6% is 1032.80, whose threshold 2065.59 must
	// be the one actually applied.
	store := newMemoryStore()
	ocr := &fakeExtractor{available: true, income: floatPtr(2050)}
	cfg := Config{AnnualRate: 0.06, IncomeTolerance: 0.20, AffordabilityMultiple: 2.0}
	m := newTestMachine(t, store, ocr, &fakeIssuer{}, cfg)

	app := submitApplication(t, m, 12000, 12, 2050)

	result, err := m.Process(context.Background(), app.ApplicationID)
	require.NoError(t, err)

	assert.InDelta(t, 1032.80, result.MonthlyPayment, 0.01)
	assert.Equal(t, StatusRejected, result.Status)
}

func TestMachine_Process_OCRUnavailableFallsBackToDeclared(t *testing.T) {
	store := newMemoryStore()
	m := newTestMachine(t, store, &fakeExtractor{available: false}, &fakeIssuer{}, zeroRateConfig())

	app := submitApplication(t, m, 18000, 12, 4000)

	result, err := m.Process(context.Background(), app.ApplicationID)
	require.NoError(t, err)

	assert.Nil(t, result.ExtractedIncome)
	assert.Equal(t, 4000.0, result.ResolvedIncome)
	assert.False(t, result.IncomeVerified)
	assert.False(t, result.IncomeMatches)
	// Affordable on declared income alone, but unverified, so review.
	assert.Equal(t, StatusReviewRequired, result.Status)
}

func TestMachine_Process_OCRErrorFallsBackToDeclared(t *testing.T) {
	store := newMemoryStore()
	ocr := &fakeExtractor{available: true, err: errors.New("connection refused")}
	m := newTestMachine(t, store, ocr, &fakeIssuer{}, zeroRateConfig())

	app := submitApplication(t, m, 18000, 12, 4000)

	result, err := m.Process(context.Background(), app.ApplicationID)
	require.NoError(t, err)

	assert.Nil(t, result.ExtractedIncome)
	assert.Equal(t, 4000.0, result.ResolvedIncome)
	assert.False(t, result.IncomeVerified)
}

func TestMachine_Process_NotFound(t *testing.T) {
	m := newTestMachine(t, newMemoryStore(), nil, &fakeIssuer{}, DefaultConfig())

	_, err := m.Process(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationNotFound))
}

// ==========================
// Approve
// ==========================

func TestMachine_Approve(t *testing.T) {
	for _, source := range ApproveSources() {
		t.Run(string(source), func(t *testing.T) {
			store := newMemoryStore()
			issuer := &fakeIssuer{}
			m := newTestMachine(t, store, nil, issuer, DefaultConfig())

			app := submitApplication(t, m, 12000, 12, 4000)
			require.NoError(t, store.CompleteProcessing(context.Background(), app.ApplicationID, nil, source))

			result, err := m.Approve(context.Background(), app.ApplicationID)
			require.NoError(t, err)

			assert.Equal(t, StatusApproved, result.Status)
			assert.NotEmpty(t, result.ContractRef)
			assert.NotEmpty(t, result.ScheduleRef)
			assert.Greater(t, result.TotalInterest, 0.0)
			assert.InDelta(t, result.MonthlyPayment*12, result.TotalPayment, 0.05)
			assert.Equal(t, 1, issuer.callCount())

			stored, err := store.Get(context.Background(), app.ApplicationID)
			require.NoError(t, err)
			assert.Equal(t, result.ContractRef, stored.ContractRef)
			assert.Equal(t, result.ScheduleRef, stored.ScheduleRef)
		})
	}
}

func TestMachine_Approve_AlreadyApprovedIssuesNothing(t *testing.T) {
	store := newMemoryStore()
	issuer := &fakeIssuer{}
	m := newTestMachine(t, store, nil, issuer, DefaultConfig())

	app := submitApplication(t, m, 12000, 12, 4000)
	require.NoError(t, store.CompleteProcessing(context.Background(), app.ApplicationID, nil, StatusPreApproved))

	first, err := m.Approve(context.Background(), app.ApplicationID)
	require.NoError(t, err)

	_, err = m.Approve(context.Background(), app.ApplicationID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIllegalTransition))

	// The second approve fails before rendering, so exactly one issuance.
	assert.Equal(t, 1, issuer.callCount())

	stored, err := store.Get(context.Background(), app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, first.ContractRef, stored.ContractRef)
}

func TestMachine_Approve_RenderFailureLeavesStatusUntouched(t *testing.T) {
	store := newMemoryStore()
	issuer := &fakeIssuer{err: apperrors.NewRenderUnavailableError("loan-contract", errors.New("timeout"))}
	m := newTestMachine(t, store, nil, issuer, DefaultConfig())

	app := submitApplication(t, m, 12000, 12, 4000)
	require.NoError(t, store.CompleteProcessing(context.Background(), app.ApplicationID, nil, StatusPreApproved))

	_, err := m.Approve(context.Background(), app.ApplicationID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRenderUnavailable))

	stored, err := store.Get(context.Background(), app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusPreApproved), stored.Status)
	assert.Empty(t, stored.ContractRef)
	assert.Empty(t, stored.ScheduleRef)
}

func TestMachine_Approve_ConcurrentCommandsResolveToOneWinner(t *testing.T) {
	store := newMemoryStore()
	issuer := &fakeIssuer{}
	m := newTestMachine(t, store, nil, issuer, DefaultConfig())

	app := submitApplication(t, m, 12000, 12, 4000)
	require.NoError(t, store.CompleteProcessing(context.Background(), app.ApplicationID, nil, StatusPreApproved))

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Approve(context.Background(), app.ApplicationID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, illegal int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, apperrors.HasCode(err, apperrors.ErrCodeIllegalTransition))
		illegal++
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, illegal)
	assert.Equal(t, StatusApproved, store.status(t, app.ApplicationID))

	// Exactly one rendered document set is recorded.
	stored, err := store.Get(context.Background(), app.ApplicationID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ContractRef)
	assert.NotEmpty(t, stored.ScheduleRef)
}

// ==========================
// Reject
// ==========================

func TestMachine_Reject(t *testing.T) {
	for _, source := range RejectSources() {
		t.Run(string(source), func(t *testing.T) {
			store := newMemoryStore()
			m := newTestMachine(t, store, nil, &fakeIssuer{}, DefaultConfig())

			app := submitApplication(t, m, 12000, 12, 4000)
			if source != StatusSubmitted {
				require.NoError(t, store.CompleteProcessing(context.Background(), app.ApplicationID, nil, source))
			}

			require.NoError(t, m.Reject(context.Background(), app.ApplicationID, "applicant withdrew"))

			stored, err := store.Get(context.Background(), app.ApplicationID)
			require.NoError(t, err)
			assert.Equal(t, string(StatusRejected), stored.Status)
			assert.Equal(t, "applicant withdrew", stored.RejectReason)
		})
	}
}

// ==========================
// Illegal Transitions
// ==========================

func TestMachine_IllegalTransitionsLeaveStatusUntouched(t *testing.T) {
	type command func(m *Machine, id string) error

	process := func(m *Machine, id string) error { _, err := m.Process(context.Background(), id); return err }
	approve := func(m *Machine, id string) error { _, err := m.Approve(context.Background(), id); return err }
	reject := func(m *Machine, id string) error { return m.Reject(context.Background(), id, "nope") }

	tests := []struct {
		name    string
		status  Status
		command command
	}{
		{"process from pre-approved", StatusPreApproved, process},
		{"process from review-required", StatusReviewRequired, process},
		{"process from approved", StatusApproved, process},
		{"process from rejected", StatusRejected, process},
		{"approve from submitted", StatusSubmitted, approve},
		{"approve from approved", StatusApproved, approve},
		{"approve from rejected", StatusRejected, approve},
		{"reject from approved", StatusApproved, reject},
		{"reject from rejected", StatusRejected, reject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			m := newTestMachine(t, store, &fakeExtractor{available: true, income: floatPtr(4000)}, &fakeIssuer{}, DefaultConfig())

			app := submitApplication(t, m, 12000, 12, 4000)
			store.mu.Lock()
			store.apps[app.ApplicationID].Status = string(tt.status)
			store.mu.Unlock()

			err := tt.command(m, app.ApplicationID)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIllegalTransition))
			assert.Equal(t, tt.status, store.status(t, app.ApplicationID))
		})
	}
}

// ==========================
// Audit & Read Models
// ==========================

func TestMachine_AuditTrailRecordsTransitions(t *testing.T) {
	store := newMemoryStore()
	audit := &recordingAudit{}
	m := NewMachine(store, &fakeExtractor{available: true, income: floatPtr(4500)}, &fakeIssuer{}, audit, zeroRateConfig(), logger.NewTestLogger(t))

	app := submitApplication(t, m, 18000, 12, 4000)
	_, err := m.Process(context.Background(), app.ApplicationID)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), app.ApplicationID)
	require.NoError(t, err)

	require.Len(t, audit.events, 3)
	assert.Equal(t, CommandSubmit, audit.events[0].Command)
	assert.Equal(t, CommandProcess, audit.events[1].Command)
	assert.Equal(t, string(StatusSubmitted), audit.events[1].FromStatus)
	assert.Equal(t, string(StatusPreApproved), audit.events[1].ToStatus)
	assert.Equal(t, CommandApprove, audit.events[2].Command)
	assert.Equal(t, string(StatusApproved), audit.events[2].ToStatus)
}

func TestMachine_VerificationDetail(t *testing.T) {
	store := newMemoryStore()
	ocr := &fakeExtractor{available: true, income: floatPtr(4500)}
	m := newTestMachine(t, store, ocr, &fakeIssuer{}, zeroRateConfig())

	app := submitApplication(t, m, 18000, 12, 4000)
	_, err := m.Process(context.Background(), app.ApplicationID)
	require.NoError(t, err)

	detail, err := m.VerificationDetail(context.Background(), app.ApplicationID)
	require.NoError(t, err)

	assert.Equal(t, app.ApplicationID, detail.ApplicationID)
	assert.Equal(t, 4000.0, detail.DeclaredIncome)
	require.NotNil(t, detail.ExtractedIncome)
	assert.Equal(t, 4500.0, *detail.ExtractedIncome)
	assert.Equal(t, 1500.0, detail.MonthlyPayment)
	assert.True(t, detail.IncomeVerified)
	require.NotNil(t, detail.DebtToIncomeRatio)
	assert.InDelta(t, 37.5, *detail.DebtToIncomeRatio, 0.01)
}
