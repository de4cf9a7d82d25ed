// internal/loan/lifecycle/machine.go

// Package lifecycle owns the canonical status of each loan application and is
// the only component that mutates it. Every command checks its guard and
// commits the transition through a single atomic conditional update in the
// store, so concurrent commands on the same application cannot both pass.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/amortization"
	"loan-workers/internal/loan/decision"
	"loan-workers/internal/loan/verification"
	"loan-workers/internal/models"
)

// Store is the persistence collaborator. Transition methods are conditional
// updates: they mutate iff the stored status is one of the expected sources,
// and fail with ILLEGAL_TRANSITION (carrying the current status) otherwise.
type Store interface {
	Create(ctx context.Context, app *models.LoanApplication) error
	Get(ctx context.Context, applicationID string) (*models.LoanApplication, error)
	List(ctx context.Context) ([]models.LoanApplication, error)
	CompleteProcessing(ctx context.Context, applicationID string, extractedIncome *float64, to Status) error
	Approve(ctx context.Context, applicationID string, contractRef, scheduleRef string) error
	Reject(ctx context.Context, applicationID string, reason string) error
}

// IncomeExtractor is the OCR collaborator. A nil income with a nil error
// means the document was read but no income value was found.
type IncomeExtractor interface {
	ExtractIncome(ctx context.Context, salarySlipRef string) (*float64, error)
	Available() bool
}

// DocumentIssuer renders and stores the approval artifacts. Both references
// are returned together or not at all.
type DocumentIssuer interface {
	Issue(ctx context.Context, app *models.LoanApplication, schedule []amortization.Row, summary *amortization.Summary) (contractRef, scheduleRef string, err error)
}

// AuditRecorder receives lifecycle events. Implementations are best-effort;
// the machine ignores their failures.
type AuditRecorder interface {
	RecordTransition(ctx context.Context, event AuditEvent)
}

// AuditEvent describes one lifecycle transition for the audit trail.
type AuditEvent struct {
	ApplicationID string    `json:"applicationId"`
	Command       string    `json:"command"`
	FromStatus    string    `json:"fromStatus"`
	ToStatus      string    `json:"toStatus"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Config holds the policy parameters of the decision pipeline.
type Config struct {
	// AnnualRate is the fixed approval-time interest rate.
	AnnualRate float64
	// IncomeTolerance is the relative deviation under which extracted and
	// declared incomes reconcile.
	IncomeTolerance float64
	// AffordabilityMultiple is the income-to-payment multiple both income
	// figures must clear.
	AffordabilityMultiple float64
}

// DefaultConfig mirrors the historical policy: 5.5% fixed rate, 20% income
// tolerance, income at least twice the monthly payment.
func DefaultConfig() Config {
	return Config{
		AnnualRate:            0.055,
		IncomeTolerance:       verification.DefaultTolerance,
		AffordabilityMultiple: decision.DefaultAffordabilityMultiple,
	}
}

// Machine executes the lifecycle commands against an application store.
type Machine struct {
	store  Store
	ocr    IncomeExtractor
	issuer DocumentIssuer
	audit  AuditRecorder
	cfg    Config
	logger logger.Logger
}

// NewMachine wires the state machine. ocr and audit may be nil; the pipeline
// then runs unverified and unaudited respectively.
func NewMachine(store Store, ocr IncomeExtractor, issuer DocumentIssuer, audit AuditRecorder, cfg Config, log logger.Logger) *Machine {
	return &Machine{
		store:  store,
		ocr:    ocr,
		issuer: issuer,
		audit:  audit,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "lifecycle"}),
	}
}

// SubmitInput is the payload of the submit command.
type SubmitInput struct {
	Principal      float64
	TermMonths     int
	DeclaredIncome float64
	IDDocumentRef  string
	SalarySlipRef  string
}

// Submit validates the input, assigns the application its identity and
// creates it in the Submitted state.
func (m *Machine) Submit(ctx context.Context, in SubmitInput) (*models.LoanApplication, error) {
	if in.Principal <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("principal must be positive, got %v", in.Principal))
	}
	if in.TermMonths < 1 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("termMonths must be >= 1, got %d", in.TermMonths))
	}
	if in.DeclaredIncome <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("declaredIncome must be positive, got %v", in.DeclaredIncome))
	}
	if in.IDDocumentRef == "" || in.SalarySlipRef == "" {
		return nil, apperrors.NewValidationError("idDocumentRef and salarySlipRef are required")
	}

	now := time.Now().UTC()
	app := &models.LoanApplication{
		ApplicationID:  uuid.New().String(),
		Principal:      in.Principal,
		TermMonths:     in.TermMonths,
		DeclaredIncome: in.DeclaredIncome,
		Status:         string(StatusSubmitted),
		IDDocumentRef:  in.IDDocumentRef,
		SalarySlipRef:  in.SalarySlipRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.Create(ctx, app); err != nil {
		return nil, err
	}

	m.recordAudit(ctx, app.ApplicationID, CommandSubmit, "", StatusSubmitted, "")

	m.logger.Info("application submitted", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"principal":     app.Principal,
		"termMonths":    app.TermMonths,
	})

	return app, nil
}

// ProcessResult is the outcome of the process command.
type ProcessResult struct {
	ApplicationID   string   `json:"applicationId"`
	DeclaredIncome  float64  `json:"declaredIncome"`
	ExtractedIncome *float64 `json:"extractedIncome,omitempty"`
	ResolvedIncome  float64  `json:"resolvedIncome"`
	MonthlyPayment  float64  `json:"monthlyPayment"`
	IncomeMatches   bool     `json:"incomeMatches"`
	IncomeVerified  bool     `json:"incomeVerified"`
	Status          Status   `json:"status"`
}

// Process runs income verification and credit scoring, then transitions the
// application from Submitted to the decided status. The affordability check
// uses the true amortized payment, not a principal/term proxy, so the figure
// the applicant is scored on is the one the contract will carry.
func (m *Machine) Process(ctx context.Context, applicationID string) (*ProcessResult, error) {
	app, err := m.store.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	current := Status(app.Status)
	if !CanProcess(current) {
		return nil, apperrors.NewIllegalTransitionError(applicationID, CommandProcess, app.Status)
	}

	extracted := m.extractIncome(ctx, app)
	result := verification.ReconcileWithTolerance(app.DeclaredIncome, extracted, m.cfg.IncomeTolerance)

	payment, err := amortization.MonthlyPayment(app.Principal, app.TermMonths, m.cfg.AnnualRate)
	if err != nil {
		return nil, err
	}

	classification := decision.ClassifyWithMultiple(decision.Input{
		DeclaredIncome: app.DeclaredIncome,
		ResolvedIncome: result.ResolvedIncome,
		MonthlyPayment: payment,
		IncomeMatches:  result.Matches,
	}, m.cfg.AffordabilityMultiple)

	to := StatusFromClassification(classification)
	if err := m.store.CompleteProcessing(ctx, applicationID, extracted, to); err != nil {
		return nil, err
	}

	m.recordAudit(ctx, applicationID, CommandProcess, current, to, "")

	m.logger.Info("application processed", map[string]interface{}{
		"applicationId":  applicationID,
		"status":         string(to),
		"incomeMatches":  result.Matches,
		"incomeVerified": result.Verified,
		"monthlyPayment": amortization.Round2(payment),
	})

	return &ProcessResult{
		ApplicationID:   applicationID,
		DeclaredIncome:  app.DeclaredIncome,
		ExtractedIncome: extracted,
		ResolvedIncome:  result.ResolvedIncome,
		MonthlyPayment:  amortization.Round2(payment),
		IncomeMatches:   result.Matches,
		IncomeVerified:  result.Verified,
		Status:          to,
	}, nil
}

// ApprovalResult is the outcome of the approve command.
type ApprovalResult struct {
	ApplicationID  string  `json:"applicationId"`
	MonthlyPayment float64 `json:"monthlyPayment"`
	TotalPayment   float64 `json:"totalPayment"`
	TotalInterest  float64 `json:"totalInterest"`
	ContractRef    string  `json:"contractRef"`
	ScheduleRef    string  `json:"scheduleRef"`
	Status         Status  `json:"status"`
}

// Approve issues the contract and amortization statement and transitions the
// application to Approved. Rendering happens before the status write: if the
// rendering collaborator fails or times out, the command fails whole and the
// application keeps its pre-transition status. The artifact references are
// persisted in the same conditional update as the status, so a concurrent
// approve loses the compare-and-swap and no documents are double-recorded.
func (m *Machine) Approve(ctx context.Context, applicationID string) (*ApprovalResult, error) {
	app, err := m.store.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	current := Status(app.Status)
	if !CanApprove(current) {
		return nil, apperrors.NewIllegalTransitionError(applicationID, CommandApprove, app.Status)
	}

	schedule, err := amortization.Schedule(app.Principal, app.TermMonths, m.cfg.AnnualRate)
	if err != nil {
		return nil, err
	}
	summary, err := amortization.Summarize(app.Principal, app.TermMonths, m.cfg.AnnualRate)
	if err != nil {
		return nil, err
	}

	contractRef, scheduleRef, err := m.issuer.Issue(ctx, app, schedule, summary)
	if err != nil {
		return nil, err
	}

	if err := m.store.Approve(ctx, applicationID, contractRef, scheduleRef); err != nil {
		return nil, err
	}

	m.recordAudit(ctx, applicationID, CommandApprove, current, StatusApproved, "")

	m.logger.Info("application approved", map[string]interface{}{
		"applicationId": applicationID,
		"contractRef":   contractRef,
		"scheduleRef":   scheduleRef,
	})

	return &ApprovalResult{
		ApplicationID:  applicationID,
		MonthlyPayment: summary.MonthlyPayment,
		TotalPayment:   summary.TotalPayment,
		TotalInterest:  summary.TotalInterest,
		ContractRef:    contractRef,
		ScheduleRef:    scheduleRef,
		Status:         StatusApproved,
	}, nil
}

// Reject transitions the application to Rejected from any non-terminal state.
func (m *Machine) Reject(ctx context.Context, applicationID, reason string) error {
	app, err := m.store.Get(ctx, applicationID)
	if err != nil {
		return err
	}

	current := Status(app.Status)
	if !CanReject(current) {
		return apperrors.NewIllegalTransitionError(applicationID, CommandReject, app.Status)
	}

	if err := m.store.Reject(ctx, applicationID, reason); err != nil {
		return err
	}

	m.recordAudit(ctx, applicationID, CommandReject, current, StatusRejected, reason)

	m.logger.Info("application rejected", map[string]interface{}{
		"applicationId": applicationID,
		"reason":        reason,
	})

	return nil
}

// Get returns a single application.
func (m *Machine) Get(ctx context.Context, applicationID string) (*models.LoanApplication, error) {
	return m.store.Get(ctx, applicationID)
}

// List returns all applications, newest first.
func (m *Machine) List(ctx context.Context) ([]models.LoanApplication, error) {
	return m.store.List(ctx)
}

// VerificationDetail builds the income verification read model for an
// application, using the same amortized payment the decision was scored on.
func (m *Machine) VerificationDetail(ctx context.Context, applicationID string) (*models.IncomeVerificationDetail, error) {
	app, err := m.store.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	payment, err := amortization.MonthlyPayment(app.Principal, app.TermMonths, m.cfg.AnnualRate)
	if err != nil {
		return nil, err
	}

	detail := &models.IncomeVerificationDetail{
		ApplicationID:   applicationID,
		DeclaredIncome:  app.DeclaredIncome,
		ExtractedIncome: app.ExtractedIncome,
		MonthlyPayment:  amortization.Round2(payment),
		IncomeVerified:  app.ExtractedIncome != nil,
	}
	if app.DeclaredIncome > 0 {
		ratio := amortization.Round2(payment / app.DeclaredIncome * 100)
		detail.DebtToIncomeRatio = &ratio
	}
	return detail, nil
}

// extractIncome asks the OCR collaborator for the salary slip income. Any
// failure degrades to "no value": verification falls back to declared income.
func (m *Machine) extractIncome(ctx context.Context, app *models.LoanApplication) *float64 {
	if m.ocr == nil || !m.ocr.Available() {
		m.logger.Warn("ocr collaborator unavailable, using declared income", map[string]interface{}{
			"applicationId": app.ApplicationID,
		})
		return nil
	}

	extracted, err := m.ocr.ExtractIncome(ctx, app.SalarySlipRef)
	if err != nil {
		m.logger.Warn("income extraction failed, using declared income", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"error":         err.Error(),
		})
		return nil
	}
	return extracted
}

func (m *Machine) recordAudit(ctx context.Context, applicationID, command string, from, to Status, reason string) {
	if m.audit == nil {
		return
	}
	m.audit.RecordTransition(ctx, AuditEvent{
		ApplicationID: applicationID,
		Command:       command,
		FromStatus:    string(from),
		ToStatus:      string(to),
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	})
}
