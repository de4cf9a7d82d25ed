// internal/loan/store/postgres.go

// Package store implements the persistence collaborator of the loan
// lifecycle. Status transitions are compare-and-swap updates conditioned on
// the expected source status, which makes concurrent commands on the same
// application resolve to exactly one winner without cross-application locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	apperrors "loan-workers/internal/common/errors"
	"loan-workers/internal/common/logger"
	"loan-workers/internal/loan/lifecycle"
	"loan-workers/internal/models"
)

const createTableDDL = `
CREATE TABLE IF NOT EXISTS loan_applications (
	id SERIAL PRIMARY KEY,
	application_id VARCHAR(255) UNIQUE NOT NULL,
	principal DECIMAL(12, 2) NOT NULL,
	term_months INTEGER NOT NULL,
	declared_income DECIMAL(12, 2) NOT NULL,
	extracted_income DECIMAL(12, 2),
	status VARCHAR(50) NOT NULL DEFAULT 'Submitted',
	id_document_ref VARCHAR(500),
	salary_slip_ref VARCHAR(500),
	contract_ref VARCHAR(500),
	schedule_ref VARCHAR(500),
	reject_reason VARCHAR(500),
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	approved_at TIMESTAMPTZ
)`

const selectColumns = `application_id, principal, term_months, declared_income, extracted_income,
	status, id_document_ref, salary_slip_ref, contract_ref, schedule_ref, reject_reason,
	created_at, updated_at, approved_at`

// PostgresStore persists loan applications in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewPostgresStore wraps an existing database handle. The handle stays owned
// by the caller; the store never closes it.
func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
	}
}

// Migrate creates the loan_applications table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableDDL); err != nil {
		return apperrors.NewQueryExecutionFailedError("migrate", err)
	}
	return nil
}

// Create inserts a new application in its initial status.
func (s *PostgresStore) Create(ctx context.Context, app *models.LoanApplication) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loan_applications
		(application_id, principal, term_months, declared_income, status,
		 id_document_ref, salary_slip_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		app.ApplicationID,
		app.Principal,
		app.TermMonths,
		app.DeclaredIncome,
		app.Status,
		app.IDDocumentRef,
		app.SalarySlipRef,
		app.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperrors.NewDuplicateApplicationError(app.ApplicationID)
		}
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// Get returns a single application by its identifier.
func (s *PostgresStore) Get(ctx context.Context, applicationID string) (*models.LoanApplication, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM loan_applications
		WHERE application_id = $1`, applicationID)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewApplicationNotFoundError(applicationID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get", err)
	}
	return app, nil
}

// List returns all applications, newest first. Applications are never
// deleted; the full table is the audit record.
func (s *PostgresStore) List(ctx context.Context) ([]models.LoanApplication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM loan_applications
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list", err)
	}
	defer rows.Close()

	var apps []models.LoanApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list", err)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list", err)
	}
	return apps, nil
}

// CompleteProcessing records the decision outcome and the extracted income in
// one conditional update, guarded on the Submitted status.
func (s *PostgresStore) CompleteProcessing(ctx context.Context, applicationID string, extractedIncome *float64, to lifecycle.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $1, extracted_income = $2, updated_at = $3
		WHERE application_id = $4 AND status = $5`,
		string(to),
		nullFloat(extractedIncome),
		time.Now().UTC(),
		applicationID,
		string(lifecycle.StatusSubmitted),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("complete_processing", err)
	}
	return s.checkSwap(ctx, res, applicationID, lifecycle.CommandProcess)
}

// Approve writes the Approved status and both artifact references in one
// conditional update, so an application is never Approved without documents.
func (s *PostgresStore) Approve(ctx context.Context, applicationID string, contractRef, scheduleRef string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $1, contract_ref = $2, schedule_ref = $3, approved_at = $4, updated_at = $4
		WHERE application_id = $5 AND status = ANY($6)`,
		string(lifecycle.StatusApproved),
		contractRef,
		scheduleRef,
		now,
		applicationID,
		pq.Array(statusStrings(lifecycle.ApproveSources())),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("approve", err)
	}
	return s.checkSwap(ctx, res, applicationID, lifecycle.CommandApprove)
}

// Reject moves the application to Rejected from any non-terminal status.
func (s *PostgresStore) Reject(ctx context.Context, applicationID string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $1, reject_reason = $2, updated_at = $3
		WHERE application_id = $4 AND status = ANY($5)`,
		string(lifecycle.StatusRejected),
		reason,
		time.Now().UTC(),
		applicationID,
		pq.Array(statusStrings(lifecycle.RejectSources())),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("reject", err)
	}
	return s.checkSwap(ctx, res, applicationID, lifecycle.CommandReject)
}

// checkSwap maps a zero-row conditional update onto the caller-facing error:
// unknown id or a guard lost against the current status.
func (s *PostgresStore) checkSwap(ctx context.Context, res sql.Result, applicationID, command string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewQueryExecutionFailedError(command, err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM loan_applications WHERE application_id = $1`,
		applicationID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return apperrors.NewQueryExecutionFailedError(command, err)
	}
	return apperrors.NewIllegalTransitionError(applicationID, command, current)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.LoanApplication, error) {
	var (
		app             models.LoanApplication
		extractedIncome sql.NullFloat64
		idDocRef        sql.NullString
		salaryRef       sql.NullString
		contractRef     sql.NullString
		scheduleRef     sql.NullString
		rejectReason    sql.NullString
		approvedAt      sql.NullTime
	)

	err := row.Scan(
		&app.ApplicationID,
		&app.Principal,
		&app.TermMonths,
		&app.DeclaredIncome,
		&extractedIncome,
		&app.Status,
		&idDocRef,
		&salaryRef,
		&contractRef,
		&scheduleRef,
		&rejectReason,
		&app.CreatedAt,
		&app.UpdatedAt,
		&approvedAt,
	)
	if err != nil {
		return nil, err
	}

	if extractedIncome.Valid {
		v := extractedIncome.Float64
		app.ExtractedIncome = &v
	}
	app.IDDocumentRef = idDocRef.String
	app.SalarySlipRef = salaryRef.String
	app.ContractRef = contractRef.String
	app.ScheduleRef = scheduleRef.String
	app.RejectReason = rejectReason.String
	if approvedAt.Valid {
		t := approvedAt.Time
		app.ApprovedAt = &t
	}

	return &app, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func statusStrings(statuses []lifecycle.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
