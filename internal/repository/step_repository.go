package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

// StepRepository handles persistence of enrollment step rows.
type StepRepository struct {
	db *sqlx.DB
}

// NewStepRepository constructs the repository.
func NewStepRepository(db *sqlx.DB) *StepRepository {
	return &StepRepository{db: db}
}

// step_data is nullable and scanned into json.RawMessage, which database/sql
// cannot fill from NULL; COALESCE keeps payload-less rows readable.
const stepColumns = `id, lead_id, step, completed, completion_date, notes, COALESCE(step_data, 'null') AS step_data, signature_data, created_at, updated_at`

// ListByLead returns every persisted step row for a lead, in step order.
func (r *StepRepository) ListByLead(ctx context.Context, leadID string) ([]models.EnrollmentStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_steps WHERE lead_id = $1`, stepColumns)
	var steps []models.EnrollmentStep
	if err := r.db.SelectContext(ctx, &steps, query, leadID); err != nil {
		return nil, fmt.Errorf("list enrollment steps: %w", err)
	}
	return steps, nil
}

// FindByLeadAndStep returns one step row.
func (r *StepRepository) FindByLeadAndStep(ctx context.Context, leadID string, step models.Step) (*models.EnrollmentStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_steps WHERE lead_id = $1 AND step = $2 LIMIT 1`, stepColumns)
	var row models.EnrollmentStep
	if err := r.db.GetContext(ctx, &row, query, leadID, step); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment step: %w", err)
	}
	return &row, nil
}

// Upsert creates or refreshes the (lead, step) row without touching the lead.
func (r *StepRepository) Upsert(ctx context.Context, row *models.EnrollmentStep) error {
	prepareStepRow(row)
	if _, err := r.db.NamedExecContext(ctx, upsertStepQuery, row); err != nil {
		return fmt.Errorf("upsert enrollment step: %w", err)
	}
	return nil
}

// StepTransition carries the writes applied when a step completes.
type StepTransition struct {
	Row        *models.EnrollmentStep
	LeadID     string
	NewStatus  models.LeadStatus
	NewStep    models.Step
	ActivityAt time.Time
	Activity   *models.ActivityLog
}

// ApplyTransition runs the step upsert, the lead status/step advance, and the
// audit entry in a single transaction. A crash can no longer leave the step
// row and the lead disagreeing.
func (r *StepRepository) ApplyTransition(ctx context.Context, t StepTransition) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin step transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prepareStepRow(t.Row)
	if _, err := tx.NamedExecContext(ctx, upsertStepQuery, t.Row); err != nil {
		return fmt.Errorf("upsert enrollment step: %w", err)
	}

	now := t.ActivityAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	const leadQuery = `UPDATE leads SET lead_status = $2, current_step = $3, last_activity_date = $4, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, leadQuery, t.LeadID, t.NewStatus, t.NewStep, now); err != nil {
		return fmt.Errorf("advance lead: %w", err)
	}

	if err := insertActivityLog(ctx, tx, t.Activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step transition: %w", err)
	}
	return nil
}

const upsertStepQuery = `INSERT INTO enrollment_steps (id, lead_id, step, completed, completion_date, notes, step_data, signature_data, created_at, updated_at)
        VALUES (:id, :lead_id, :step, :completed, :completion_date, :notes, :step_data, :signature_data, :created_at, :updated_at)
        ON CONFLICT (lead_id, step) DO UPDATE SET completed = EXCLUDED.completed, completion_date = EXCLUDED.completion_date, notes = EXCLUDED.notes, step_data = EXCLUDED.step_data, signature_data = EXCLUDED.signature_data, updated_at = EXCLUDED.updated_at`

func prepareStepRow(row *models.EnrollmentStep) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
}
