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

// DependentRepository handles persistence of lead dependents.
type DependentRepository struct {
	db *sqlx.DB
}

// NewDependentRepository constructs the repository.
func NewDependentRepository(db *sqlx.DB) *DependentRepository {
	return &DependentRepository{db: db}
}

const dependentColumns = `id, lead_id, name, tax_id, birth_date, relationship, plan_type, created_at, updated_at`

// ListByLead returns every dependent owned by a lead.
func (r *DependentRepository) ListByLead(ctx context.Context, leadID string) ([]models.Dependent, error) {
	query := fmt.Sprintf(`SELECT %s FROM dependents WHERE lead_id = $1 ORDER BY created_at`, dependentColumns)
	var dependents []models.Dependent
	if err := r.db.SelectContext(ctx, &dependents, query, leadID); err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	return dependents, nil
}

// CountByLead returns the number of dependents for a lead.
func (r *DependentRepository) CountByLead(ctx context.Context, leadID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM dependents WHERE lead_id = $1`, leadID); err != nil {
		return 0, fmt.Errorf("count dependents: %w", err)
	}
	return count, nil
}

// FindByID returns a dependent by identifier.
func (r *DependentRepository) FindByID(ctx context.Context, id string) (*models.Dependent, error) {
	query := fmt.Sprintf(`SELECT %s FROM dependents WHERE id = $1 LIMIT 1`, dependentColumns)
	var dependent models.Dependent
	if err := r.db.GetContext(ctx, &dependent, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find dependent by id: %w", err)
	}
	return &dependent, nil
}

// Create inserts a new dependent.
func (r *DependentRepository) Create(ctx context.Context, dependent *models.Dependent) error {
	if dependent.ID == "" {
		dependent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if dependent.CreatedAt.IsZero() {
		dependent.CreatedAt = now
	}
	dependent.UpdatedAt = now

	const query = `INSERT INTO dependents (id, lead_id, name, tax_id, birth_date, relationship, plan_type, created_at, updated_at)
        VALUES (:id, :lead_id, :name, :tax_id, :birth_date, :relationship, :plan_type, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dependent); err != nil {
		return fmt.Errorf("create dependent: %w", err)
	}
	return nil
}

// Update updates mutable fields of a dependent.
func (r *DependentRepository) Update(ctx context.Context, dependent *models.Dependent) error {
	dependent.UpdatedAt = time.Now().UTC()
	const query = `UPDATE dependents SET name = :name, tax_id = :tax_id, birth_date = :birth_date, relationship = :relationship, plan_type = :plan_type, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, dependent); err != nil {
		return fmt.Errorf("update dependent: %w", err)
	}
	return nil
}

// Delete removes a dependent.
func (r *DependentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dependents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dependent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
