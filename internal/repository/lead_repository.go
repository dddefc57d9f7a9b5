package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

// LeadRepository provides database access for lead management.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository creates a new instance of LeadRepository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

const leadColumns = `id, name, email, phone, tax_id, birth_date, address_street, address_number, address_city, address_state, address_zip, organization, position, employee_id, plan_type, has_dental, lead_status, current_step, last_activity_date, created_at, updated_at`

// FindByID returns a lead by identifier.
func (r *LeadRepository) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE id = $1 LIMIT 1`, leadColumns)
	var lead models.Lead
	if err := r.db.GetContext(ctx, &lead, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lead by id: %w", err)
	}
	return &lead, nil
}

// List returns leads based on filters with total count.
func (r *LeadRepository) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	baseQuery := `FROM leads WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("lead_status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.CurrentStep != nil {
		conditions = append(conditions, fmt.Sprintf("current_step = $%d", len(args)+1))
		args = append(args, *filter.CurrentStep)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d OR tax_id LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":               true,
		"email":              true,
		"lead_status":        true,
		"current_step":       true,
		"last_activity_date": true,
		"created_at":         true,
		"updated_at":         true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", leadColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var leads []models.Lead
	if err := r.db.SelectContext(ctx, &leads, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	return leads, total, nil
}

// Create inserts a new lead.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	if lead.LeadStatus == "" {
		lead.LeadStatus = models.StatusRed
	}
	if lead.CurrentStep == "" {
		lead.CurrentStep = models.StepPersonalData
	}
	if lead.PlanType == "" {
		lead.PlanType = models.PlanBasic
	}

	const query = `INSERT INTO leads (id, name, email, phone, tax_id, birth_date, address_street, address_number, address_city, address_state, address_zip, organization, position, employee_id, plan_type, has_dental, lead_status, current_step, last_activity_date, created_at, updated_at)
        VALUES (:id, :name, :email, :phone, :tax_id, :birth_date, :address_street, :address_number, :address_city, :address_state, :address_zip, :organization, :position, :employee_id, :plan_type, :has_dental, :lead_status, :current_step, :last_activity_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// Update updates mutable fields of a lead.
func (r *LeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	const query = `UPDATE leads SET name = :name, email = :email, phone = :phone, tax_id = :tax_id, birth_date = :birth_date, address_street = :address_street, address_number = :address_number, address_city = :address_city, address_state = :address_state, address_zip = :address_zip, organization = :organization, position = :position, employee_id = :employee_id, plan_type = :plan_type, has_dental = :has_dental, last_activity_date = :last_activity_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lead); err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	return nil
}

// SweepRow is the slim projection walked by the bulk status sweep.
type SweepRow struct {
	ID             string            `db:"id"`
	Name           string            `db:"name"`
	LeadStatus     models.LeadStatus `db:"lead_status"`
	CurrentStep    models.Step       `db:"current_step"`
	DependentCount int               `db:"dependent_count"`
}

// ListForSweep returns every lead with its dependent count.
func (r *LeadRepository) ListForSweep(ctx context.Context) ([]SweepRow, error) {
	const query = `SELECT l.id, l.name, l.lead_status, l.current_step, COUNT(d.id) AS dependent_count
        FROM leads l
        LEFT JOIN dependents d ON d.lead_id = l.id
        GROUP BY l.id, l.name, l.lead_status, l.current_step
        ORDER BY l.created_at`
	var rows []SweepRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list leads for sweep: %w", err)
	}
	return rows, nil
}

// ApplyStatusCorrection updates a lead's status and records the correction in
// the activity trail inside one transaction.
func (r *LeadRepository) ApplyStatusCorrection(ctx context.Context, leadID string, status models.LeadStatus, entry *models.ActivityLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status correction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE leads SET lead_status = $2, updated_at = $3 WHERE id = $1`, leadID, status, now); err != nil {
		return fmt.Errorf("correct lead status: %w", err)
	}
	if err := insertActivityLog(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status correction: %w", err)
	}
	return nil
}

// DeleteCascade removes the lead and every owned child row in one
// transaction; the removal is all-or-nothing.
func (r *LeadRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lead delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	childTables := []string{"dependents", "enrollment_steps", "activity_logs", "notification_logs", "documents"}
	for _, table := range childTables {
		query := fmt.Sprintf("DELETE FROM %s WHERE lead_id = $1", table)
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("delete lead %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lead delete: %w", err)
	}
	return nil
}

func insertActivityLog(ctx context.Context, tx *sqlx.Tx, entry *models.ActivityLog) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, lead_id, type, description, details, actor_id, created_at)
        VALUES (:id, :lead_id, :type, :description, :details, :actor_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}
