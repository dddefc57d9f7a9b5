package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

// ActivityRepository handles the append-only lead audit trail.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends one audit entry. Entries are never updated afterwards.
func (r *ActivityRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, lead_id, type, description, details, actor_id, created_at)
        VALUES (:id, :lead_id, :type, :description, :details, :actor_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// ListByLead returns the newest audit entries for a lead.
func (r *ActivityRepository) ListByLead(ctx context.Context, leadID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	// details is nullable; COALESCE keeps rows without structured details
	// scannable into json.RawMessage.
	query := fmt.Sprintf(`SELECT id, lead_id, type, description, COALESCE(details, 'null') AS details, actor_id, created_at FROM activity_logs WHERE lead_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var entries []models.ActivityLog
	if err := r.db.SelectContext(ctx, &entries, query, leadID); err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	return entries, nil
}
