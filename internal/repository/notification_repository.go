package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

// NotificationRepository handles persistence of notification attempts.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// payload and response are nullable json columns scanned into
// json.RawMessage; COALESCE keeps PENDING and ERROR rows readable.
const notificationColumns = `id, lead_id, channel, status, message, COALESCE(payload, 'null') AS payload, COALESCE(response, 'null') AS response, created_at, updated_at`

// Create inserts a new notification attempt, usually in PENDING state.
func (r *NotificationRepository) Create(ctx context.Context, log *models.NotificationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.UpdatedAt = now
	if log.Status == "" {
		log.Status = models.NotificationPending
	}

	const query = `INSERT INTO notification_logs (id, lead_id, channel, status, message, payload, response, created_at, updated_at)
        VALUES (:id, :lead_id, :channel, :status, :message, :payload, :response, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

// FindByID returns one notification attempt.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.NotificationLog, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_logs WHERE id = $1 LIMIT 1`, notificationColumns)
	var log models.NotificationLog
	if err := r.db.GetContext(ctx, &log, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find notification log: %w", err)
	}
	return &log, nil
}

// UpdateStatus transitions an attempt and stores the provider response or
// error message. Rows already SENT are left untouched.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, message string, response json.RawMessage) error {
	const query = `UPDATE notification_logs SET status = $2, message = $3, response = $4, updated_at = $5 WHERE id = $1 AND status <> $6`
	if _, err := r.db.ExecContext(ctx, query, id, status, message, response, time.Now().UTC(), models.NotificationSent); err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	return nil
}

// ListByLead returns the newest attempts for a lead.
func (r *NotificationRepository) ListByLead(ctx context.Context, leadID string, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM notification_logs WHERE lead_id = $1 ORDER BY created_at DESC LIMIT %d`, notificationColumns, limit)
	var logs []models.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, leadID); err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	return logs, nil
}

// ListFailedByLead returns up to limit ERROR attempts for a lead, newest
// first, for the manual retry path.
func (r *NotificationRepository) ListFailedByLead(ctx context.Context, leadID string, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM notification_logs WHERE lead_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT %d`, notificationColumns, limit)
	var logs []models.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, leadID, models.NotificationError); err != nil {
		return nil, fmt.Errorf("list failed notifications: %w", err)
	}
	return logs, nil
}

// ListPendingByLead returns the PENDING attempts for a lead, oldest first,
// so the recovery path replays them in dispatch order.
func (r *NotificationRepository) ListPendingByLead(ctx context.Context, leadID string) ([]models.NotificationLog, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_logs WHERE lead_id = $1 AND status = $2 ORDER BY created_at ASC`, notificationColumns)
	var logs []models.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, leadID, models.NotificationPending); err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return logs, nil
}

// ListPendingLeadIDs returns the distinct leads that still have PENDING
// attempts, used to recover dispatches lost to a restart.
func (r *NotificationRepository) ListPendingLeadIDs(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	const query = `SELECT DISTINCT lead_id FROM notification_logs WHERE status = $1 AND created_at < $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.NotificationPending, cutoff); err != nil {
		return nil, fmt.Errorf("list pending notification leads: %w", err)
	}
	return ids, nil
}
