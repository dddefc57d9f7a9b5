package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

func TestNotificationRepositoryCreateDefaultsToPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notification_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.NotificationLog{LeadID: "lead-1", Channel: models.ChannelEmail, Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Create(context.Background(), log))

	assert.NotEmpty(t, log.ID)
	assert.Equal(t, models.NotificationPending, log.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryUpdateStatusNeverRegressesSent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	// the WHERE clause excludes rows already SENT
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notification_logs SET status = $2, message = $3, response = $4, updated_at = $5 WHERE id = $1 AND status <> $6")).
		WithArgs("n1", models.NotificationError, "smtp down", sqlmock.AnyArg(), sqlmock.AnyArg(), models.NotificationSent).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "n1", models.NotificationError, "smtp down", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListFailedByLead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	// failed rows carry no provider response; the select coalesces the NULL
	// so the json.RawMessage scan still works.
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "lead_id", "channel", "status", "message", "payload", "response", "created_at", "updated_at"}).
		AddRow("n1", "lead-1", "EMAIL", "ERROR", "smtp down", []byte(`{}`), []byte(`null`), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(response, 'null') AS response, created_at, updated_at FROM notification_logs WHERE lead_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 10")).
		WithArgs("lead-1", models.NotificationError).
		WillReturnRows(rows)

	logs, err := repo.ListFailedByLead(context.Background(), "lead-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.NotificationError, logs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListPendingLeadIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT lead_id FROM notification_logs WHERE status = $1 AND created_at < $2")).
		WithArgs(models.NotificationPending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"lead_id"}).AddRow("lead-1").AddRow("lead-2"))

	ids, err := repo.ListPendingLeadIDs(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead-1", "lead-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
