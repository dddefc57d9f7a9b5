package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func leadRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "email", "phone", "tax_id", "birth_date",
		"address_street", "address_number", "address_city", "address_state", "address_zip",
		"organization", "position", "employee_id", "plan_type", "has_dental",
		"lead_status", "current_step", "last_activity_date", "created_at", "updated_at",
	}).AddRow(
		"lead-1", "Maria Silva", "maria@example.com", "+55 11 98888-7777", "", nil,
		"", "", "", "", "",
		"Sinvest", "", "", "STANDARD", false,
		"YELLOW", "DOCUMENTS", nil, now, now,
	)
}

func TestLeadRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM leads WHERE id = $1 LIMIT 1")).
		WithArgs("lead-1").
		WillReturnRows(leadRows())

	lead, err := repo.FindByID(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", lead.Name)
	assert.Equal(t, models.StatusYellow, lead.LeadStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM leads WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestLeadRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM leads WHERE 1=1 AND lead_status = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("YELLOW").
		WillReturnRows(leadRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM leads WHERE 1=1 AND lead_status = $1")).
		WithArgs("YELLOW").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	status := models.StatusYellow
	leads, total, err := repo.List(context.Background(), models.LeadFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectExec("INSERT INTO leads").
		WillReturnResult(sqlmock.NewResult(1, 1))

	lead := &models.Lead{Name: "Maria Silva", Email: "maria@example.com", Phone: "+55 11 98888-7777"}
	require.NoError(t, repo.Create(context.Background(), lead))

	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, models.StatusRed, lead.LeadStatus)
	assert.Equal(t, models.StepPersonalData, lead.CurrentStep)
	assert.Equal(t, models.PlanBasic, lead.PlanType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryApplyStatusCorrection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE leads SET lead_status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("lead-1", models.StatusYellow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO activity_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry := &models.ActivityLog{
		LeadID:      "lead-1",
		Type:        models.ActivityStatusCorrection,
		Description: "Status corrigido de RED para YELLOW",
	}
	require.NoError(t, repo.ApplyStatusCorrection(context.Background(), "lead-1", models.StatusYellow, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryDeleteCascade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectBegin()
	for _, table := range []string{"dependents", "enrollment_steps", "activity_logs", "notification_logs", "documents"} {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM "+table+" WHERE lead_id = $1")).
			WithArgs("lead-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
	}
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM leads WHERE id = $1")).
		WithArgs("lead-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteCascade(context.Background(), "lead-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryDeleteCascadeMissingLead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectBegin()
	for _, table := range []string{"dependents", "enrollment_steps", "activity_logs", "notification_logs", "documents"} {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM "+table+" WHERE lead_id = $1")).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM leads WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteCascade(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
