package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

func TestActivityRepositoryCreateFillsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectExec("INSERT INTO activity_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.ActivityLog{LeadID: "lead-1", Type: models.ActivityCreation, Description: "Lead criado: Maria Silva"}
	require.NoError(t, repo.Create(context.Background(), entry))

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryListByLead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	// creation entries are written without structured details; the select
	// coalesces the NULL so the json.RawMessage scan still works.
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "lead_id", "type", "description", "details", "actor_id", "created_at"}).
		AddRow("a2", "lead-1", "UPDATE", "Dados do lead atualizados", []byte(`{"phone":"11977776666"}`), "admin-1", now).
		AddRow("a1", "lead-1", "CREATION", "Lead criado: Maria Silva", []byte(`null`), nil, now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(details, 'null') AS details, actor_id, created_at FROM activity_logs WHERE lead_id = $1 ORDER BY created_at DESC LIMIT 50")).
		WithArgs("lead-1").
		WillReturnRows(rows)

	entries, err := repo.ListByLead(context.Background(), "lead-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActivityUpdate, entries[0].Type)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, "admin-1", *entries[0].ActorID)
	assert.Nil(t, entries[1].ActorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
