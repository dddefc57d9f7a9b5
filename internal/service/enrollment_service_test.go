package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/repository"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/jobs"
)

type stubLeadReader struct {
	leads map[string]*models.Lead
}

func (s *stubLeadReader) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	if lead, ok := s.leads[id]; ok {
		cp := *lead
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type stubStepStore struct {
	rows        map[models.Step]*models.EnrollmentStep
	transitions []repository.StepTransition
	upserts     []models.EnrollmentStep
	leads       *stubLeadReader
}

func (s *stubStepStore) ListByLead(ctx context.Context, leadID string) ([]models.EnrollmentStep, error) {
	out := make([]models.EnrollmentStep, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *stubStepStore) FindByLeadAndStep(ctx context.Context, leadID string, step models.Step) (*models.EnrollmentStep, error) {
	if row, ok := s.rows[step]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubStepStore) Upsert(ctx context.Context, row *models.EnrollmentStep) error {
	if s.rows == nil {
		s.rows = make(map[models.Step]*models.EnrollmentStep)
	}
	cp := *row
	s.rows[row.Step] = &cp
	s.upserts = append(s.upserts, cp)
	return nil
}

func (s *stubStepStore) ApplyTransition(ctx context.Context, t repository.StepTransition) error {
	if s.rows == nil {
		s.rows = make(map[models.Step]*models.EnrollmentStep)
	}
	cp := *t.Row
	s.rows[t.Row.Step] = &cp
	s.transitions = append(s.transitions, t)
	if s.leads != nil {
		if lead, ok := s.leads.leads[t.LeadID]; ok {
			lead.LeadStatus = t.NewStatus
			lead.CurrentStep = t.NewStep
		}
	}
	return nil
}

type stubQueue struct {
	jobs []jobs.Job
	err  error
}

func (s *stubQueue) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func newEnrollmentFixture(status models.LeadStatus, step models.Step) (*EnrollmentService, *stubLeadReader, *stubStepStore, *stubQueue) {
	leads := &stubLeadReader{leads: map[string]*models.Lead{
		"lead-1": {ID: "lead-1", Name: "Maria Silva", LeadStatus: status, CurrentStep: step},
	}}
	steps := &stubStepStore{leads: leads}
	queue := &stubQueue{}
	svc := NewEnrollmentService(leads, steps, queue, nil, 0, validator.New(), zap.NewNop())
	return svc, leads, steps, queue
}

func TestCompleteStepAdvancesLead(t *testing.T) {
	svc, _, steps, queue := newEnrollmentFixture(models.StatusRed, models.StepPersonalData)

	row, lead, err := svc.CompleteStep(context.Background(), "lead-1", models.StepPersonalData, StepPayload{Notes: "dados conferidos"})
	require.NoError(t, err)

	assert.True(t, row.Completed)
	require.NotNil(t, row.CompletionDate)
	assert.Equal(t, "dados conferidos", row.Notes)
	assert.Equal(t, models.StatusYellow, lead.LeadStatus)
	assert.Equal(t, models.StepDependentsData, lead.CurrentStep)

	require.Len(t, steps.transitions, 1)
	assert.Equal(t, models.StatusYellow, steps.transitions[0].NewStatus)
	require.NotNil(t, steps.transitions[0].Activity)
	assert.Equal(t, models.ActivityStepCompleted, steps.transitions[0].Activity.Type)
	assert.Empty(t, queue.jobs)
}

func TestCompleteStepApprovalTurnsGreenAndDispatches(t *testing.T) {
	svc, _, _, queue := newEnrollmentFixture(models.StatusYellow, models.StepApproval)

	_, lead, err := svc.CompleteStep(context.Background(), "lead-1", models.StepApproval, StepPayload{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusGreen, lead.LeadStatus)
	// approval is the terminal step, the pointer stays put
	assert.Equal(t, models.StepApproval, lead.CurrentStep)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeApproval, queue.jobs[0].Type)
	assert.Equal(t, "lead-1", queue.jobs[0].Payload)
}

func TestCompleteStepGreenIsAbsorbing(t *testing.T) {
	svc, _, _, queue := newEnrollmentFixture(models.StatusGreen, models.StepApproval)

	_, lead, err := svc.CompleteStep(context.Background(), "lead-1", models.StepPersonalData, StepPayload{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusGreen, lead.LeadStatus)
	// already GREEN, no second fan-out
	assert.Empty(t, queue.jobs)
}

func TestCompleteStepIdempotentRecompletion(t *testing.T) {
	svc, _, steps, _ := newEnrollmentFixture(models.StatusYellow, models.StepPlanSelection)

	created := time.Now().Add(-time.Hour).UTC()
	steps.rows = map[models.Step]*models.EnrollmentStep{
		models.StepPlanSelection: {
			ID: "step-1", LeadID: "lead-1", Step: models.StepPlanSelection,
			Completed: true, Notes: "plano premium", CreatedAt: created,
		},
	}
	steps.leads = nil

	row, _, err := svc.CompleteStep(context.Background(), "lead-1", models.StepPlanSelection, StepPayload{})
	require.NoError(t, err)

	assert.Equal(t, "step-1", row.ID)
	assert.Equal(t, created, row.CreatedAt)
	assert.Equal(t, "plano premium", row.Notes)
	assert.True(t, row.Completed)
}

func TestCompleteStepUnknownStep(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(models.StatusRed, models.StepPersonalData)

	_, _, err := svc.CompleteStep(context.Background(), "lead-1", models.Step("NOPE"), StepPayload{})
	require.Error(t, err)
}

func TestCompleteStepLeadNotFound(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(models.StatusRed, models.StepPersonalData)

	_, _, err := svc.CompleteStep(context.Background(), "missing", models.StepPersonalData, StepPayload{})
	require.Error(t, err)
}

func TestCompleteStepEnqueueFailureDoesNotFail(t *testing.T) {
	svc, _, _, queue := newEnrollmentFixture(models.StatusYellow, models.StepApproval)
	queue.err = errors.New("queue full")

	_, lead, err := svc.CompleteStep(context.Background(), "lead-1", models.StepApproval, StepPayload{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusGreen, lead.LeadStatus)
}

func TestUpdateStepPartialDoesNotAdvance(t *testing.T) {
	svc, leads, steps, _ := newEnrollmentFixture(models.StatusYellow, models.StepPlanSelection)

	notes := "aguardando documentos"
	row, lead, err := svc.UpdateStep(context.Background(), "lead-1", models.StepDocuments, UpdateStepRequest{
		Notes:    &notes,
		StepData: json.RawMessage(`{"rg":"enviado"}`),
	})
	require.NoError(t, err)

	assert.False(t, row.Completed)
	assert.Equal(t, notes, row.Notes)
	require.Len(t, steps.upserts, 1)
	assert.Empty(t, steps.transitions)

	// lead position untouched
	assert.Equal(t, models.StepPlanSelection, lead.CurrentStep)
	assert.Equal(t, models.StepPlanSelection, leads.leads["lead-1"].CurrentStep)
}

func TestUpdateStepCompletedRoutesToCompletion(t *testing.T) {
	svc, _, steps, _ := newEnrollmentFixture(models.StatusYellow, models.StepDocuments)

	completed := true
	_, lead, err := svc.UpdateStep(context.Background(), "lead-1", models.StepDocuments, UpdateStepRequest{Completed: &completed})
	require.NoError(t, err)

	assert.Equal(t, models.StepPayment, lead.CurrentStep)
	require.Len(t, steps.transitions, 1)
}

func TestListStepsBackfillsUntouched(t *testing.T) {
	svc, _, steps, _ := newEnrollmentFixture(models.StatusYellow, models.StepPlanSelection)
	now := time.Now().UTC()
	steps.rows = map[models.Step]*models.EnrollmentStep{
		models.StepPersonalData: {LeadID: "lead-1", Step: models.StepPersonalData, Completed: true, CompletionDate: &now},
	}

	listed, err := svc.ListSteps(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Len(t, listed, models.TotalSteps)

	for i, step := range models.StepOrder {
		assert.Equal(t, step, listed[i].Step)
	}
	assert.True(t, listed[0].Completed)
	assert.False(t, listed[1].Completed)
}

func TestGetProgressPercentage(t *testing.T) {
	svc, _, steps, _ := newEnrollmentFixture(models.StatusYellow, models.StepDocuments)
	now := time.Now().UTC()
	steps.rows = map[models.Step]*models.EnrollmentStep{
		models.StepPersonalData:   {LeadID: "lead-1", Step: models.StepPersonalData, Completed: true, CompletionDate: &now},
		models.StepDependentsData: {LeadID: "lead-1", Step: models.StepDependentsData, Completed: true, CompletionDate: &now},
		models.StepPlanSelection:  {LeadID: "lead-1", Step: models.StepPlanSelection, Completed: true, CompletionDate: &now},
	}

	view, err := svc.GetProgress(context.Background(), "lead-1")
	require.NoError(t, err)

	assert.Equal(t, 3, view.CompletedSteps)
	assert.Equal(t, models.TotalSteps, view.TotalSteps)
	assert.Equal(t, 43, view.ProgressPercentage)
	assert.Equal(t, models.StepDocuments, view.CurrentStep)
	assert.Len(t, view.Steps, models.TotalSteps)
}

func TestGetProgressPercentageForEveryCompletedCount(t *testing.T) {
	expected := []int{0, 14, 29, 43, 57, 71, 86, 100}
	now := time.Now().UTC()

	for completed, want := range expected {
		svc, _, steps, _ := newEnrollmentFixture(models.StatusYellow, models.StepDocuments)
		steps.rows = map[models.Step]*models.EnrollmentStep{}
		for i := 0; i < completed; i++ {
			step := models.StepOrder[i]
			steps.rows[step] = &models.EnrollmentStep{LeadID: "lead-1", Step: step, Completed: true, CompletionDate: &now}
		}

		view, err := svc.GetProgress(context.Background(), "lead-1")
		require.NoError(t, err)
		assert.Equal(t, completed, view.CompletedSteps)
		assert.Equal(t, want, view.ProgressPercentage, "completed=%d", completed)
	}
}
