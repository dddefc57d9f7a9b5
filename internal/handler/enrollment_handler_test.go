package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/repository"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/jobs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type responseEnvelope struct {
	Data       map[string]interface{} `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type listEnvelope struct {
	Data       []map[string]interface{} `json:"data"`
	Pagination map[string]interface{}   `json:"pagination"`
}

type stubLeadSource struct {
	leads map[string]*models.Lead
}

func (s *stubLeadSource) FindByID(_ context.Context, id string) (*models.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *lead
	return &copied, nil
}

type stubStepSource struct {
	rows  map[models.Step]*models.EnrollmentStep
	leads *stubLeadSource
}

func (s *stubStepSource) ListByLead(_ context.Context, leadID string) ([]models.EnrollmentStep, error) {
	var out []models.EnrollmentStep
	for _, step := range models.StepOrder {
		if row, ok := s.rows[step]; ok && row.LeadID == leadID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *stubStepSource) FindByLeadAndStep(_ context.Context, leadID string, step models.Step) (*models.EnrollmentStep, error) {
	row, ok := s.rows[step]
	if !ok || row.LeadID != leadID {
		return nil, sql.ErrNoRows
	}
	copied := *row
	return &copied, nil
}

func (s *stubStepSource) Upsert(_ context.Context, row *models.EnrollmentStep) error {
	if row.ID == "" {
		row.ID = "step-" + strings.ToLower(string(row.Step))
	}
	copied := *row
	s.rows[row.Step] = &copied
	return nil
}

func (s *stubStepSource) ApplyTransition(_ context.Context, t repository.StepTransition) error {
	if t.Row.ID == "" {
		t.Row.ID = "step-" + strings.ToLower(string(t.Row.Step))
	}
	copied := *t.Row
	s.rows[t.Row.Step] = &copied
	if lead, ok := s.leads.leads[t.LeadID]; ok {
		lead.LeadStatus = t.NewStatus
		lead.CurrentStep = t.NewStep
	}
	return nil
}

type stubDispatcher struct {
	jobs []jobs.Job
}

func (s *stubDispatcher) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func newEnrollmentHandlerFixture() (*EnrollmentHandler, *stubLeadSource, *stubStepSource, *stubDispatcher) {
	leads := &stubLeadSource{leads: map[string]*models.Lead{
		"lead-1": {
			ID:          "lead-1",
			Name:        "Maria Silva",
			Email:       "maria@example.com",
			LeadStatus:  models.StatusYellow,
			CurrentStep: models.StepDocuments,
		},
	}}
	steps := &stubStepSource{rows: map[models.Step]*models.EnrollmentStep{}, leads: leads}
	queue := &stubDispatcher{}
	svc := service.NewEnrollmentService(leads, steps, queue, nil, time.Minute, validator.New(), zap.NewNop())
	return NewEnrollmentHandler(svc), leads, steps, queue
}

func performJSON(c *gin.Context, method, target, body string) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
}

func TestEnrollmentHandlerListStepsBackfills(t *testing.T) {
	handler, _, steps, _ := newEnrollmentHandlerFixture()
	steps.rows[models.StepPersonalData] = &models.EnrollmentStep{
		ID: "step-1", LeadID: "lead-1", Step: models.StepPersonalData, Completed: true,
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodGet, "/api/v1/enrollment/lead/lead-1/steps", "")
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}}

	handler.ListSteps(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope listEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, models.TotalSteps)
	assert.Equal(t, string(models.StepPersonalData), envelope.Data[0]["step"])
	assert.Equal(t, true, envelope.Data[0]["completed"])
	assert.Equal(t, false, envelope.Data[1]["completed"])
}

func TestEnrollmentHandlerCompleteStepAdvancesLead(t *testing.T) {
	handler, leads, _, queue := newEnrollmentHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodPost, "/api/v1/enrollment/lead/lead-1/step/documents/complete",
		`{"notes":"RG e comprovante anexados"}`)
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}, {Key: "step", Value: "documents"}}

	handler.CompleteStep(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	step, ok := envelope.Data["step"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, step["completed"])
	assert.Equal(t, "RG e comprovante anexados", step["notes"])
	lead, ok := envelope.Data["lead"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(models.StatusYellow), lead["lead_status"])
	assert.Equal(t, string(models.StepPayment), lead["current_step"])
	assert.Equal(t, models.StatusYellow, leads.leads["lead-1"].LeadStatus)
	assert.Empty(t, queue.jobs)
}

func TestEnrollmentHandlerCompleteApprovalDispatchesNotification(t *testing.T) {
	handler, leads, _, queue := newEnrollmentHandlerFixture()
	leads.leads["lead-1"].CurrentStep = models.StepApproval

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodPost, "/api/v1/enrollment/lead/lead-1/step/approval/complete", "")
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}, {Key: "step", Value: "approval"}}

	handler.CompleteStep(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, service.JobTypeApproval, queue.jobs[0].Type)
	assert.Equal(t, "lead-1", queue.jobs[0].Payload)
	assert.Equal(t, models.StatusGreen, leads.leads["lead-1"].LeadStatus)
}

func TestEnrollmentHandlerCompleteUnknownStep(t *testing.T) {
	handler, _, _, _ := newEnrollmentHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodPost, "/api/v1/enrollment/lead/lead-1/step/onboarding/complete", "")
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}, {Key: "step", Value: "onboarding"}}

	handler.CompleteStep(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "INVALID_STEP", envelope.Error["code"])
}

func TestEnrollmentHandlerUpdateStepRejectsMalformedBody(t *testing.T) {
	handler, _, _, _ := newEnrollmentHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodPut, "/api/v1/enrollment/lead/lead-1/step/documents", `{"completed":`)
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}, {Key: "step", Value: "documents"}}

	handler.UpdateStep(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error["code"])
}

func TestEnrollmentHandlerUpdateStepPartial(t *testing.T) {
	handler, leads, steps, _ := newEnrollmentHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodPut, "/api/v1/enrollment/lead/lead-1/step/documents",
		`{"notes":"aguardando comprovante"}`)
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}, {Key: "step", Value: "documents"}}

	handler.UpdateStep(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, steps.rows, models.StepDocuments)
	assert.Equal(t, "aguardando comprovante", steps.rows[models.StepDocuments].Notes)
	assert.False(t, steps.rows[models.StepDocuments].Completed)
	// partial updates never advance the lead
	assert.Equal(t, models.StepDocuments, leads.leads["lead-1"].CurrentStep)
}

func TestEnrollmentHandlerProgress(t *testing.T) {
	handler, _, steps, _ := newEnrollmentHandlerFixture()
	for _, step := range []models.Step{models.StepPersonalData, models.StepDependentsData, models.StepPlanSelection} {
		steps.rows[step] = &models.EnrollmentStep{ID: "s-" + string(step), LeadID: "lead-1", Step: step, Completed: true}
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodGet, "/api/v1/enrollment/lead/lead-1/progress", "")
	c.Params = gin.Params{{Key: "id", Value: "lead-1"}}

	handler.Progress(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(3), envelope.Data["completed_steps"])
	assert.Equal(t, float64(models.TotalSteps), envelope.Data["total_steps"])
	assert.Equal(t, float64(43), envelope.Data["progress_percentage"])
}

func TestEnrollmentHandlerProgressLeadNotFound(t *testing.T) {
	handler, _, _, _ := newEnrollmentHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	performJSON(c, http.MethodGet, "/api/v1/enrollment/lead/ghost/progress", "")
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Progress(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "NOT_FOUND", envelope.Error["code"])
}
