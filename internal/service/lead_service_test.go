package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/repository"
)

type stubLeadStore struct {
	items       map[string]*models.Lead
	listResult  []models.Lead
	listTotal   int
	sweepRows   []repository.SweepRow
	corrections map[string]models.LeadStatus
	deleted     []string
	lastFilter  models.LeadFilter
}

func (s *stubLeadStore) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	if lead, ok := s.items[id]; ok {
		cp := *lead
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubLeadStore) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	s.lastFilter = filter
	return s.listResult, s.listTotal, nil
}

func (s *stubLeadStore) Create(ctx context.Context, lead *models.Lead) error {
	if s.items == nil {
		s.items = make(map[string]*models.Lead)
	}
	if lead.ID == "" {
		lead.ID = "generated"
	}
	if lead.LeadStatus == "" {
		lead.LeadStatus = models.StatusRed
		lead.CurrentStep = models.StepPersonalData
	}
	cp := *lead
	s.items[lead.ID] = &cp
	return nil
}

func (s *stubLeadStore) Update(ctx context.Context, lead *models.Lead) error {
	cp := *lead
	s.items[lead.ID] = &cp
	return nil
}

func (s *stubLeadStore) ListForSweep(ctx context.Context) ([]repository.SweepRow, error) {
	return s.sweepRows, nil
}

func (s *stubLeadStore) ApplyStatusCorrection(ctx context.Context, leadID string, status models.LeadStatus, entry *models.ActivityLog) error {
	if s.corrections == nil {
		s.corrections = make(map[string]models.LeadStatus)
	}
	s.corrections[leadID] = status
	return nil
}

func (s *stubLeadStore) DeleteCascade(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubDependentStore struct {
	items   map[string]*models.Dependent
	deleted []string
}

func (s *stubDependentStore) ListByLead(ctx context.Context, leadID string) ([]models.Dependent, error) {
	var out []models.Dependent
	for _, dep := range s.items {
		if dep.LeadID == leadID {
			out = append(out, *dep)
		}
	}
	return out, nil
}

func (s *stubDependentStore) CountByLead(ctx context.Context, leadID string) (int, error) {
	list, _ := s.ListByLead(ctx, leadID)
	return len(list), nil
}

func (s *stubDependentStore) FindByID(ctx context.Context, id string) (*models.Dependent, error) {
	if dep, ok := s.items[id]; ok {
		cp := *dep
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubDependentStore) Create(ctx context.Context, dependent *models.Dependent) error {
	if s.items == nil {
		s.items = make(map[string]*models.Dependent)
	}
	if dependent.ID == "" {
		dependent.ID = "dep-generated"
	}
	cp := *dependent
	s.items[dependent.ID] = &cp
	return nil
}

func (s *stubDependentStore) Update(ctx context.Context, dependent *models.Dependent) error {
	cp := *dependent
	s.items[dependent.ID] = &cp
	return nil
}

func (s *stubDependentStore) Delete(ctx context.Context, id string) error {
	delete(s.items, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubActivityStore struct {
	entries []*models.ActivityLog
}

func (s *stubActivityStore) Create(ctx context.Context, entry *models.ActivityLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubActivityStore) ListByLead(ctx context.Context, leadID string, limit int) ([]models.ActivityLog, error) {
	out := make([]models.ActivityLog, 0, len(s.entries))
	for _, e := range s.entries {
		if e.LeadID == leadID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func newLeadFixture() (*LeadService, *stubLeadStore, *stubDependentStore, *stubActivityStore) {
	leads := &stubLeadStore{items: map[string]*models.Lead{}}
	dependents := &stubDependentStore{items: map[string]*models.Dependent{}}
	activities := &stubActivityStore{}
	svc := NewLeadService(leads, dependents, activities, validator.New(), zap.NewNop())
	return svc, leads, dependents, activities
}

func TestLeadServiceCreate(t *testing.T) {
	svc, leads, _, activities := newLeadFixture()

	plan := "PREMIUM"
	lead, err := svc.Create(context.Background(), CreateLeadRequest{
		Name:     "Maria Silva",
		Email:    "maria@example.com",
		Phone:    "+55 11 98888-7777",
		PlanType: &plan,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PlanPremium, lead.PlanType)
	assert.Len(t, leads.items, 1)

	require.Len(t, activities.entries, 1)
	assert.Equal(t, models.ActivityCreation, activities.entries[0].Type)
	assert.Equal(t, "Lead criado: Maria Silva", activities.entries[0].Description)
}

func TestLeadServiceCreateValidation(t *testing.T) {
	svc, _, _, _ := newLeadFixture()

	_, err := svc.Create(context.Background(), CreateLeadRequest{Name: "Ma", Email: "not-an-email", Phone: "1"})
	require.Error(t, err)
}

func TestLeadServiceUpdateRecordsChangedFields(t *testing.T) {
	svc, leads, _, activities := newLeadFixture()
	leads.items["lead-1"] = &models.Lead{ID: "lead-1", Name: "Maria Silva", Email: "maria@example.com", Phone: "+55 11 98888-7777"}

	phone := "+55 11 97777-6666"
	actor := "admin-1"
	lead, err := svc.Update(context.Background(), "lead-1", UpdateLeadRequest{Phone: &phone}, &actor)
	require.NoError(t, err)

	assert.Equal(t, phone, lead.Phone)
	require.Len(t, activities.entries, 1)
	assert.Equal(t, models.ActivityUpdate, activities.entries[0].Type)
	require.NotNil(t, activities.entries[0].ActorID)
	assert.Equal(t, "admin-1", *activities.entries[0].ActorID)
	assert.True(t, strings.Contains(string(activities.entries[0].Details), "phone"))
}

func TestLeadServiceUpdateNoopSkipsAudit(t *testing.T) {
	svc, leads, _, activities := newLeadFixture()
	leads.items["lead-1"] = &models.Lead{ID: "lead-1", Name: "Maria Silva", Email: "maria@example.com", Phone: "+55 11 98888-7777"}

	same := "Maria Silva"
	_, err := svc.Update(context.Background(), "lead-1", UpdateLeadRequest{Name: &same}, nil)
	require.NoError(t, err)
	assert.Empty(t, activities.entries)
}

func TestLeadServiceDeleteCascades(t *testing.T) {
	svc, leads, _, _ := newLeadFixture()
	leads.items["lead-1"] = &models.Lead{ID: "lead-1", Name: "Maria Silva"}

	require.NoError(t, svc.Delete(context.Background(), "lead-1", nil))
	assert.Equal(t, []string{"lead-1"}, leads.deleted)

	err := svc.Delete(context.Background(), "lead-1", nil)
	require.Error(t, err)
}

func TestBulkRecomputeStatus(t *testing.T) {
	svc, leads, _, _ := newLeadFixture()
	leads.sweepRows = []repository.SweepRow{
		// drifted: sitting at DOCUMENTS but still RED
		{ID: "l1", Name: "A", LeadStatus: models.StatusRed, CurrentStep: models.StepDocuments},
		// correct already
		{ID: "l2", Name: "B", LeadStatus: models.StatusYellow, CurrentStep: models.StepPayment},
		// reached approval, should be GREEN
		{ID: "l3", Name: "C", LeadStatus: models.StatusYellow, CurrentStep: models.StepApproval},
		// first step, no dependents, RED is right
		{ID: "l4", Name: "D", LeadStatus: models.StatusRed, CurrentStep: models.StepPersonalData},
		// first step but has a dependent, should be YELLOW
		{ID: "l5", Name: "E", LeadStatus: models.StatusRed, CurrentStep: models.StepPersonalData, DependentCount: 1},
	}

	result, err := svc.BulkRecomputeStatus(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalLeads)
	assert.Equal(t, 3, result.UpdatedLeads)
	assert.Equal(t, models.StatusYellow, leads.corrections["l1"])
	assert.Equal(t, models.StatusGreen, leads.corrections["l3"])
	assert.Equal(t, models.StatusYellow, leads.corrections["l5"])
	assert.NotContains(t, leads.corrections, "l2")
	assert.NotContains(t, leads.corrections, "l4")
}

func TestAddDependentInheritsPlan(t *testing.T) {
	svc, leads, dependents, _ := newLeadFixture()
	leads.items["lead-1"] = &models.Lead{ID: "lead-1", Name: "Maria Silva", PlanType: models.PlanPremium}

	dep, err := svc.AddDependent(context.Background(), "lead-1", DependentRequest{
		Name:         "João Silva",
		Relationship: "FILHO",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PlanPremium, dep.PlanType)
	assert.Len(t, dependents.items, 1)
}

func TestUpdateDependentOwnershipCheck(t *testing.T) {
	svc, leads, dependents, _ := newLeadFixture()
	leads.items["lead-1"] = &models.Lead{ID: "lead-1"}
	dependents.items["dep-1"] = &models.Dependent{ID: "dep-1", LeadID: "other-lead", Name: "João"}

	_, err := svc.UpdateDependent(context.Background(), "lead-1", "dep-1", DependentRequest{
		Name:         "João Silva",
		Relationship: "FILHO",
	})
	require.Error(t, err)
}

func TestRemoveDependent(t *testing.T) {
	svc, leads, dependents, activities := newLeadFixture()
	leads.items["lead-1"] = &models.Lead{ID: "lead-1"}
	dependents.items["dep-1"] = &models.Dependent{ID: "dep-1", LeadID: "lead-1", Name: "João"}

	require.NoError(t, svc.RemoveDependent(context.Background(), "lead-1", "dep-1"))
	assert.Equal(t, []string{"dep-1"}, dependents.deleted)
	require.Len(t, activities.entries, 1)
}

func TestListDefaultsPagination(t *testing.T) {
	svc, leads, _, _ := newLeadFixture()
	leads.listResult = []models.Lead{{ID: "l1"}}
	leads.listTotal = 1

	_, pagination, err := svc.List(context.Background(), models.LeadFilter{Page: -1, PageSize: 500})
	require.NoError(t, err)

	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestExportCSV(t *testing.T) {
	svc, leads, _, _ := newLeadFixture()
	leads.listResult = []models.Lead{
		{ID: "l1", Name: "Maria Silva", Email: "maria@example.com", PlanType: models.PlanStandard, LeadStatus: models.StatusYellow, CurrentStep: models.StepDocuments},
	}

	content, err := svc.ExportCSV(context.Background(), models.LeadFilter{})
	require.NoError(t, err)

	text := string(content)
	assert.True(t, strings.HasPrefix(text, "id,name,email"))
	assert.Contains(t, text, "Maria Silva")
	assert.Contains(t, text, "YELLOW")
	assert.Equal(t, 1000, leads.lastFilter.PageSize)
}
