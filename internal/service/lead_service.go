package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/repository"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/export"
)

type leadStore interface {
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error)
	Create(ctx context.Context, lead *models.Lead) error
	Update(ctx context.Context, lead *models.Lead) error
	ListForSweep(ctx context.Context) ([]repository.SweepRow, error)
	ApplyStatusCorrection(ctx context.Context, leadID string, status models.LeadStatus, entry *models.ActivityLog) error
	DeleteCascade(ctx context.Context, id string) error
}

type dependentStore interface {
	ListByLead(ctx context.Context, leadID string) ([]models.Dependent, error)
	CountByLead(ctx context.Context, leadID string) (int, error)
	FindByID(ctx context.Context, id string) (*models.Dependent, error)
	Create(ctx context.Context, dependent *models.Dependent) error
	Update(ctx context.Context, dependent *models.Dependent) error
	Delete(ctx context.Context, id string) error
}

type activityStore interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	ListByLead(ctx context.Context, leadID string, limit int) ([]models.ActivityLog, error)
}

// CreateLeadRequest is the payload for registering a new lead.
type CreateLeadRequest struct {
	Name          string  `json:"name" validate:"required,min=3,max=160"`
	Email         string  `json:"email" validate:"required,email"`
	Phone         string  `json:"phone" validate:"required,min=8,max=20"`
	TaxID         string  `json:"tax_id" validate:"omitempty,len=11"`
	BirthDate     *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	AddressStreet string  `json:"address_street"`
	AddressNumber string  `json:"address_number"`
	AddressCity   string  `json:"address_city"`
	AddressState  string  `json:"address_state" validate:"omitempty,len=2"`
	AddressZip    string  `json:"address_zip"`
	Organization  string  `json:"organization"`
	Position      string  `json:"position"`
	EmployeeID    string  `json:"employee_id"`
	PlanType      *string `json:"plan_type" validate:"omitempty,oneof=BASIC STANDARD PREMIUM"`
	HasDental     *bool   `json:"has_dental"`
}

// UpdateLeadRequest is the partial update payload; nil fields stay untouched.
type UpdateLeadRequest struct {
	Name          *string `json:"name" validate:"omitempty,min=3,max=160"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Phone         *string `json:"phone" validate:"omitempty,min=8,max=20"`
	TaxID         *string `json:"tax_id" validate:"omitempty,len=11"`
	BirthDate     *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	AddressStreet *string `json:"address_street"`
	AddressNumber *string `json:"address_number"`
	AddressCity   *string `json:"address_city"`
	AddressState  *string `json:"address_state" validate:"omitempty,len=2"`
	AddressZip    *string `json:"address_zip"`
	Organization  *string `json:"organization"`
	Position      *string `json:"position"`
	EmployeeID    *string `json:"employee_id"`
	PlanType      *string `json:"plan_type" validate:"omitempty,oneof=BASIC STANDARD PREMIUM"`
	HasDental     *bool   `json:"has_dental"`
}

// DependentRequest is the payload for creating or updating a dependent.
type DependentRequest struct {
	Name         string  `json:"name" validate:"required,min=3,max=160"`
	TaxID        string  `json:"tax_id" validate:"omitempty,len=11"`
	BirthDate    *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Relationship string  `json:"relationship" validate:"required,max=60"`
}

// LeadService implements lead and dependent management plus the bulk status
// sweep used to repair drifted lead statuses.
type LeadService struct {
	leads      leadStore
	dependents dependentStore
	activities activityStore
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewLeadService constructs LeadService.
func NewLeadService(leads leadStore, dependents dependentStore, activities activityStore, validate *validator.Validate, logger *zap.Logger) *LeadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadService{leads: leads, dependents: dependents, activities: activities, validator: validate, logger: logger}
}

// List returns leads matching the filter with pagination metadata.
func (s *LeadService) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	leads, total, err := s.leads.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leads")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return leads, pagination, nil
}

// Get returns one lead.
func (s *LeadService) Get(ctx context.Context, id string) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	return lead, nil
}

// Create registers a new lead at the start of the enrollment funnel.
func (s *LeadService) Create(ctx context.Context, req CreateLeadRequest) (*models.Lead, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	lead := &models.Lead{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		TaxID:         req.TaxID,
		AddressStreet: req.AddressStreet,
		AddressNumber: req.AddressNumber,
		AddressCity:   req.AddressCity,
		AddressState:  req.AddressState,
		AddressZip:    req.AddressZip,
		Organization:  req.Organization,
		Position:      req.Position,
		EmployeeID:    req.EmployeeID,
	}
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must use the 2006-01-02 format")
		}
		lead.BirthDate = &birth
	}
	if req.PlanType != nil {
		lead.PlanType = models.PlanType(*req.PlanType)
	}
	if req.HasDental != nil {
		lead.HasDental = *req.HasDental
	}

	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lead")
	}

	s.audit(ctx, lead.ID, models.ActivityCreation, fmt.Sprintf("Lead criado: %s", lead.Name), nil, nil)

	s.logger.Info("lead created", zap.String("lead_id", lead.ID), zap.String("email", lead.Email))
	return lead, nil
}

// Update applies a partial update to a lead.
func (s *LeadService) Update(ctx context.Context, id string, req UpdateLeadRequest, actorID *string) (*models.Lead, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	lead, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	assign := func(field string, dst *string, src *string) {
		if src != nil && *src != *dst {
			changed[field] = *src
			*dst = *src
		}
	}
	assign("name", &lead.Name, req.Name)
	assign("email", &lead.Email, req.Email)
	assign("phone", &lead.Phone, req.Phone)
	assign("tax_id", &lead.TaxID, req.TaxID)
	assign("address_street", &lead.AddressStreet, req.AddressStreet)
	assign("address_number", &lead.AddressNumber, req.AddressNumber)
	assign("address_city", &lead.AddressCity, req.AddressCity)
	assign("address_state", &lead.AddressState, req.AddressState)
	assign("address_zip", &lead.AddressZip, req.AddressZip)
	assign("organization", &lead.Organization, req.Organization)
	assign("position", &lead.Position, req.Position)
	assign("employee_id", &lead.EmployeeID, req.EmployeeID)
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must use the 2006-01-02 format")
		}
		lead.BirthDate = &birth
		changed["birth_date"] = *req.BirthDate
	}
	if req.PlanType != nil && models.PlanType(*req.PlanType) != lead.PlanType {
		lead.PlanType = models.PlanType(*req.PlanType)
		changed["plan_type"] = *req.PlanType
	}
	if req.HasDental != nil && *req.HasDental != lead.HasDental {
		lead.HasDental = *req.HasDental
		changed["has_dental"] = *req.HasDental
	}

	if len(changed) == 0 {
		return lead, nil
	}

	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lead")
	}

	details, _ := json.Marshal(changed)
	s.audit(ctx, id, models.ActivityUpdate, "Dados do lead atualizados", details, actorID)

	return lead, nil
}

// Delete removes a lead and everything owned by it.
func (s *LeadService) Delete(ctx context.Context, id string, actorID *string) error {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.leads.DeleteCascade(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lead")
	}
	s.logger.Info("lead deleted", zap.String("lead_id", id), zap.String("name", lead.Name))
	return nil
}

// BulkRecomputeStatus walks every lead and repairs statuses that drifted from
// the position-derived rule. Corrections are applied per lead; one failure is
// logged and skipped rather than aborting the sweep.
func (s *LeadService) BulkRecomputeStatus(ctx context.Context, actorID *string) (*models.BulkStatusResult, error) {
	rows, err := s.leads.ListForSweep(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leads for sweep")
	}

	result := &models.BulkStatusResult{TotalLeads: len(rows), Changes: []models.StatusChange{}}
	for _, row := range rows {
		expected := models.RecomputeStatus(row.CurrentStep, row.DependentCount)
		if expected == row.LeadStatus {
			continue
		}

		details, _ := json.Marshal(map[string]interface{}{
			"previous_status": row.LeadStatus,
			"new_status":      expected,
			"current_step":    row.CurrentStep,
			"dependent_count": row.DependentCount,
		})
		entry := &models.ActivityLog{
			LeadID:      row.ID,
			Type:        models.ActivityStatusCorrection,
			Description: fmt.Sprintf("Status corrigido de %s para %s", row.LeadStatus, expected),
			Details:     details,
			ActorID:     actorID,
		}
		if err := s.leads.ApplyStatusCorrection(ctx, row.ID, expected, entry); err != nil {
			s.logger.Error("status correction failed", zap.String("lead_id", row.ID), zap.Error(err))
			continue
		}

		result.UpdatedLeads++
		result.Changes = append(result.Changes, models.StatusChange{
			LeadID:         row.ID,
			Name:           row.Name,
			PreviousStatus: row.LeadStatus,
			NewStatus:      expected,
			CurrentStep:    row.CurrentStep,
		})
	}

	s.logger.Info("bulk status sweep finished",
		zap.Int("total", result.TotalLeads),
		zap.Int("updated", result.UpdatedLeads))
	return result, nil
}

// ListDependents returns the lead's dependents.
func (s *LeadService) ListDependents(ctx context.Context, leadID string) ([]models.Dependent, error) {
	if _, err := s.Get(ctx, leadID); err != nil {
		return nil, err
	}
	dependents, err := s.dependents.ListByLead(ctx, leadID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dependents")
	}
	return dependents, nil
}

// AddDependent attaches a dependent to the lead. The dependent inherits the
// lead's plan tier.
func (s *LeadService) AddDependent(ctx context.Context, leadID string, req DependentRequest) (*models.Dependent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	lead, err := s.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}

	dependent := &models.Dependent{
		LeadID:       leadID,
		Name:         req.Name,
		TaxID:        req.TaxID,
		Relationship: req.Relationship,
		PlanType:     lead.PlanType,
	}
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must use the 2006-01-02 format")
		}
		dependent.BirthDate = &birth
	}

	if err := s.dependents.Create(ctx, dependent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create dependent")
	}

	details, _ := json.Marshal(map[string]string{"dependent_id": dependent.ID, "name": dependent.Name})
	s.audit(ctx, leadID, models.ActivityUpdate, fmt.Sprintf("Dependente adicionado: %s", dependent.Name), details, nil)

	return dependent, nil
}

// UpdateDependent updates a dependent owned by the lead.
func (s *LeadService) UpdateDependent(ctx context.Context, leadID, dependentID string, req DependentRequest) (*models.Dependent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	dependent, err := s.findOwnedDependent(ctx, leadID, dependentID)
	if err != nil {
		return nil, err
	}

	dependent.Name = req.Name
	dependent.TaxID = req.TaxID
	dependent.Relationship = req.Relationship
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must use the 2006-01-02 format")
		}
		dependent.BirthDate = &birth
	}

	if err := s.dependents.Update(ctx, dependent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update dependent")
	}

	details, _ := json.Marshal(map[string]string{"dependent_id": dependent.ID, "name": dependent.Name})
	s.audit(ctx, leadID, models.ActivityUpdate, fmt.Sprintf("Dependente atualizado: %s", dependent.Name), details, nil)

	return dependent, nil
}

// RemoveDependent detaches a dependent from the lead.
func (s *LeadService) RemoveDependent(ctx context.Context, leadID, dependentID string) error {
	dependent, err := s.findOwnedDependent(ctx, leadID, dependentID)
	if err != nil {
		return err
	}
	if err := s.dependents.Delete(ctx, dependentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete dependent")
	}

	details, _ := json.Marshal(map[string]string{"dependent_id": dependent.ID, "name": dependent.Name})
	s.audit(ctx, leadID, models.ActivityUpdate, fmt.Sprintf("Dependente removido: %s", dependent.Name), details, nil)
	return nil
}

// ListActivity returns the lead's newest audit entries.
func (s *LeadService) ListActivity(ctx context.Context, leadID string, limit int) ([]models.ActivityLog, error) {
	if _, err := s.Get(ctx, leadID); err != nil {
		return nil, err
	}
	entries, err := s.activities.ListByLead(ctx, leadID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	return entries, nil
}

// ExportCSV renders the filtered lead list as a CSV download.
func (s *LeadService) ExportCSV(ctx context.Context, filter models.LeadFilter) ([]byte, error) {
	filter.Page = 1
	if filter.PageSize <= 0 {
		filter.PageSize = 1000
	}
	leads, _, err := s.leads.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leads")
	}

	dataset := export.Dataset{
		Headers: []string{"id", "name", "email", "phone", "organization", "plan_type", "lead_status", "current_step", "created_at"},
	}
	for _, lead := range leads {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":           lead.ID,
			"name":         lead.Name,
			"email":        lead.Email,
			"phone":        lead.Phone,
			"organization": lead.Organization,
			"plan_type":    string(lead.PlanType),
			"lead_status":  string(lead.LeadStatus),
			"current_step": string(lead.CurrentStep),
			"created_at":   lead.CreatedAt.Format(time.RFC3339),
		})
	}

	content, err := export.NewCSVExporter().Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return content, nil
}

func (s *LeadService) findOwnedDependent(ctx context.Context, leadID, dependentID string) (*models.Dependent, error) {
	dependent, err := s.dependents.FindByID(ctx, dependentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dependent not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dependent")
	}
	if dependent.LeadID != leadID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "dependent not found")
	}
	return dependent, nil
}

func (s *LeadService) audit(ctx context.Context, leadID string, kind models.ActivityType, description string, details json.RawMessage, actorID *string) {
	entry := &models.ActivityLog{
		LeadID:      leadID,
		Type:        kind,
		Description: description,
		Details:     details,
		ActorID:     actorID,
	}
	if err := s.activities.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", zap.String("lead_id", leadID), zap.Error(err))
	}
}
