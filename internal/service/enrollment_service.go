package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/repository"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/jobs"
)

// JobTypeApproval is enqueued when a lead first reaches GREEN.
const JobTypeApproval = "enrollment.approved"

type leadReader interface {
	FindByID(ctx context.Context, id string) (*models.Lead, error)
}

type stepStore interface {
	ListByLead(ctx context.Context, leadID string) ([]models.EnrollmentStep, error)
	FindByLeadAndStep(ctx context.Context, leadID string, step models.Step) (*models.EnrollmentStep, error)
	Upsert(ctx context.Context, row *models.EnrollmentStep) error
	ApplyTransition(ctx context.Context, t repository.StepTransition) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// StepPayload carries the optional data attached when a step completes.
type StepPayload struct {
	Notes         string          `json:"notes"`
	StepData      json.RawMessage `json:"step_data"`
	SignatureData []byte          `json:"signature_data"`
}

// UpdateStepRequest is the partial step update payload.
type UpdateStepRequest struct {
	Completed     *bool           `json:"completed"`
	Notes         *string         `json:"notes"`
	StepData      json.RawMessage `json:"step_data,omitempty"`
	SignatureData []byte          `json:"signature_data,omitempty"`
}

// EnrollmentService advances a lead's (currentStep, leadStatus) pair in
// response to step-completion events. Status transitions go through
// models.NextStatus so the GREEN-is-terminal rule holds regardless of the
// order steps arrive in.
type EnrollmentService struct {
	leads     leadReader
	steps     stepStore
	queue     jobDispatcher
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(leads leadReader, steps stepStore, queue jobDispatcher, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &EnrollmentService{
		leads:     leads,
		steps:     steps,
		queue:     queue,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// CompleteStep marks a step as completed and advances the lead. Re-completing
// an already-completed step refreshes its payload and timestamp without error
// and never moves the lead status backwards.
func (s *EnrollmentService) CompleteStep(ctx context.Context, leadID string, step models.Step, payload StepPayload) (*models.EnrollmentStep, *models.Lead, error) {
	if !models.IsValidStep(step) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidStep, fmt.Sprintf("unknown enrollment step %q", step))
	}

	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	now := time.Now().UTC()
	row := &models.EnrollmentStep{
		LeadID:         leadID,
		Step:           step,
		Completed:      true,
		CompletionDate: &now,
		Notes:          payload.Notes,
		StepData:       payload.StepData,
		SignatureData:  payload.SignatureData,
	}
	if existing, findErr := s.steps.FindByLeadAndStep(ctx, leadID, step); findErr == nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if row.Notes == "" {
			row.Notes = existing.Notes
		}
	}

	prevStatus := lead.LeadStatus
	prevStep := lead.CurrentStep
	newStatus := models.NextStatus(prevStatus, step)
	newStep := models.NextStep(step)

	details, _ := json.Marshal(map[string]interface{}{
		"step":            step,
		"previous_status": prevStatus,
		"new_status":      newStatus,
		"previous_step":   prevStep,
		"new_step":        newStep,
	})
	activity := &models.ActivityLog{
		LeadID:      leadID,
		Type:        models.ActivityStepCompleted,
		Description: fmt.Sprintf("Etapa %s concluída (%s -> %s)", step, prevStatus, newStatus),
		Details:     details,
	}

	transition := repository.StepTransition{
		Row:        row,
		LeadID:     leadID,
		NewStatus:  newStatus,
		NewStep:    newStep,
		ActivityAt: now,
		Activity:   activity,
	}
	if err := s.steps.ApplyTransition(ctx, transition); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist step completion")
	}

	lead.LeadStatus = newStatus
	lead.CurrentStep = newStep
	lead.LastActivityDate = &now
	lead.UpdatedAt = now

	if newStatus == models.StatusGreen && prevStatus != models.StatusGreen {
		s.dispatchApproval(leadID)
	}

	s.invalidateProgress(ctx, leadID)

	s.logger.Info("enrollment step completed",
		zap.String("lead_id", leadID),
		zap.String("step", string(step)),
		zap.String("lead_status", string(newStatus)))

	return row, lead, nil
}

// UpdateStep applies a partial update to a step row. Setting completed=true
// routes through the full completion transition; anything else touches only
// the step row.
func (s *EnrollmentService) UpdateStep(ctx context.Context, leadID string, step models.Step, req UpdateStepRequest) (*models.EnrollmentStep, *models.Lead, error) {
	if !models.IsValidStep(step) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidStep, fmt.Sprintf("unknown enrollment step %q", step))
	}

	if req.Completed != nil && *req.Completed {
		payload := StepPayload{StepData: req.StepData, SignatureData: req.SignatureData}
		if req.Notes != nil {
			payload.Notes = *req.Notes
		}
		return s.CompleteStep(ctx, leadID, step, payload)
	}

	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	row := &models.EnrollmentStep{LeadID: leadID, Step: step}
	existing, err := s.steps.FindByLeadAndStep(ctx, leadID, step)
	switch {
	case err == nil:
		row = existing
	case err == sql.ErrNoRows:
		// first touch of this step, start from a blank row
	default:
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load step")
	}

	if req.Completed != nil {
		row.Completed = *req.Completed
		if !*req.Completed {
			row.CompletionDate = nil
		}
	}
	if req.Notes != nil {
		row.Notes = *req.Notes
	}
	if req.StepData != nil {
		row.StepData = req.StepData
	}
	if req.SignatureData != nil {
		row.SignatureData = req.SignatureData
	}

	if err := s.steps.Upsert(ctx, row); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update step")
	}

	s.invalidateProgress(ctx, leadID)

	return row, lead, nil
}

// ListSteps returns the lead's step rows in enrollment order, backfilling any
// step the lead never touched as not completed.
func (s *EnrollmentService) ListSteps(ctx context.Context, leadID string) ([]models.EnrollmentStep, error) {
	if _, err := s.leads.FindByID(ctx, leadID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	persisted, err := s.steps.ListByLead(ctx, leadID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list steps")
	}

	byStep := make(map[models.Step]models.EnrollmentStep, len(persisted))
	for _, row := range persisted {
		byStep[row.Step] = row
	}

	ordered := make([]models.EnrollmentStep, 0, len(models.StepOrder))
	for _, step := range models.StepOrder {
		if row, ok := byStep[step]; ok {
			ordered = append(ordered, row)
			continue
		}
		ordered = append(ordered, models.EnrollmentStep{LeadID: leadID, Step: step})
	}
	return ordered, nil
}

// GetProgress computes the lead's progress view, served from cache when warm.
func (s *EnrollmentService) GetProgress(ctx context.Context, leadID string) (*models.ProgressView, error) {
	cacheKey := progressCacheKey(leadID)
	if s.cache.Enabled() {
		var cached models.ProgressView
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	steps, err := s.ListSteps(ctx, leadID)
	if err != nil {
		return nil, err
	}

	views := make([]models.StepView, 0, len(steps))
	completed := 0
	for _, row := range steps {
		if row.Completed {
			completed++
		}
		views = append(views, models.StepView{
			Step:           row.Step,
			Completed:      row.Completed,
			CompletionDate: row.CompletionDate,
			Notes:          row.Notes,
		})
	}

	view := &models.ProgressView{
		LeadID:             leadID,
		CurrentStep:        lead.CurrentStep,
		LeadStatus:         lead.LeadStatus,
		CompletedSteps:     completed,
		TotalSteps:         models.TotalSteps,
		ProgressPercentage: int(math.Round(float64(completed) / float64(models.TotalSteps) * 100)),
		Steps:              views,
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, view, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache progress view", zap.Error(err))
		}
	}

	return view, nil
}

func (s *EnrollmentService) dispatchApproval(leadID string) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeApproval, Payload: leadID}
	if err := s.queue.Enqueue(job); err != nil {
		// Enqueue failure must not fail the step completion; the PENDING
		// recovery sweep picks the lead up on the next restart.
		s.logger.Error("failed to enqueue approval notification", zap.String("lead_id", leadID), zap.Error(err))
	}
}

func (s *EnrollmentService) invalidateProgress(ctx context.Context, leadID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, progressCacheKey(leadID)); err != nil {
		s.logger.Warn("failed to invalidate progress cache", zap.String("lead_id", leadID), zap.Error(err))
	}
}

func progressCacheKey(leadID string) string {
	return "enrollment:progress:" + leadID
}
