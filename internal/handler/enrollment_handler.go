package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/response"
)

// EnrollmentHandler exposes the wizard step endpoints.
type EnrollmentHandler struct {
	enrollment *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollment *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollment: enrollment}
}

// ListSteps godoc
// @Summary List enrollment steps
// @Description Returns all seven steps in order, including untouched ones
// @Tags Enrollment
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /enrollment/lead/{id}/steps [get]
func (h *EnrollmentHandler) ListSteps(c *gin.Context) {
	steps, err := h.enrollment.ListSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, steps, nil)
}

// UpdateStep godoc
// @Summary Update one enrollment step
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param step path string true "Step name"
// @Param payload body service.UpdateStepRequest true "Step payload"
// @Success 200 {object} response.Envelope
// @Router /enrollment/lead/{id}/step/{step} [put]
func (h *EnrollmentHandler) UpdateStep(c *gin.Context) {
	var req service.UpdateStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	step := models.Step(strings.ToUpper(c.Param("step")))
	row, lead, err := h.enrollment.UpdateStep(c.Request.Context(), c.Param("id"), step, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"step": row, "lead": lead}, nil)
}

// CompleteStep godoc
// @Summary Complete one enrollment step
// @Description Marks the step completed and advances the lead's status and step
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param step path string true "Step name"
// @Param payload body service.StepPayload false "Step payload"
// @Success 200 {object} response.Envelope
// @Router /enrollment/lead/{id}/step/{step}/complete [post]
func (h *EnrollmentHandler) CompleteStep(c *gin.Context) {
	var payload service.StepPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	step := models.Step(strings.ToUpper(c.Param("step")))
	row, lead, err := h.enrollment.CompleteStep(c.Request.Context(), c.Param("id"), step, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"step": row, "lead": lead}, nil)
}

// Progress godoc
// @Summary Enrollment progress
// @Description Completed step count, percentage and per-step detail
// @Tags Enrollment
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /enrollment/lead/{id}/progress [get]
func (h *EnrollmentHandler) Progress(c *gin.Context) {
	view, err := h.enrollment.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
