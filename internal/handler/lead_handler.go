package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/response"
)

// LeadHandler exposes lead and dependent endpoints.
type LeadHandler struct {
	leads *service.LeadService
}

// NewLeadHandler constructs LeadHandler.
func NewLeadHandler(leads *service.LeadService) *LeadHandler {
	return &LeadHandler{leads: leads}
}

// List godoc
// @Summary List leads
// @Tags Leads
// @Produce json
// @Param status query string false "Filter by lead status (RED, YELLOW, GREEN)"
// @Param step query string false "Filter by current step"
// @Param search query string false "Search by name, email or tax id"
// @Param from query string false "Created-at lower bound (RFC3339)"
// @Param to query string false "Created-at upper bound (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leads [get]
func (h *LeadHandler) List(c *gin.Context) {
	filter := parseLeadFilter(c)
	leads, pagination, err := h.leads.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leads, pagination)
}

// Get godoc
// @Summary Get lead detail
// @Tags Leads
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /leads/{id} [get]
func (h *LeadHandler) Get(c *gin.Context) {
	lead, err := h.leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Create godoc
// @Summary Create lead
// @Description Registers a new lead at the start of the enrollment wizard
// @Tags Leads
// @Accept json
// @Produce json
// @Param payload body service.CreateLeadRequest true "Lead payload"
// @Success 201 {object} response.Envelope
// @Router /leads [post]
func (h *LeadHandler) Create(c *gin.Context) {
	var req service.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lead, err := h.leads.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lead)
}

// Update godoc
// @Summary Update lead
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param payload body service.UpdateLeadRequest true "Lead payload"
// @Success 200 {object} response.Envelope
// @Router /leads/{id} [put]
func (h *LeadHandler) Update(c *gin.Context) {
	var req service.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lead, err := h.leads.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Delete godoc
// @Summary Delete lead
// @Description Removes the lead and everything owned by it
// @Tags Leads
// @Param id path string true "Lead ID"
// @Success 204 {object} response.Envelope
// @Router /leads/{id} [delete]
func (h *LeadHandler) Delete(c *gin.Context) {
	if err := h.leads.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ForceUpdateStatus godoc
// @Summary Bulk status sweep
// @Description Recomputes every lead's status and repairs drifted rows
// @Tags Leads
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /users/force-update-status [post]
func (h *LeadHandler) ForceUpdateStatus(c *gin.Context) {
	result, err := h.leads.BulkRecomputeStatus(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Activity godoc
// @Summary Lead activity trail
// @Tags Leads
// @Produce json
// @Param id path string true "Lead ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /leads/{id}/activity [get]
func (h *LeadHandler) Activity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.leads.ListActivity(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Export godoc
// @Summary Export leads as CSV
// @Tags Leads
// @Produce text/csv
// @Success 200 {string} string "CSV content"
// @Router /leads/export [get]
func (h *LeadHandler) Export(c *gin.Context) {
	content, err := h.leads.ExportCSV(c.Request.Context(), parseLeadFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := "leads-" + time.Now().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", content)
}

// ListDependents godoc
// @Summary List dependents
// @Tags Dependents
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /leads/{id}/dependents [get]
func (h *LeadHandler) ListDependents(c *gin.Context) {
	dependents, err := h.leads.ListDependents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dependents, nil)
}

// AddDependent godoc
// @Summary Add dependent
// @Tags Dependents
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param payload body service.DependentRequest true "Dependent payload"
// @Success 201 {object} response.Envelope
// @Router /leads/{id}/dependents [post]
func (h *LeadHandler) AddDependent(c *gin.Context) {
	var req service.DependentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	dependent, err := h.leads.AddDependent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dependent)
}

// UpdateDependent godoc
// @Summary Update dependent
// @Tags Dependents
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param dependentId path string true "Dependent ID"
// @Param payload body service.DependentRequest true "Dependent payload"
// @Success 200 {object} response.Envelope
// @Router /leads/{id}/dependents/{dependentId} [put]
func (h *LeadHandler) UpdateDependent(c *gin.Context) {
	var req service.DependentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	dependent, err := h.leads.UpdateDependent(c.Request.Context(), c.Param("id"), c.Param("dependentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dependent, nil)
}

// RemoveDependent godoc
// @Summary Remove dependent
// @Tags Dependents
// @Param id path string true "Lead ID"
// @Param dependentId path string true "Dependent ID"
// @Success 204 {object} response.Envelope
// @Router /leads/{id}/dependents/{dependentId} [delete]
func (h *LeadHandler) RemoveDependent(c *gin.Context) {
	if err := h.leads.RemoveDependent(c.Request.Context(), c.Param("id"), c.Param("dependentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseLeadFilter(c *gin.Context) models.LeadFilter {
	var filter models.LeadFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if status := c.Query("status"); status != "" {
		v := models.LeadStatus(strings.ToUpper(status))
		filter.Status = &v
	}
	if step := c.Query("step"); step != "" {
		v := models.Step(strings.ToUpper(step))
		filter.CurrentStep = &v
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
