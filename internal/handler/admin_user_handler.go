package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/response"
)

// AdminUserHandler exposes staff account management endpoints.
type AdminUserHandler struct {
	admins *service.AdminUserService
}

// NewAdminUserHandler constructs AdminUserHandler.
func NewAdminUserHandler(admins *service.AdminUserService) *AdminUserHandler {
	return &AdminUserHandler{admins: admins}
}

// List godoc
// @Summary List staff accounts
// @Tags Admins
// @Produce json
// @Param role query string false "Filter by role"
// @Param active query bool false "Filter by active state"
// @Param search query string false "Search by name, username or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admins [get]
func (h *AdminUserHandler) List(c *gin.Context) {
	var filter models.AdminUserFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if role := c.Query("role"); role != "" {
		v := models.AdminRole(strings.ToUpper(role))
		filter.Role = &v
	}
	if active := c.Query("active"); active != "" {
		v := active == "true"
		filter.Active = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	users, pagination, err := h.admins.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get staff account
// @Tags Admins
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /admins/{id} [get]
func (h *AdminUserHandler) Get(c *gin.Context) {
	user, err := h.admins.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create staff account
// @Tags Admins
// @Accept json
// @Produce json
// @Param payload body service.CreateAdminUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Router /admins [post]
func (h *AdminUserHandler) Create(c *gin.Context) {
	var req service.CreateAdminUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.admins.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update staff account
// @Tags Admins
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body service.UpdateAdminUserRequest true "User payload"
// @Success 200 {object} response.Envelope
// @Router /admins/{id} [put]
func (h *AdminUserHandler) Update(c *gin.Context) {
	var req service.UpdateAdminUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.admins.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Deactivate staff account
// @Tags Admins
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Router /admins/{id} [delete]
func (h *AdminUserHandler) Delete(c *gin.Context) {
	if err := h.admins.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
