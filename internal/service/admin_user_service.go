package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
)

type adminUserRepository interface {
	List(ctx context.Context, filter models.AdminUserFilter) ([]models.AdminUser, int, error)
	FindByID(ctx context.Context, id string) (*models.AdminUser, error)
	FindByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Create(ctx context.Context, user *models.AdminUser) error
	Update(ctx context.Context, user *models.AdminUser) error
	Delete(ctx context.Context, id string) error
}

// CreateAdminUserRequest represents payload for creating staff accounts.
type CreateAdminUserRequest struct {
	Username string           `json:"username" validate:"required,min=3,max=60"`
	Email    string           `json:"email" validate:"required,email"`
	Name     string           `json:"name" validate:"required"`
	Role     models.AdminRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN AGENT"`
	Active   bool             `json:"active"`
	Password string           `json:"password" validate:"required,min=8"`
}

// UpdateAdminUserRequest payload for updating staff accounts.
type UpdateAdminUserRequest struct {
	Name   string           `json:"name" validate:"required"`
	Role   models.AdminRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN AGENT"`
	Active *bool            `json:"active"`
}

// AdminUserService handles staff account management.
type AdminUserService struct {
	repo      adminUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdminUserService creates an instance of AdminUserService.
func NewAdminUserService(repo adminUserRepository, validate *validator.Validate, logger *zap.Logger) *AdminUserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AdminUserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated staff accounts and pagination metadata.
func (s *AdminUserService) List(ctx context.Context, filter models.AdminUserFilter) ([]models.AdminUser, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns one staff account by ID.
func (s *AdminUserService) Get(ctx context.Context, id string) (*models.AdminUser, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new staff account.
func (s *AdminUserService) Create(ctx context.Context, req CreateAdminUserRequest) (*models.AdminUser, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.AdminUser{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.ToLower(req.Email),
		Name:         req.Name,
		Role:         req.Role,
		Active:       req.Active,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("admin user created", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Update modifies the staff account attributes.
func (s *AdminUserService) Update(ctx context.Context, id string, req UpdateAdminUserRequest) (*models.AdminUser, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	user.Name = req.Name
	user.Role = req.Role
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	return user, nil
}

// Delete deactivates a staff account.
func (s *AdminUserService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.logger.Info("admin user deactivated", zap.String("user_id", id))
	return nil
}
