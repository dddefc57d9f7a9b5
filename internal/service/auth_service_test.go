package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
)

type stubAdminRepo struct {
	users         map[string]*models.AdminUser
	tokens        map[string]*models.RefreshToken
	revokedAllFor []string
	passwords     map[string]string
}

func (m *stubAdminRepo) FindByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	for _, user := range m.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubAdminRepo) FindByID(ctx context.Context, id string) (*models.AdminUser, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubAdminRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if user, ok := m.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (m *stubAdminRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.passwords == nil {
		m.passwords = make(map[string]string)
	}
	m.passwords[id] = passwordHash
	if user, ok := m.users[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (m *stubAdminRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAllFor = append(m.revokedAllFor, userID)
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *stubAdminRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.tokens == nil {
		m.tokens = make(map[string]*models.RefreshToken)
	}
	cp := *token
	m.tokens[token.Token] = &cp
	return nil
}

func (m *stubAdminRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := m.tokens[token]; ok {
		cp := *stored
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubAdminRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *stubAdminRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nh4forte"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubAdminRepo{
		users: map[string]*models.AdminUser{
			"u1": {
				ID: "u1", Username: "carla", Email: "carla@brasilsaude.com.br",
				Name: "Carla Souza", Role: models.RoleAdmin, Active: true,
				PasswordHash: string(hash),
			},
		},
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "brasil-saude-api",
	})
	return svc, repo
}

func TestAuthServiceLogin(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "carla", Password: "s3nh4forte"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "carla", resp.User.Username)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Len(t, repo.tokens, 1)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "carla", Password: "errada"})
	require.Error(t, err)
}

func TestAuthServiceLoginUnknownUser(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "whatever1"})
	require.Error(t, err)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.users["u1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "carla", Password: "s3nh4forte"})
	require.Error(t, err)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "carla", Password: "s3nh4forte"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)

	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	// old token is revoked and cannot be reused
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.tokens = map[string]*models.RefreshToken{
		"old": {ID: "t1", UserID: "u1", Token: "old", ExpiresAt: time.Now().Add(-time.Hour)},
	}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old"})
	require.Error(t, err)
}

func TestAuthServiceLogoutOwnershipCheck(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.tokens = map[string]*models.RefreshToken{
		"tok": {ID: "t1", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)},
	}

	err := svc.Logout(context.Background(), "tok", "someone-else")
	require.Error(t, err)

	require.NoError(t, svc.Logout(context.Background(), "tok", "u1"))
	assert.True(t, repo.tokens["tok"].Revoked)
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{
		OldPassword: "s3nh4forte",
		NewPassword: "novaSenha123",
	})
	require.NoError(t, err)

	// sessions are revoked after a password change
	assert.Equal(t, []string{"u1"}, repo.revokedAllFor)

	_, err = svc.Login(context.Background(), models.LoginRequest{Username: "carla", Password: "novaSenha123"})
	require.NoError(t, err)
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	svc, _ := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{
		OldPassword: "errada",
		NewPassword: "novaSenha123",
	})
	require.Error(t, err)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	svc, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "carla", Password: "s3nh4forte"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(login.AccessToken + "x")
	require.Error(t, err)
}
