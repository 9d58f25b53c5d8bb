package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/siap-dev/siap-atk-api/internal/models"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
)

type memUserRepo struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, id string) error {
	if user, ok := r.users[id]; ok {
		now := time.Now().UTC()
		user.LastLogin = &now
	}
	return nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	user, ok := r.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = hash
	return nil
}

func (r *memUserRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	r.tokens[token.Token] = token
	return nil
}

func (r *memUserRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := r.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (r *memUserRepo) RevokeRefreshToken(_ context.Context, token string) error {
	if stored, ok := r.tokens[token]; ok {
		stored.Revoked = true
	}
	return nil
}

func (r *memUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, stored := range r.tokens {
		if stored.UserID == userID {
			stored.Revoked = true
		}
	}
	return nil
}

func (r *memUserRepo) CreateAuditLog(context.Context, *models.AuditLog) error { return nil }

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo) {
	t.Helper()
	repo := newMemUserRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["user-1"] = &models.User{
		ID:           "user-1",
		Email:        "staff@kantor.go.id",
		PasswordHash: string(hash),
		FullName:     "Staf Tata Usaha",
		Department:   "TU",
		Role:         models.RoleStaff,
		Active:       true,
	}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "siap-atk-api",
	})
	return svc, repo
}

func TestAuthServiceLogin(t *testing.T) {
	svc, repo := newTestAuthService(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@kantor.go.id",
		Password: "rahasia123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "TU", resp.User.Department)
	assert.Equal(t, models.RoleStaff, resp.User.Role)
	assert.Contains(t, repo.tokens, resp.RefreshToken)
	require.NotNil(t, repo.users["user-1"].LastLogin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.Equal(t, "TU", claims.Department)
	assert.True(t, claims.Can(models.CapabilityRequestCreate))
	assert.False(t, claims.Can(models.CapabilityRequestApprove))
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@kantor.go.id",
		Password: "salah",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, repo := newTestAuthService(t)
	repo.users["user-1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@kantor.go.id",
		Password: "rahasia123",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo := newTestAuthService(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@kantor.go.id",
		Password: "rahasia123",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceLogout(t *testing.T) {
	svc, repo := newTestAuthService(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@kantor.go.id",
		Password: "rahasia123",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "user-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else", models.LoginRequest{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo := newTestAuthService(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@kantor.go.id",
		Password: "rahasia123",
	})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "rahasia123",
		NewPassword: "rahasia456",
	})
	require.NoError(t, err)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)
	require.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(repo.users["user-1"].PasswordHash), []byte("rahasia456")))

	err = svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "rahasia123",
		NewPassword: "rahasia789",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.ValidateToken("not.a.token")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
