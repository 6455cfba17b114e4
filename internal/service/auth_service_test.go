package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	createErr        error
	created          []*models.User
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	user.ID = "u-new"
	m.created = append(m.created, user)
	return nil
}

func newAuthFixture(repo *mockAuthRepo, audit *auditStub) *AuthService {
	var writer auditWriter
	if audit != nil {
		writer = audit
	}
	return NewAuthService(repo, writer, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sma-admissions-api",
	})
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: hashed(t, "password"), Active: true, Role: models.RoleAdmin}}
	audit := &auditStub{}
	svc := newAuthFixture(repo, audit)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password", IP: "10.1.1.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.EqualValues(t, 3600, res.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)
	assert.Equal(t, "10.1.1.1", audit.logs[0].IPAddress)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: hashed(t, "password"), Active: true}}
	svc := newAuthFixture(repo, nil)
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials.Code))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nope", Password: "password"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	repo.userByEmail.Active = false
	_, err = svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "password"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInactiveAccount.Code))

	repo.userByEmail = nil
	_, err = svc.Login(ctx, models.LoginRequest{Email: "ghost@example.com", Password: "password"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials.Code))
}

func TestAuthServiceCreateUser(t *testing.T) {
	repo := &mockAuthRepo{}
	audit := &auditStub{}
	svc := newAuthFixture(repo, audit)

	info, err := svc.CreateUser(context.Background(), models.CreateUserRequest{
		Email:    " Office@School.example ",
		Password: "s3cret-pass",
		FullName: "Front Office",
		Role:     models.RoleStaff,
	}, &models.Actor{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "u-new", info.ID)
	assert.Equal(t, "office@school.example", info.Email)
	require.Len(t, repo.created, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created[0].PasswordHash), []byte("s3cret-pass")))
	assert.Equal(t, []string{models.AuditActionUserCreate}, audit.actions())

	repo.createErr = repository.ErrDuplicate
	_, err = svc.CreateUser(context.Background(), models.CreateUserRequest{Email: "office@school.example", Password: "s3cret-pass", FullName: "Again", Role: models.RoleStaff}, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	_, err = svc.CreateUser(context.Background(), models.CreateUserRequest{Email: "x@school.example", Password: "short", FullName: "X", Role: "PRINCIPAL"}, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestValidateToken(t *testing.T) {
	svc := newAuthFixture(&mockAuthRepo{}, nil)
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleAdmin}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "different"})
	_, err = other.ValidateToken(token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}
