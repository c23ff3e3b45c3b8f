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

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type stubAuthStudents struct {
	student *models.Student
	byEmail *models.Student
	updated string
}

func (s *stubAuthStudents) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if s.student == nil {
		return nil, sql.ErrNoRows
	}
	return s.student, nil
}

func (s *stubAuthStudents) FindBySchoolID(ctx context.Context, schoolID string) (*models.Student, error) {
	if s.student == nil || s.student.SchoolID != schoolID {
		return nil, sql.ErrNoRows
	}
	return s.student, nil
}

func (s *stubAuthStudents) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	if s.byEmail == nil {
		return nil, sql.ErrNoRows
	}
	return s.byEmail, nil
}

func (s *stubAuthStudents) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	s.updated = passwordHash
	return nil
}

type stubAuthAdmins struct {
	admin   *models.Admin
	updated string
}

func (s *stubAuthAdmins) FindByID(ctx context.Context, id int64) (*models.Admin, error) {
	if s.admin == nil {
		return nil, sql.ErrNoRows
	}
	return s.admin, nil
}

func (s *stubAuthAdmins) FindByUsername(ctx context.Context, username string) (*models.Admin, error) {
	if s.admin == nil || s.admin.Username != username {
		return nil, sql.ErrNoRows
	}
	return s.admin, nil
}

func (s *stubAuthAdmins) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	s.updated = passwordHash
	return nil
}

type stubResetRepo struct {
	reset   *models.PasswordReset
	deleted bool
}

func (s *stubResetRepo) Upsert(ctx context.Context, reset *models.PasswordReset) error {
	s.reset = reset
	return nil
}

func (s *stubResetRepo) FindByStudent(ctx context.Context, studentID int64) (*models.PasswordReset, error) {
	if s.reset == nil {
		return nil, sql.ErrNoRows
	}
	return s.reset, nil
}

func (s *stubResetRepo) Delete(ctx context.Context, studentID int64) error {
	s.deleted = true
	s.reset = nil
	return nil
}

type memoryCSRFStore struct {
	values map[string]string
}

func newMemoryCSRFStore() *memoryCSRFStore {
	return &memoryCSRFStore{values: make(map[string]string)}
}

func (s *memoryCSRFStore) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	s.values[key] = value
	return nil
}

func (s *memoryCSRFStore) GetString(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", appErrors.ErrCacheMiss
	}
	return value, nil
}

func (s *memoryCSRFStore) Delete(ctx context.Context, key string) error {
	delete(s.values, key)
	return nil
}

type capturingMailer struct {
	email string
	token string
}

func (m *capturingMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.email = email
	m.token = token
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthFixture(t *testing.T) (*AuthService, *stubAuthStudents, *stubAuthAdmins, *stubResetRepo, *memoryCSRFStore, *capturingMailer, *stubAuditRecorder) {
	students := &stubAuthStudents{student: &models.Student{
		ID: 1, FullName: "Student One", SchoolID: "S-001", Course: "BSIT", Year: "1st Year",
		Email: "one@example.com", PasswordHash: hashPassword(t, "secret123"),
	}}
	admins := &stubAuthAdmins{admin: &models.Admin{
		ID: 5, Username: "admin", FullName: "Admin", PasswordHash: hashPassword(t, "adminpass"),
	}}
	resets := &stubResetRepo{}
	store := newMemoryCSRFStore()
	mailer := &capturingMailer{}
	audit := &stubAuditRecorder{}
	svc := NewAuthService(students, admins, resets, store, mailer, audit, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "teval-api",
		CSRFTokenTTL:       time.Hour,
		ResetTokenTTL:      time.Hour,
	})
	return svc, students, admins, resets, store, mailer, audit
}

func TestAuthServiceStudentLogin(t *testing.T) {
	svc, _, _, _, store, _, audit := newAuthFixture(t)

	res, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.CSRFToken)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	assert.Equal(t, "BSIT", res.User.Course)

	// The CSRF secret lands under the role-scoped key.
	stored, err := store.GetString(context.Background(), "csrf:student:1")
	require.NoError(t, err)
	assert.Equal(t, res.CSRFToken, stored)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionStudentLogin, audit.entries[0].Action)
}

func TestAuthServiceStudentLoginWrongPassword(t *testing.T) {
	svc, _, _, _, _, _, audit := newAuthFixture(t)

	_, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Empty(t, audit.entries)
}

func TestAuthServiceStudentLoginUnknownSchoolID(t *testing.T) {
	svc, _, _, _, _, _, _ := newAuthFixture(t)

	_, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-404", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceAdminLogin(t *testing.T) {
	svc, _, _, _, store, _, _ := newAuthFixture(t)

	res, err := svc.AdminLogin(context.Background(), models.AdminLoginRequest{Username: "admin", Password: "adminpass"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)

	stored, err := store.GetString(context.Background(), "csrf:admin:5")
	require.NoError(t, err)
	assert.Equal(t, res.CSRFToken, stored)
}

func TestAuthServiceRefresh(t *testing.T) {
	svc, _, _, _, store, _, _ := newAuthFixture(t)

	login, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, login.RefreshToken)

	res, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "BSIT", res.User.Course)

	// The CSRF secret rotates with the token pair.
	stored, err := store.GetString(context.Background(), "csrf:student:1")
	require.NoError(t, err)
	assert.Equal(t, res.CSRFToken, stored)
}

func TestAuthServiceRefreshRejectsAccessToken(t *testing.T) {
	svc, _, _, _, _, _, _ := newAuthFixture(t)

	login, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: login.AccessToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenCannotAccessResources(t *testing.T) {
	svc, _, _, _, _, _, _ := newAuthFixture(t)

	login, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshUnknownPrincipal(t *testing.T) {
	svc, students, _, _, _, _, _ := newAuthFixture(t)

	login, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)

	students.student = nil
	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceVerifyCSRF(t *testing.T) {
	svc, _, _, _, _, _, _ := newAuthFixture(t)

	res, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.VerifyCSRF(context.Background(), models.RoleStudent, 1, res.CSRFToken))

	err = svc.VerifyCSRF(context.Background(), models.RoleStudent, 1, "forged")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCSRF.Code, appErrors.FromError(err).Code)

	// No secret stored for this principal at all.
	err = svc.VerifyCSRF(context.Background(), models.RoleStudent, 42, res.CSRFToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCSRF.Code, appErrors.FromError(err).Code)

	err = svc.VerifyCSRF(context.Background(), models.RoleStudent, 1, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCSRF.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutDropsCSRFSecret(t *testing.T) {
	svc, _, _, _, store, _, _ := newAuthFixture(t)

	res, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), models.RoleStudent, 1))
	_, err = store.GetString(context.Background(), "csrf:student:1")
	require.Error(t, err)

	err = svc.VerifyCSRF(context.Background(), models.RoleStudent, 1, res.CSRFToken)
	require.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc, _, _, _, _, _, _ := newAuthFixture(t)

	res, err := svc.StudentLogin(context.Background(), models.StudentLoginRequest{SchoolID: "S-001", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.AccessToken + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, students, _, _, _, _, audit := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), models.RoleStudent, 1, models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "newsecret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, students.updated)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionPasswordChange, audit.entries[0].Action)
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	svc, students, _, _, _, _, _ := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), models.RoleStudent, 1, models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "newsecret",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, students.updated)
}

func TestAuthServicePasswordResetFlow(t *testing.T) {
	svc, students, _, resets, _, mailer, _ := newAuthFixture(t)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Identifier: "S-001"}))
	require.NotNil(t, resets.reset)
	assert.NotEmpty(t, mailer.token)
	// Only the hash is persisted.
	assert.NotEqual(t, mailer.token, resets.reset.TokenHash)

	err := svc.ConfirmPasswordReset(context.Background(), models.ConfirmResetPasswordRequest{
		StudentID:   1,
		Token:       mailer.token,
		NewPassword: "brandnew",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, students.updated)
	assert.True(t, resets.deleted)
}

func TestAuthServicePasswordResetUnknownIdentifier(t *testing.T) {
	svc, _, _, resets, _, mailer, _ := newAuthFixture(t)

	// Unknown identifiers are silently accepted so the endpoint does not
	// reveal which accounts exist.
	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Identifier: "nobody@example.com"}))
	assert.Nil(t, resets.reset)
	assert.Empty(t, mailer.token)
}

func TestAuthServicePasswordResetExpiredToken(t *testing.T) {
	svc, _, _, resets, _, mailer, _ := newAuthFixture(t)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Identifier: "S-001"}))
	resets.reset.ExpiresAt = time.Now().UTC().Add(-time.Minute)

	err := svc.ConfirmPasswordReset(context.Background(), models.ConfirmResetPasswordRequest{
		StudentID:   1,
		Token:       mailer.token,
		NewPassword: "brandnew",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServicePasswordResetWrongToken(t *testing.T) {
	svc, students, _, _, _, _, _ := newAuthFixture(t)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Identifier: "S-001"}))

	err := svc.ConfirmPasswordReset(context.Background(), models.ConfirmResetPasswordRequest{
		StudentID:   1,
		Token:       "guessed-token",
		NewPassword: "brandnew",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, students.updated)
}
