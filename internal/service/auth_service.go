package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type authStudentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	FindBySchoolID(ctx context.Context, schoolID string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

type authAdminRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Admin, error)
	FindByUsername(ctx context.Context, username string) (*models.Admin, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

type passwordResetRepository interface {
	Upsert(ctx context.Context, reset *models.PasswordReset) error
	FindByStudent(ctx context.Context, studentID int64) (*models.PasswordReset, error)
	Delete(ctx context.Context, studentID int64) error
}

type csrfStore interface {
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Mailer delivers password reset tokens. The default implementation only
// logs; wiring a real mail provider is a deployment concern.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer logs reset tokens instead of sending mail.
type LogMailer struct {
	Logger *zap.Logger
}

// SendPasswordReset implements Mailer.
func (m LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("password reset token issued", zap.String("email", email), zap.String("token", token))
	return nil
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	CSRFTokenTTL       time.Duration
	ResetTokenTTL      time.Duration
}

// Token use claims distinguish access tokens from refresh tokens signed with
// the same secret.
const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// AuthService authenticates students and admins, issues JWT access tokens
// and the per-session CSRF secret, and runs the password flows.
type AuthService struct {
	students  authStudentRepository
	admins    authAdminRepository
	resets    passwordResetRepository
	csrf      csrfStore
	mailer    Mailer
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	students authStudentRepository,
	admins authAdminRepository,
	resets passwordResetRepository,
	csrf csrfStore,
	mailer Mailer,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
	config AuthConfig,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &AuthService{
		students:  students,
		admins:    admins,
		resets:    resets,
		csrf:      csrf,
		mailer:    mailer,
		audit:     audit,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// StudentLogin authenticates a student by school ID and password.
func (s *AuthService) StudentLogin(ctx context.Context, req models.StudentLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	student, err := s.students.FindBySchoolID(ctx, strings.TrimSpace(req.SchoolID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid school ID or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid school ID or password")
	}

	accessToken, err := s.generateToken(student.ID, models.RoleStudent, student.FullName, student.Course, student.Year, tokenUseAccess, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, err := s.generateToken(student.ID, models.RoleStudent, student.FullName, student.Course, student.Year, tokenUseRefresh, s.config.RefreshTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	csrfToken, err := s.issueCSRFToken(ctx, models.RoleStudent, student.ID)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType:  models.AuditUserStudent,
			UserID:    student.ID,
			Action:    models.AuditActionStudentLogin,
			IP:        req.IP,
			UserAgent: req.UserAgent,
		})
	}

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
		User: models.UserInfo{
			ID:       student.ID,
			FullName: student.FullName,
			Role:     models.RoleStudent,
			Course:   student.Course,
			Year:     student.Year,
		},
	}, nil
}

// AdminLogin authenticates an administrator by username and password.
func (s *AuthService) AdminLogin(ctx context.Context, req models.AdminLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	admin, err := s.admins.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch admin")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
	}

	accessToken, err := s.generateToken(admin.ID, models.RoleAdmin, admin.FullName, "", "", tokenUseAccess, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, err := s.generateToken(admin.ID, models.RoleAdmin, admin.FullName, "", "", tokenUseRefresh, s.config.RefreshTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	csrfToken, err := s.issueCSRFToken(ctx, models.RoleAdmin, admin.ID)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType:  models.AuditUserAdmin,
			UserID:    admin.ID,
			Action:    models.AuditActionAdminLogin,
			IP:        req.IP,
			UserAgent: req.UserAgent,
		})
	}

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
		User: models.UserInfo{
			ID:       admin.ID,
			FullName: admin.FullName,
			Role:     models.RoleAdmin,
		},
	}, nil
}

// Logout drops the caller's CSRF secret, invalidating further state changes
// under the current token.
func (s *AuthService) Logout(ctx context.Context, role models.UserRole, userID int64) error {
	if err := s.csrf.Delete(ctx, csrfKey(role, userID)); err != nil {
		s.logger.Warn("failed to drop CSRF secret on logout", zap.Error(err))
	}
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.TokenUse == tokenUseRefresh {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token cannot access resources")
	}

	return claims, nil
}

// Refresh exchanges a valid refresh token for a new token pair and rotates
// the CSRF secret.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	token, err := jwt.ParseWithClaims(req.RefreshToken, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid refresh token")
	}
	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.TokenUse != tokenUseRefresh {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	// Re-read the principal so revoked accounts and stale cohort data do not
	// survive a refresh.
	switch claims.Role {
	case models.RoleStudent:
		student, err := s.students.FindByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		return s.issueTokenPair(ctx, student.ID, models.RoleStudent, student.FullName, student.Course, student.Year)
	case models.RoleAdmin:
		admin, err := s.admins.FindByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
		}
		return s.issueTokenPair(ctx, admin.ID, models.RoleAdmin, admin.FullName, "", "")
	default:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}
}

func (s *AuthService) issueTokenPair(ctx context.Context, userID int64, role models.UserRole, fullName, course, year string) (*models.LoginResponse, error) {
	accessToken, err := s.generateToken(userID, role, fullName, course, year, tokenUseAccess, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refreshToken, err := s.generateToken(userID, role, fullName, course, year, tokenUseRefresh, s.config.RefreshTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	csrfToken, err := s.issueCSRFToken(ctx, role, userID)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     time.Now().UTC(),
		User: models.UserInfo{
			ID:       userID,
			FullName: fullName,
			Role:     role,
			Course:   course,
			Year:     year,
		},
	}, nil
}

// VerifyCSRF checks the presented token against the stored per-session
// secret using a constant-time comparison. A missing secret (expired session
// or never logged in) fails the check.
func (s *AuthService) VerifyCSRF(ctx context.Context, role models.UserRole, userID int64, token string) error {
	if token == "" {
		return appErrors.Clone(appErrors.ErrInvalidCSRF, "")
	}

	stored, err := s.csrf.GetString(ctx, csrfKey(role, userID))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return appErrors.Clone(appErrors.ErrInvalidCSRF, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load CSRF secret")
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return appErrors.Clone(appErrors.ErrInvalidCSRF, "")
	}
	return nil
}

// ChangePassword changes the password for the authenticated principal.
func (s *AuthService) ChangePassword(ctx context.Context, role models.UserRole, userID int64, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	switch role {
	case models.RoleStudent:
		student, err := s.students.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.OldPassword)); err != nil {
			return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
		}
		newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		if err := s.students.UpdatePassword(ctx, userID, string(newHash)); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
		}
	case models.RoleAdmin:
		admin, err := s.admins.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "admin not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.OldPassword)); err != nil {
			return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
		}
		newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		if err := s.admins.UpdatePassword(ctx, userID, string(newHash)); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
		}
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	userType := models.AuditUserStudent
	if role == models.RoleAdmin {
		userType = models.AuditUserAdmin
	}
	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: userType,
			UserID:   userID,
			Action:   models.AuditActionPasswordChange,
		})
	}
	return nil
}

// RequestPasswordReset issues a reset token for a student identified by
// school ID or email. An unknown identifier returns nil so the endpoint does
// not leak which accounts exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}

	identifier := strings.TrimSpace(req.Identifier)
	student, err := s.students.FindBySchoolID(ctx, identifier)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up student")
		}
		student, err = s.students.FindByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Info("password reset requested for unknown identifier")
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up student")
		}
	}

	token, err := randomToken()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate reset token")
	}

	reset := &models.PasswordReset{
		StudentID: student.ID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().UTC().Add(s.config.ResetTokenTTL),
	}
	if err := s.resets.Upsert(ctx, reset); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store reset token")
	}

	if err := s.mailer.SendPasswordReset(ctx, student.Email, token); err != nil {
		s.logger.Warn("failed to deliver reset token", zap.Error(err))
	}

	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserStudent,
			UserID:   student.ID,
			Action:   models.AuditActionPasswordReset,
			Details:  "token issued",
		})
	}
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, req models.ConfirmResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}

	reset, err := s.resets.FindByStudent(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "invalid or expired reset token")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reset token")
	}

	if time.Now().UTC().After(reset.ExpiresAt) {
		_ = s.resets.Delete(ctx, req.StudentID)
		return appErrors.Clone(appErrors.ErrForbidden, "invalid or expired reset token")
	}

	if subtle.ConstantTimeCompare([]byte(reset.TokenHash), []byte(hashToken(req.Token))) != 1 {
		return appErrors.Clone(appErrors.ErrForbidden, "invalid or expired reset token")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.students.UpdatePassword(ctx, req.StudentID, string(newHash)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.resets.Delete(ctx, req.StudentID); err != nil {
		s.logger.Warn("failed to drop consumed reset token", zap.Error(err))
	}

	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserStudent,
			UserID:   req.StudentID,
			Action:   models.AuditActionPasswordReset,
			Details:  "token consumed",
		})
	}
	return nil
}

func (s *AuthService) generateToken(userID int64, role models.UserRole, fullName, course, year, tokenUse string, expiry time.Duration) (string, error) {
	issuedAt := time.Now().UTC()
	claims := &models.JWTClaims{
		UserID:   userID,
		Role:     role,
		FullName: fullName,
		Course:   course,
		Year:     year,
		TokenUse: tokenUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) issueCSRFToken(ctx context.Context, role models.UserRole, userID int64) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate CSRF token")
	}
	if err := s.csrf.SetString(ctx, csrfKey(role, userID), token, s.config.CSRFTokenTTL); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store CSRF token")
	}
	return token, nil
}

func csrfKey(role models.UserRole, userID int64) string {
	return fmt.Sprintf("csrf:%s:%d", strings.ToLower(string(role)), userID)
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
