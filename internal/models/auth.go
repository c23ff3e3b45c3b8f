package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole distinguishes the two principals of the system.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleAdmin   UserRole = "ADMIN"
)

// Admin represents a back-office user.
type Admin struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	FullName     string    `db:"fullname" json:"fullname"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StudentLoginRequest holds credentials for a student login.
type StudentLoginRequest struct {
	SchoolID  string `json:"school_id" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AdminLoginRequest holds credentials for an admin login.
type AdminLoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token, the per-session CSRF secret and
// principal info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	CSRFToken    string    `json:"csrf_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserInfo describes the authenticated principal in responses.
type UserInfo struct {
	ID       int64    `json:"id"`
	FullName string   `json:"fullname"`
	Role     UserRole `json:"role"`
	Course   string   `json:"course,omitempty"`
	Year     string   `json:"year,omitempty"`
}

// ChangePasswordRequest payload for updating the caller's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ResetPasswordRequest initiates the student reset flow.
type ResetPasswordRequest struct {
	Identifier string `json:"identifier" validate:"required"` // school_id or email
}

// ConfirmResetPasswordRequest completes the reset flow.
type ConfirmResetPasswordRequest struct {
	StudentID   int64  `json:"student_id" validate:"required,gt=0"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// PasswordReset is the pending reset token for a student. Only the hash of
// the token is stored.
type PasswordReset struct {
	StudentID int64     `db:"student_id" json:"student_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// JWTClaims represents the JWT payload for access tokens. Course and year are
// carried for students so eligibility checks need no extra lookup, but the
// submission workflow re-reads them from storage before writing.
type JWTClaims struct {
	UserID   int64    `json:"user_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"fullname"`
	Course   string   `json:"course,omitempty"`
	Year     string   `json:"year,omitempty"`
	TokenUse string   `json:"token_use,omitempty"`
	jwt.RegisteredClaims
}
