package domain

import "time"

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an identity record. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is one authenticated device or browser instance.
// Only the SHA-256 of the bearer token is persisted.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the session is no longer valid at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// PasswordResetRecord is one outstanding password reset attempt.
type PasswordResetRecord struct {
	ID        string
	Email     string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// IsLiveAt reports whether the record can still be verified or consumed at t.
func (r *PasswordResetRecord) IsLiveAt(t time.Time) bool {
	return !r.Used && t.Before(r.ExpiresAt)
}

// RegisterRequest carries registration input into the logic layer.
type RegisterRequest struct {
	FirstName      string
	LastName       string
	Username       string
	Email          string
	Password       string
	RecaptchaToken string
}

// LoginRequest carries login input. Login is an email or a username.
type LoginRequest struct {
	Login          string
	Password       string
	RecaptchaToken string
}

// AuthResponse is returned by successful register and login calls.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
