package v1

import (
	"github.com/duynhne/identity-service/internal/core/domain"
)

// envelope is the response body of every auth route.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type registerBody struct {
	FirstName          string `json:"firstName"`
	LastName           string `json:"lastName"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	RecaptchaToken     string `json:"recaptchaToken"`
	GRecaptchaResponse string `json:"g-recaptcha-response"`
}

func (b registerBody) toRequest() domain.RegisterRequest {
	return domain.RegisterRequest{
		FirstName:      b.FirstName,
		LastName:       b.LastName,
		Username:       b.Username,
		Email:          b.Email,
		Password:       b.Password,
		RecaptchaToken: firstNonEmpty(b.RecaptchaToken, b.GRecaptchaResponse),
	}
}

type loginBody struct {
	Login              string `json:"login"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	RecaptchaToken     string `json:"recaptchaToken"`
	GRecaptchaResponse string `json:"g-recaptcha-response"`
}

func (b loginBody) toRequest() domain.LoginRequest {
	return domain.LoginRequest{
		Login:          firstNonEmpty(b.Login, b.Email),
		Password:       b.Password,
		RecaptchaToken: firstNonEmpty(b.RecaptchaToken, b.GRecaptchaResponse),
	}
}

type resetRequestBody struct {
	Email              string `json:"email"`
	RecaptchaToken     string `json:"recaptchaToken"`
	GRecaptchaResponse string `json:"g-recaptcha-response"`
}

type verifyCodeBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordBody struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type userData struct {
	User *domain.User `json:"user"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
