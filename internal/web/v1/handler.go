package v1

import (
	"errors"
	"net/http"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	logicv1 "github.com/duynhne/identity-service/internal/logic/v1"
	"github.com/duynhne/identity-service/middleware"
)

const (
	msgInvalidBody     = "Invalid request body"
	msgBotCheckFailed  = "reCAPTCHA verification failed"
	msgInvalidLogin    = "Invalid credentials"
	msgUnauthenticated = "Invalid or expired session"
	msgInvalidCode     = "Invalid or expired code"
	msgUserNotFound    = "User not found"
	msgUnavailable     = "Service temporarily unavailable"
	msgInternal        = "Internal server error"
	msgResetRequested  = "If the email is registered, a reset code has been sent"
	msgCodeValid       = "Code is valid"
	msgPasswordReset   = "Password has been reset"
	msgLoggedOut       = "Logged out"
	msgRegistered      = "User registered"
	msgLoggedIn        = "Login successful"
	msgEmailTaken      = "Email is already registered"
	msgUsernameTaken   = "Username is already taken"
)

// Handler groups HTTP handlers for the auth API v1.
// Dependencies are injected via the constructor, no global state.
type Handler struct {
	auth *logicv1.AuthService
}

// NewHandler creates a new Handler with the given AuthService.
func NewHandler(auth *logicv1.AuthService) *Handler {
	return &Handler{auth: auth}
}

// RegisterRoutes registers all auth routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/request-password-reset", h.RequestPasswordReset)
	auth.POST("/verify-reset-code", h.VerifyResetCode)
	auth.POST("/reset-password", h.ResetPassword)

	protected := auth.Group("", h.RequireSession())
	protected.POST("/logout", h.Logout)
	protected.GET("/me", h.GetMe)
}

// RequireSession rejects requests without a valid bearer session and
// exposes the authenticated user to later handlers.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.BearerToken(c)
		user, err := h.auth.Me(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		middleware.SetPrincipal(c, user)
		c.Next()
	}
}

func startSpan(c *gin.Context) trace.Span {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
	c.Request = c.Request.WithContext(ctx)
	return span
}

func bind(c *gin.Context, span trace.Span, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: msgInvalidBody})
		return false
	}
	span.SetAttributes(attribute.Bool("request.valid", true))
	return true
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var body registerBody
	if !bind(c, span, &body) {
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), body.toRequest())
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, envelope{Success: true, Message: msgRegistered, Data: resp})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var body loginBody
	if !bind(c, span, &body) {
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), body.toRequest())
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}

	logger := pkgzerolog.FromContext(c.Request.Context())
	logger.Info().Str("user_id", resp.User.ID).Msg("Login successful")
	c.JSON(http.StatusOK, envelope{Success: true, Message: msgLoggedIn, Data: resp})
}

// Logout handles POST /auth/logout.
// Authorization: Bearer <token>
func (h *Handler) Logout(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	if err := h.auth.Logout(c.Request.Context(), middleware.BearerToken(c)); err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: msgLoggedOut})
}

// GetMe handles GET /auth/me.
// Authorization: Bearer <token>
func (h *Handler) GetMe(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	user := middleware.PrincipalFromGin(c)
	if user == nil {
		writeError(c, errors.New("session principal missing"))
		return
	}
	span.SetAttributes(attribute.String("user.id", user.ID))
	c.JSON(http.StatusOK, envelope{Success: true, Data: userData{User: user}})
}

// RequestPasswordReset handles POST /auth/request-password-reset. The
// response is identical for known and unknown emails.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var body resetRequestBody
	if !bind(c, span, &body) {
		return
	}

	token := firstNonEmpty(body.RecaptchaToken, body.GRecaptchaResponse)
	if err := h.auth.RequestPasswordReset(c.Request.Context(), body.Email, token); err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: msgResetRequested})
}

// VerifyResetCode handles POST /auth/verify-reset-code.
func (h *Handler) VerifyResetCode(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var body verifyCodeBody
	if !bind(c, span, &body) {
		return
	}

	ok, err := h.auth.VerifyResetCode(c.Request.Context(), body.Email, body.Code)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: msgInvalidCode})
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: msgCodeValid})
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	span := startSpan(c)
	defer span.End()

	var body resetPasswordBody
	if !bind(c, span, &body) {
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), body.Email, body.Code, body.NewPassword); err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: msgPasswordReset})
}

// writeError maps logic errors to status codes and safe messages. Internal
// details are logged, never returned.
func writeError(c *gin.Context, err error) {
	logger := pkgzerolog.FromContext(c.Request.Context())

	var verr *logicv1.ValidationError
	status, msg := http.StatusInternalServerError, msgInternal
	switch {
	case errors.As(err, &verr):
		status, msg = http.StatusBadRequest, verr.Message
	case errors.Is(err, logicv1.ErrEmailTaken):
		status, msg = http.StatusBadRequest, msgEmailTaken
	case errors.Is(err, logicv1.ErrUsernameTaken):
		status, msg = http.StatusBadRequest, msgUsernameTaken
	case errors.Is(err, logicv1.ErrBotCheckFailed):
		status, msg = http.StatusBadRequest, msgBotCheckFailed
	case errors.Is(err, logicv1.ErrInvalidOrExpiredCode):
		status, msg = http.StatusBadRequest, msgInvalidCode
	case errors.Is(err, logicv1.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, msgInvalidLogin
	case errors.Is(err, logicv1.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, msgUnauthenticated
	case errors.Is(err, logicv1.ErrUserNotFound):
		status, msg = http.StatusNotFound, msgUserNotFound
	case errors.Is(err, logicv1.ErrServiceUnavailable):
		status, msg = http.StatusServiceUnavailable, msgUnavailable
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	c.JSON(status, envelope{Success: false, Message: msg})
}
