package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/identity-service/internal/core/domain"
)

const principalKey = "principal"

type principalCtxKey struct{}

// BearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is missing or malformed.
func BearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// SetPrincipal stores the authenticated user on the gin and request contexts.
func SetPrincipal(c *gin.Context, user *domain.User) {
	c.Set(principalKey, user)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), principalCtxKey{}, user))
}

// PrincipalFromGin returns the user set by SetPrincipal, or nil.
func PrincipalFromGin(c *gin.Context) *domain.User {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

// PrincipalFromContext returns the user stored on a request context, or nil.
func PrincipalFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(principalCtxKey{}).(*domain.User)
	return user
}
