package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/duynhne/identity-service/internal/core/domain"
)

func newContext(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc.def", "abc.def"},
		{"bearer abc", "abc"},
		{"Bearer ", ""},
		{"Basic dXNlcg==", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		c := newContext(map[string]string{"Authorization": tt.header})
		assert.Equal(t, tt.want, BearerToken(c), tt.header)
	}
}

func TestPrincipal(t *testing.T) {
	c := newContext(nil)
	assert.Nil(t, PrincipalFromGin(c))
	assert.Nil(t, PrincipalFromContext(c.Request.Context()))

	user := &domain.User{ID: "u-1", Username: "alice"}
	SetPrincipal(c, user)

	assert.Same(t, user, PrincipalFromGin(c))
	assert.Same(t, user, PrincipalFromContext(c.Request.Context()))
}

func TestGetTraceID(t *testing.T) {
	c := newContext(map[string]string{
		TraceParentHeader: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		TraceIDHeader:     "ignored",
	})
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(c))

	c = newContext(map[string]string{TraceIDHeader: "req-42"})
	assert.Equal(t, "req-42", GetTraceID(c))

	c = newContext(nil)
	assert.Len(t, GetTraceID(c), 32)
}

func TestLoggingMiddleware_EchoesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "req-7")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-7", w.Header().Get(TraceIDHeader))
}
