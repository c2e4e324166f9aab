package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relay-chat/internal/domain/user"
	"relay-chat/internal/redis"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	relay_errors "relay-chat/pkg/errors"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	tokens map[string]user.Identity
}

func (s stubVerifier) VerifyConnection(_ context.Context, token string) (user.Identity, error) {
	id, ok := s.tokens[token]
	if !ok {
		return user.Identity{}, relay_errors.ErrUnauthorized
	}
	return id, nil
}

type stubLimiter struct {
	allowed map[string]bool
	err     error
	seen    []string
}

func (s *stubLimiter) AllowRequest(_ context.Context, client string) (*redis.RateLimitResult, error) {
	s.seen = append(s.seen, client)
	if s.err != nil {
		return nil, s.err
	}
	return &redis.RateLimitResult{Allowed: s.allowed[client], Limit: 10, ResetIn: 30 * time.Second}, nil
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), ErrorHandler(logger.NewNop()))
	r.Use(mw...)
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httpdto.Response[any] {
	t.Helper()
	var resp httpdto.Response[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	alice := user.Identity{UserID: uuid.New(), Username: "alice"}
	r := newRouter(AuthMiddleware(stubVerifier{tokens: map[string]user.Identity{"good": alice}}))
	r.GET("/me", func(c *gin.Context) {
		id, ok := services.IdentityFromContext(c.Request.Context())
		require.True(t, ok)
		c.String(http.StatusOK, id.UserID.String())
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer good", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"unknown token", "Bearer bad", http.StatusUnauthorized},
		{"wrong scheme", "Token good", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, alice.UserID.String(), w.Body.String())
			} else {
				assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Code)
			}
		})
	}
}

func TestErrorHandlerMapsTaxonomy(t *testing.T) {
	r := newRouter()
	r.GET("/forbidden", func(c *gin.Context) { c.Error(relay_errors.Forbidden("not yours")) })
	r.GET("/boom", func(c *gin.Context) { c.Error(errors.New("pq: connection refused")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forbidden", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeError(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "FORBIDDEN", resp.Code)
	assert.Equal(t, "not yours", resp.Error)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp = decodeError(t, w)
	assert.Equal(t, "OPERATION_FAILED", resp.Code)
	assert.NotContains(t, resp.Error, "pq")
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newRouter()
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(logger.RequestIdKey).(string)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 32)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRateLimitMiddleware(t *testing.T) {
	alice := user.Identity{UserID: uuid.New()}
	limiter := &stubLimiter{allowed: map[string]bool{alice.UserID.String(): true}}
	r := newRouter(
		AuthMiddleware(stubVerifier{tokens: map[string]user.Identity{"good": alice}}),
		RateLimitMiddleware(limiter, nil, nil),
	)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, []string{alice.UserID.String()}, limiter.seen)

	limiter.allowed = map[string]bool{}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w).Code)

	limiter.err = errors.New("redis down")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code, "a limiter outage does not block traffic")
}

func TestCORSMiddleware(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"https://app.example.com/"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://other.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
