package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"post-planner/interfaces/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "s3cret"

func init() {
	gin.SetMode(gin.TestMode)
}

func guarded(secretKey string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Auth(secretKey))
	r.GET("/posts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "subject": c.GetString(middleware.ContextSubject)})
	})
	return r
}

func sign(t *testing.T, claims jwt.StandardClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func call(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	w := call(guarded(""), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_ValidToken(t *testing.T) {
	token := sign(t, jwt.StandardClaims{Subject: "ui", ExpiresAt: time.Now().Add(time.Hour).Unix()}, secret)
	w := call(guarded(secret), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":"ui"`)
}

func TestAuth_Rejections(t *testing.T) {
	expired := sign(t, jwt.StandardClaims{Subject: "ui", ExpiresAt: time.Now().Add(-time.Hour).Unix()}, secret)
	wrongKey := sign(t, jwt.StandardClaims{Subject: "ui"}, "other")

	cases := map[string]struct {
		header string
		msg    string
	}{
		"missing":   {"", "missing bearer token"},
		"no scheme": {expired, "missing bearer token"},
		"garbage":   {"Bearer not-a-token", "malformed token"},
		"expired":   {"Bearer " + expired, "token expired or not yet valid"},
		"wrong key": {"Bearer " + wrongKey, "invalid token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := call(guarded(secret), tc.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tc.msg)
		})
	}
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(middleware.ContextRequestID)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := w.Header().Get("X-Request-ID")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, w.Body.String())

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", given)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, given, w.Header().Get("X-Request-ID"))
}

func TestRequestLogger_RecoversPanics(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestLogger())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := middleware.NewIPRateLimiter(2, time.Second, 2, time.Minute).WithNowFunc(func() time.Time { return now })

	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.False(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("5.6.7.8"))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("1.2.3.4"))
}

func TestRateLimit_Middleware(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := middleware.NewIPRateLimiter(1, time.Minute, 1, time.Minute).WithNowFunc(func() time.Time { return now })
	r := gin.New()
	r.Use(middleware.RateLimit(limiter))
	r.GET("/auth/authorize", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/authorize", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/authorize", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
