package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pet_chat/internal/config"
	"pet_chat/pkg/jwt"
	"pet_chat/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": int64(UserIDFromContext(c))})
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "pet-chat"}
	token, err := jwt.GenerateAccessToken(42, cfg.Secret, cfg.Issuer, time.Minute)
	require.NoError(t, err)
	foreign, err := jwt.GenerateAccessToken(42, "other", cfg.Issuer, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name     string
		required bool
		header   string
		query    string
		wantCode int
		wantBody string
	}{
		{"optional without token", false, "", "", http.StatusOK, `{"user_id":0}`},
		{"optional with bearer", false, "Bearer " + token, "", http.StatusOK, `{"user_id":42}`},
		{"optional with query token", false, "", token, http.StatusOK, `{"user_id":42}`},
		{"optional with bad token", false, "Bearer " + foreign, "", http.StatusOK, `{"user_id":0}`},
		{"required without token", true, "", "", http.StatusUnauthorized, ""},
		{"required with bad token", true, "", foreign, http.StatusUnauthorized, ""},
		{"required with token", true, "bearer " + token, "", http.StatusOK, `{"user_id":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			c.Required = tt.required
			router := gin.New()
			router.GET("/ws", NewAuthMiddleware(c, logger.NewNop()).Handshake(), whoami)

			url := "/ws"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				require.JSONEq(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

type fakeRateLimiter struct {
	mu       sync.Mutex
	counts   map[string]int64
	checkErr error
}

func (f *fakeRateLimiter) CheckLimit(_ context.Context, key string, limit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.counts[key] < int64(limit), nil
}

func (f *fakeRateLimiter) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := &fakeRateLimiter{counts: map[string]int64{}}
	router := gin.New()
	router.GET("/ws", NewRateLimitMiddleware(limiter, 2, time.Minute, logger.NewNop()).Limit("ws"), whoami)

	codes := []int{}
	remaining := []string{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
		codes = append(codes, w.Code)
		remaining = append(remaining, w.Header().Get("X-RateLimit-Remaining"))
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, []string{"1", "0", "0"}, remaining)
	assert.Len(t, limiter.counts, 1)
	for key := range limiter.counts {
		assert.Contains(t, key, "ws:")
	}
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter := &fakeRateLimiter{counts: map[string]int64{}, checkErr: errors.New("redis down")}
	router := gin.New()
	router.GET("/ws", NewRateLimitMiddleware(limiter, 1, time.Minute, logger.NewNop()).Limit("ws"), whoami)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestErrorHandler(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	router.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("ignored"))
		c.JSON(http.StatusTeapot, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"boom"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	require.Equal(t, http.StatusTeapot, w.Code)
	require.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS(true))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Host = "chat.example.com"
	req.Header.Set("Origin", "https://chat.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://chat.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Host = "chat.example.com"
	req.Header.Set("Origin", "https://evil.example.net")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		origin     string
		want       bool
	}{
		{"no origin", true, "", true},
		{"development", false, "https://evil.example.net", true},
		{"same host", true, "https://chat.example.com", true},
		{"same host any case", true, "https://Chat.Example.com", true},
		{"foreign host", true, "https://evil.example.net", false},
		{"host as path suffix", true, "https://evil.example.net/://chat.example.com", false},
		{"unparsable", true, "://%zz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
			req.Host = "chat.example.com"
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, OriginAllowed(req, tt.production))
		})
	}
}
