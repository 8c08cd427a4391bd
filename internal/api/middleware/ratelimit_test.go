package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greendrake/chambers/internal/api/middleware"
	"greendrake/chambers/internal/captcha"
	"greendrake/chambers/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockTurnstileVerifier implements captcha.ITurnstileVerifier
type MockTurnstileVerifier struct {
	mock.Mock
}

func (m *MockTurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	args := m.Called(ctx, token, remoteIP)
	return args.Bool(0), args.Error(1)
}
func (m *MockTurnstileVerifier) GenerateHumanToken(userID, ip, fingerprint, spaSession string, ttl time.Duration) (string, error) {
	args := m.Called(userID, ip, fingerprint, spaSession, ttl)
	return args.String(0), args.Error(1)
}
func (m *MockTurnstileVerifier) ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool {
	args := m.Called(tokenString, ip, fingerprint, spaSession)
	return args.Bool(0)
}

func setupTestEngine(t *testing.T, cfg *config.Config, verifier captcha.ITurnstileVerifier) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	t.Cleanup(rateLimiter.Stop)
	r.Use(middleware.CaptchaMiddleware(cfg, verifier))
	r.GET("/test", rateLimiter.Limit(), func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/other", rateLimiter.Limit(), func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r, rateLimiter
}

func get(r http.Handler, path, ip string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterMiddleware_HardLimit(t *testing.T) {
	cfg := &config.Config{
		RateLimitHardRefillRate: 1,
		RateLimitHardBucketSize: 1,
		RateLimitSoftRefillRate: 10,
		RateLimitSoftBucketSize: 10,
	}
	router, _ := setupTestEngine(t, cfg, new(MockTurnstileVerifier))

	assert.Equal(t, http.StatusOK, get(router, "/test", "1.2.3.4", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "/test", "1.2.3.4", nil).Code)

	// Buckets are per route and per client.
	assert.Equal(t, http.StatusOK, get(router, "/other", "1.2.3.4", nil).Code)
	assert.Equal(t, http.StatusOK, get(router, "/test", "1.2.3.5", nil).Code)
}

func TestRateLimiterMiddleware_SoftLimit_CaptchaRequired(t *testing.T) {
	cfg := &config.Config{
		RateLimitHardRefillRate: 10,
		RateLimitHardBucketSize: 10,
		RateLimitSoftRefillRate: 1,
		RateLimitSoftBucketSize: 1,
	}
	router, _ := setupTestEngine(t, cfg, new(MockTurnstileVerifier))

	assert.Equal(t, http.StatusOK, get(router, "/test", "5.6.7.8", nil).Code)

	w := get(router, "/test", "5.6.7.8", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Contains(t, respBody["error"], "Captcha validation required")
}

func TestRateLimiterMiddleware_SoftLimit_BypassWithCaptchaHeader(t *testing.T) {
	cfg := &config.Config{
		RateLimitHardRefillRate: 10,
		RateLimitHardBucketSize: 10,
		RateLimitSoftRefillRate: 1,
		RateLimitSoftBucketSize: 1,
	}
	mockVerifier := new(MockTurnstileVerifier)
	mockVerifier.On("ValidateHumanToken", "valid-turnstile-token", "9.1.2.3", "", "").Return(true)
	router, _ := setupTestEngine(t, cfg, mockVerifier)

	assert.Equal(t, http.StatusOK, get(router, "/test", "9.1.2.3", nil).Code)
	assert.Equal(t, http.StatusOK, get(router, "/test", "9.1.2.3", map[string]string{"X-C-T": "valid-turnstile-token"}).Code)
	mockVerifier.AssertExpectations(t)
	mockVerifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestRateLimiterMiddleware_LimitWith(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := middleware.NewRateLimiterMiddleware(&config.Config{})
	t.Cleanup(rl.Stop)
	r := gin.New()
	r.POST("/login", rl.LimitWith(middleware.Limits{SoftRate: 1, SoftBurst: 2, HardRate: 1, HardBurst: 5}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "7.7.7.7:1"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTeapot}, codes)
}
