package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movesintl/moves-study-hub-sub001/internal/captcha"
	"github.com/movesintl/moves-study-hub-sub001/internal/config"
)

// MockVerifier implements captcha.IVerifier.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	args := m.Called(ctx, token, remoteIP)
	return args.Bool(0), args.Error(1)
}

func (m *MockVerifier) GenerateHumanToken(ip, fingerprint, spaSession string, ttl time.Duration) (string, error) {
	args := m.Called(ip, fingerprint, spaSession, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockVerifier) ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool {
	args := m.Called(tokenString, ip, fingerprint, spaSession)
	return args.Bool(0)
}

func setupCaptchaTestEngine(cfg *config.Config, verifier captcha.IVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CaptchaMiddleware(cfg, verifier))
	r.GET("/test", func(c *gin.Context) {
		isHuman, err := HumanVerified(c)
		c.JSON(http.StatusOK, gin.H{"is_human": isHuman, "unavailable": err != nil, "xct": c.Writer.Header().Get("X-C-T")})
	})
	return r
}

func serveCaptcha(t *testing.T, router *gin.Engine, ip string, headers map[string]string) map[string]interface{} {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = ip + ":12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCaptchaMiddleware_NoHeaders(t *testing.T) {
	verifier := new(MockVerifier)
	body := serveCaptcha(t, setupCaptchaTestEngine(&config.Config{}, verifier), "1.1.1.1", nil)

	assert.False(t, body["is_human"].(bool))
	assert.Empty(t, body["xct"])
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
	verifier.AssertNotCalled(t, "ValidateHumanToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCaptchaMiddleware_ValidXCV(t *testing.T) {
	cfg := &config.Config{CaptchaTokenTTL: 10 * time.Minute}
	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "challenge", "1.1.1.1").Return(true, nil)
	verifier.On("GenerateHumanToken", "1.1.1.1", "fp1", "sess1", cfg.CaptchaTokenTTL).Return("generated-xct", nil)

	body := serveCaptcha(t, setupCaptchaTestEngine(cfg, verifier), "1.1.1.1", map[string]string{
		"X-C-V": "challenge", "X-BFP": "fp1", "X-SPA": "sess1",
	})
	assert.True(t, body["is_human"].(bool))
	assert.Equal(t, "generated-xct", body["xct"])
	verifier.AssertExpectations(t)
}

func TestCaptchaMiddleware_InvalidXCV(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "bad", "2.2.2.2").Return(false, nil)

	body := serveCaptcha(t, setupCaptchaTestEngine(&config.Config{}, verifier), "2.2.2.2", map[string]string{"X-C-V": "bad"})
	assert.False(t, body["is_human"].(bool))
	assert.False(t, body["unavailable"].(bool))
	assert.Empty(t, body["xct"])
	verifier.AssertNotCalled(t, "GenerateHumanToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCaptchaMiddleware_VerifierUnavailable(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "challenge", "2.2.2.2").Return(false, errors.New("timeout"))

	body := serveCaptcha(t, setupCaptchaTestEngine(&config.Config{}, verifier), "2.2.2.2", map[string]string{"X-C-V": "challenge"})
	assert.False(t, body["is_human"].(bool))
	assert.True(t, body["unavailable"].(bool))
}

func TestCaptchaMiddleware_ValidXCT(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("ValidateHumanToken", "xct", "3.3.3.3", "fp2", "sess2").Return(true)

	body := serveCaptcha(t, setupCaptchaTestEngine(&config.Config{}, verifier), "3.3.3.3", map[string]string{
		"X-C-T": "xct", "X-C-V": "ignored", "X-BFP": "fp2", "X-SPA": "sess2",
	})
	assert.True(t, body["is_human"].(bool))
	assert.Empty(t, body["xct"])
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestCaptchaMiddleware_InvalidXCT(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("ValidateHumanToken", "stale", "4.4.4.4", "", "").Return(false)

	body := serveCaptcha(t, setupCaptchaTestEngine(&config.Config{}, verifier), "4.4.4.4", map[string]string{"X-C-T": "stale"})
	assert.False(t, body["is_human"].(bool))
	verifier.AssertExpectations(t)
}
