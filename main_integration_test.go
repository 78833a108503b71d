package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"syscall"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
)

const (
	testAppBinary         = "./studyhub_test_app"
	testAppPort           = "8089"
	testServiceApiPortApi = "8091"
	testServiceApiPortBg  = "8092"
	testAppURL            = "http://localhost:" + testAppPort
	testServiceApiURL     = "http://localhost:" + testServiceApiPortApi
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"

	testJwtSecret     = "integration-test-secret"
	testAdminEmail    = "admin@studyhub.test"
	testAdminPassword = "integration admin password"
)

// TestMain builds the binary and runs an API and a worker process against a
// shared Redis. Both use the in-memory store, so tests only rely on state
// held by the API process and on emails that travel through Redis.
func TestMain(m *testing.M) {
	_ = godotenv.Load()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		log.Println("Integration tests skipped: set INTEGRATION_TESTS=1 to run them")
		return
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	pingErr := rdb.Ping(pingCtx).Err()
	cancel()
	_ = rdb.Close()
	if pingErr != nil {
		log.Printf("Integration tests skipped: Redis at %s is not reachable: %v", redisAddr, pingErr)
		return
	}

	defer func() {
		_ = os.Remove(testAppBinary)
	}()

	log.Println("Integration Test Setup: Building application...")
	buildCmd := exec.Command("go", "build", "-o", testAppBinary, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(out))
		os.Exit(1)
	}

	adminHash, err := auth.HashPassword(testAdminPassword)
	if err != nil {
		log.Printf("Failed to hash admin password: %v", err)
		os.Exit(1)
	}
	commonEnv := []string{
		"STORE_DRIVER=memory",
		"JWT_SECRET="+testJwtSecret,
		"GIN_MODE=release",
		"MOCK_SERVICES=true",
		"REDIS_ADDR="+redisAddr,
		"SMTP_FROM_ADDRESS=test@example.com",
		"PUBLIC_SITE_URL=https://studyhub.test",
		"RECAPTCHA_SECRET_KEY=",
	}
	processEnv := func(extra ...string) []string {
		env := append([]string{}, os.Environ()...)
		env = append(env, commonEnv...)
		return append(env, extra...)
	}

	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = processEnv(
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+testServiceApiPortApi,
		"ADMIN_EMAIL="+testAdminEmail,
		"ADMIN_PASSWORD_HASH="+adminHash,
		"RATE_LIMIT_SOFT_BUCKET_SIZE=50",
		"RATE_LIMIT_SOFT_REFILL_RATE=50",
		"RATE_LIMIT_HARD_BUCKET_SIZE=100",
		"RATE_LIMIT_HARD_REFILL_RATE=100",
	)
	apiCmd.Stderr = os.Stderr
	apiCmd.Stdout = os.Stdout

	bgCmd := exec.Command(testAppBinary, "-m", "bg")
	bgCmd.Env = processEnv("SERVICE_API_PORT=" + testServiceApiPortBg)
	bgCmd.Stderr = os.Stderr
	bgCmd.Stdout = os.Stdout

	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		os.Exit(1)
	}
	if err := bgCmd.Start(); err != nil {
		_ = apiCmd.Process.Kill()
		log.Printf("Failed to start background worker process: %v", err)
		os.Exit(1)
	}
	defer func() {
		for _, cmd := range []*exec.Cmd{bgCmd, apiCmd} {
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				_ = cmd.Process.Kill()
				continue
			}
			_, _ = cmd.Process.Wait()
		}
		log.Println("Integration Test Teardown: application processes stopped.")
	}()

	if !waitForPing() {
		log.Printf("Application failed to start within %v", startupTimeout)
		return
	}
	// The worker has no health endpoint.
	time.Sleep(2 * time.Second)

	exitCode := m.Run()
	log.Printf("Integration Test Teardown: tests finished with exit code %d.", exitCode)
}

func waitForPing() bool {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(pingEndpoint)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK && string(body) == "pong" {
				return true
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

// doRequest sends a JSON request to the main API and decodes the JSON answer.
func doRequest(t *testing.T, method, path, token string, body any, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, testAppURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	// Without a reCAPTCHA secret every challenge passes, which keeps the
	// soft rate limit out of the way.
	req.Header.Set("X-C-V", "integration")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "response was %s", string(raw))
	}
	return resp.StatusCode, out
}

// getEmailFromServiceAPI waits for the worker to deliver templateID to addr.
func getEmailFromServiceAPI(t *testing.T, templateID, addr string) map[string]interface{} {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"method":    "getTestEmail",
		"arguments": []string{templateID, addr},
	})
	require.NoError(t, err)

	var last string
	for attempt := 0; attempt < 5; attempt++ {
		resp, err := http.Post(testServiceApiURL+"/api", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			var out struct {
				Data map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(raw, &out))
			return out.Data
		}
		last = string(raw)
	}
	t.Fatalf("email %s for %s never arrived: %s", templateID, addr, last)
	return nil
}

func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestIntegration_BookingAcknowledgement(t *testing.T) {
	studentEmail := fmt.Sprintf("student_%d@example.com", time.Now().UnixNano())
	status, body := doRequest(t, http.MethodPost, "/v1/bookings", "", map[string]interface{}{
		"student_name":        "Asha Gurung",
		"student_email":       studentEmail,
		"student_phone":       "+977 1234",
		"agrees_to_terms":     true,
		"agrees_to_marketing": true,
	}, nil)
	require.Equal(t, http.StatusCreated, status, "%v", body)
	booking := body["data"].(map[string]interface{})
	reference := booking["reference_code"].(string)

	mail := getEmailFromServiceAPI(t, notify.TemplateBookingReceived, studentEmail)
	assert.Equal(t, studentEmail, mail["to"])
	assert.Contains(t, mail["subject"], reference)
}

func TestIntegration_AgentOnboarding(t *testing.T) {
	status, body := doRequest(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": testAdminEmail, "password": testAdminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, status, "%v", body)
	adminToken := body["data"].(map[string]interface{})["token"].(string)

	agentEmail := fmt.Sprintf("agent_%d@example.com", time.Now().UnixNano())
	status, body = doRequest(t, http.MethodPost, "/v1/admin/agents", adminToken, map[string]string{
		"email": agentEmail, "contact_person": "Ravi", "company_name": "Everest Education",
	}, nil)
	require.Equal(t, http.StatusCreated, status, "%v", body)

	// Inactive agents cannot log in yet.
	status, _ = doRequest(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": agentEmail, "password": "agent password 1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	mail := getEmailFromServiceAPI(t, notify.TemplateAgentInvitation, agentEmail)
	link := regexp.MustCompile(`https://studyhub\.test/agents/activate\?\S+`).FindString(mail["body"].(string))
	require.NotEmpty(t, link, "activation link missing from %v", mail["body"])
	parsed, err := url.Parse(link)
	require.NoError(t, err)

	status, body = doRequest(t, http.MethodPost, "/v1/agents/activate", "", map[string]string{
		"email": agentEmail, "token": parsed.Query().Get("token"), "password": "agent password 1",
	}, nil)
	require.Equal(t, http.StatusOK, status, "%v", body)
	assert.NotContains(t, body["data"], "password_hash")

	status, body = doRequest(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": agentEmail, "password": "agent password 1",
	}, nil)
	require.Equal(t, http.StatusOK, status, "%v", body)
	assert.Equal(t, auth.RoleAgent, body["data"].(map[string]interface{})["role"])
}
