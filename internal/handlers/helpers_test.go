package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/auth"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/clock"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/config"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/repositories"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/services"
	pkgauth "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/auth"
	pkghttp "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/http"
	pkglogger "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CaptureSink records attempts in memory for assertions. It doubles as
// the dependency health probe.
type CaptureSink struct {
	mu        sync.Mutex
	Attempts  []*models.LoginAttempt
	RecordErr error
	PingErr   error
}

func (s *CaptureSink) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.Attempts = append(s.Attempts, attempt)
	return nil
}

func (s *CaptureSink) Ping(ctx context.Context) error {
	return s.PingErr
}

func (s *CaptureSink) Recorded() []*models.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.LoginAttempt, len(s.Attempts))
	copy(out, s.Attempts)
	return out
}

// TestApp bundles a fully wired service for handler tests
type TestApp struct {
	Service *services.AuthService
	Sink    *CaptureSink
	Clock   *clock.Manual
}

// DefaultTestConfig returns permissive thresholds so individual tests
// tighten only the knob under test
func DefaultTestConfig() config.BruteForceConfig {
	return config.BruteForceConfig{
		PerUserWindow:      time.Minute,
		MaxAttemptsPerUser: 100,
		LockoutThreshold:   100,
		LockoutWindow:      5 * time.Minute,
		LockoutDuration:    10 * time.Minute,
		AuditTimeout:       2 * time.Second,
	}
}

// NewTestApp wires the orchestrator against an in-memory credential
// store seeded with alice/Password1 and a capture sink
func NewTestApp(t *testing.T, cfg config.BruteForceConfig) *TestApp {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sink := &CaptureSink{}
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	users := repositories.NewMemoryUserRepository()
	hash, err := pkgauth.HashPassword("Password1")
	require.NoError(t, err)
	_, err = users.Create(context.Background(), &models.User{Username: "alice", PasswordHash: hash})
	require.NoError(t, err)

	issuer := auth.NewTokenManager("test-secret-at-least-16-chars", 15*time.Minute, 7*24*time.Hour)

	service := services.NewAuthService(
		users, sink, sink, issuer, cfg, clk,
		logger, pkglogger.NewAuditLogger(logger),
	)

	return &TestApp{Service: service, Sink: sink, Clock: clk}
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}
