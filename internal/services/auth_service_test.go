package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/auth"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/clock"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/config"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/services"
	pkgauth "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/auth"
	pkglogger "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// mockUserStore implements services.CredentialStore
type mockUserStore struct {
	users map[string]*models.User
}

func newMockUserStore(t *testing.T, credentials map[string]string) *mockUserStore {
	t.Helper()
	store := &mockUserStore{users: make(map[string]*models.User)}
	for username, password := range credentials {
		hash, err := pkgauth.HashPassword(password)
		require.NoError(t, err)
		store.users[username] = &models.User{
			ID:           username,
			Username:     username,
			PasswordHash: hash,
		}
	}
	return store
}

func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := m.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

// captureSink implements services.AttemptSink and services.DependencyHealth
type captureSink struct {
	mu        sync.Mutex
	attempts  []*models.LoginAttempt
	recordErr error
	pingErr   error
}

func (s *captureSink) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *captureSink) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *captureSink) recorded() []*models.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.LoginAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// failingIssuer implements services.SessionIssuer
type failingIssuer struct{}

func (failingIssuer) IssueTokenPair(username string) (*models.TokenPair, error) {
	return nil, errors.New("signing backend down")
}

func (failingIssuer) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	return nil, errors.New("signing backend down")
}

func testConfig() config.BruteForceConfig {
	return config.BruteForceConfig{
		PerUserWindow:      time.Minute,
		MaxAttemptsPerUser: 100,
		LockoutThreshold:   5,
		LockoutWindow:      5 * time.Minute,
		LockoutDuration:    10 * time.Minute,
		AuditTimeout:       2 * time.Second,
	}
}

type fixture struct {
	service *services.AuthService
	sink    *captureSink
	clk     *clock.Manual
}

func newFixture(t *testing.T, cfg config.BruteForceConfig, issuer services.SessionIssuer) *fixture {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sink := &captureSink{}
	clk := clock.NewManual(testStart)

	if issuer == nil {
		issuer = auth.NewTokenManager("test-secret-at-least-16-chars", 15*time.Minute, 7*24*time.Hour)
	}

	users := newMockUserStore(t, map[string]string{"alice": "Password1"})

	service := services.NewAuthService(
		users, sink, sink, issuer, cfg, clk,
		logger, pkglogger.NewAuditLogger(logger),
	)

	return &fixture{service: service, sink: sink, clk: clk}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	pair, err := f.service.Login(context.Background(), "alice", "Password1", "192.168.1.1", "test-agent")

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	attempts := f.sink.recorded()
	require.Len(t, attempts, 1)
	assert.Equal(t, "alice", attempts[0].Username)
	assert.Equal(t, "192.168.1.1", attempts[0].IPAddress)
	assert.True(t, attempts[0].Success)
	assert.Nil(t, attempts[0].FailureReason)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	pair, err := f.service.Login(context.Background(), "alice", "wrong", "192.168.1.1", "")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, pair)

	attempts := f.sink.recorded()
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Success)
	require.NotNil(t, attempts[0].FailureReason)
	assert.Equal(t, models.FailureInvalidCredentials, *attempts[0].FailureReason)
}

func TestLogin_UnknownUserSameSignalAsWrongPassword(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	_, errUnknown := f.service.Login(context.Background(), "mallory", "whatever", "10.0.0.1", "")
	_, errWrong := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")

	assert.ErrorIs(t, errUnknown, models.ErrUnauthorized)
	assert.ErrorIs(t, errWrong, models.ErrUnauthorized)
	assert.Equal(t, errUnknown, errWrong)
}

func TestLogin_EmptyUsernameRejectedWithoutAudit(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	_, err := f.service.Login(context.Background(), "  ", "Password1", "10.0.0.1", "")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Empty(t, f.sink.recorded())
}

func TestLogin_PerUserRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttemptsPerUser = 2
	f := newFixture(t, cfg, nil)

	// Correct credentials on the third attempt still hit the limiter:
	// the decision precedes credential verification.
	_, err1 := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	_, err2 := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	_, err3 := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")

	assert.ErrorIs(t, err1, models.ErrUnauthorized)
	assert.ErrorIs(t, err2, models.ErrUnauthorized)
	assert.ErrorIs(t, err3, models.ErrRateLimitExceeded)

	attempts := f.sink.recorded()
	require.Len(t, attempts, 3)
	require.NotNil(t, attempts[2].FailureReason)
	assert.Equal(t, models.FailureRateLimited, *attempts[2].FailureReason)
}

func TestLogin_RateLimitWindowSlides(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttemptsPerUser = 2
	f := newFixture(t, cfg, nil)

	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")

	f.clk.Advance(2 * time.Minute)

	pair, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestLogin_LockoutAfterThresholdFailures(t *testing.T) {
	cfg := testConfig()
	cfg.LockoutThreshold = 2
	f := newFixture(t, cfg, nil)

	_, err1 := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	_, err2 := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")

	assert.ErrorIs(t, err1, models.ErrUnauthorized)
	// The failure that reaches the threshold answers as locked
	assert.ErrorIs(t, err2, models.ErrAccountLocked)

	st := f.service.LockoutStatus(context.Background(), "alice")
	assert.True(t, st.Locked)
	assert.Equal(t, 2, st.FailureCount)
}

func TestLogin_LockedAccountRejectedBeforeCredentialCheck(t *testing.T) {
	cfg := testConfig()
	cfg.LockoutThreshold = 2
	f := newFixture(t, cfg, nil)

	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")

	// Correct password while locked is still rejected
	pair, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Nil(t, pair)

	attempts := f.sink.recorded()
	require.Len(t, attempts, 3)
	require.NotNil(t, attempts[2].FailureReason)
	assert.Equal(t, models.FailureAccountLocked, *attempts[2].FailureReason)
}

func TestLogin_AttemptWhileLockedDoesNotExtendLock(t *testing.T) {
	cfg := testConfig()
	cfg.LockoutThreshold = 2
	f := newFixture(t, cfg, nil)

	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	lockedAt := f.clk.Now()

	// Retry storm halfway through the lock
	f.clk.Advance(5 * time.Minute)
	_, err := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	assert.ErrorIs(t, err, models.ErrAccountLocked)

	st := f.service.LockoutStatus(context.Background(), "alice")
	require.True(t, st.Locked)
	assert.Equal(t, lockedAt.Add(cfg.LockoutDuration), *st.LockedUntil)
}

func TestLogin_LockExpiresWithoutUnblock(t *testing.T) {
	cfg := testConfig()
	cfg.LockoutThreshold = 2
	f := newFixture(t, cfg, nil)

	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")

	f.clk.Advance(cfg.LockoutDuration)

	assert.False(t, f.service.LockoutStatus(context.Background(), "alice").Locked)

	pair, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestLogin_SuccessResetsFailureCount(t *testing.T) {
	cfg := testConfig()
	cfg.LockoutThreshold = 3
	f := newFixture(t, cfg, nil)

	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")

	_, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")
	require.NoError(t, err)

	assert.Equal(t, 0, f.service.LockoutStatus(context.Background(), "alice").FailureCount)
}

func TestLogin_RateCheckPrecedesLockoutCheck(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttemptsPerUser = 1
	cfg.LockoutThreshold = 1
	f := newFixture(t, cfg, nil)

	// First failure locks immediately (threshold 1) and consumes the
	// only rate slot
	_, err1 := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	assert.ErrorIs(t, err1, models.ErrAccountLocked)

	// Second attempt hits the rate limiter before the lockout gate
	_, err2 := f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	assert.ErrorIs(t, err2, models.ErrRateLimitExceeded)
}

func TestLogin_SinkFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.sink.recordErr = errors.New("elasticsearch unreachable")

	pair, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestLogin_IssuerFailureSurfacedAfterStateCommit(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg, failingIssuer{})

	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")

	pair, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")

	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)
	assert.Nil(t, pair)

	// The genuine success already cleared accrued failures; issuance
	// failure does not roll that back
	assert.Equal(t, 0, f.service.LockoutStatus(context.Background(), "alice").FailureCount)

	attempts := f.sink.recorded()
	require.Len(t, attempts, 2)
	assert.True(t, attempts[1].Success)
}

func TestUnblock_ClearsLockImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.LockoutThreshold = 2
	f := newFixture(t, cfg, nil)

	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
	require.True(t, f.service.LockoutStatus(context.Background(), "alice").Locked)

	f.service.Unblock(context.Background(), "alice")

	st := f.service.LockoutStatus(context.Background(), "alice")
	assert.False(t, st.Locked)
	assert.Equal(t, 0, st.FailureCount)
}

func TestRefresh_ValidRefreshToken(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	pair, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEmpty(t, refreshed.RefreshToken)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	pair, err := f.service.Login(context.Background(), "alice", "Password1", "10.0.0.1", "")
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRefresh_GarbageTokenRejected(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	_, err := f.service.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestPingAttemptStore(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	assert.NoError(t, f.service.PingAttemptStore(context.Background()))

	f.sink.pingErr = errors.New("connection refused")
	assert.Error(t, f.service.PingAttemptStore(context.Background()))
}

func TestLogin_ConcurrentFailuresForSameUser(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttemptsPerUser = 1000
	cfg.LockoutThreshold = 10
	f := newFixture(t, cfg, nil)

	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			f.service.Login(context.Background(), "alice", "wrong", "10.0.0.1", "")
		}()
	}
	wg.Wait()

	st := f.service.LockoutStatus(context.Background(), "alice")
	assert.True(t, st.Locked)
	// No increment may be lost below the threshold
	assert.GreaterOrEqual(t, st.FailureCount, cfg.LockoutThreshold)
	assert.Len(t, f.sink.recorded(), goroutines)
}
