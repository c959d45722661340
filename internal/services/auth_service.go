package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/clock"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/config"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/lockout"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/ratelimit"
	pkgauth "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/auth"
	pkglogger "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/logger"
)

// CredentialStore defines the interface for user credential lookup
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// AttemptSink defines the interface for the external attempt store.
// Record semantics are fire-and-forget: failures are logged, never
// surfaced to the caller of Login.
type AttemptSink interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
}

// DependencyHealth defines the connectivity probe of the external store
type DependencyHealth interface {
	Ping(ctx context.Context) error
}

// SessionIssuer defines the interface for session token issuance
type SessionIssuer interface {
	IssueTokenPair(username string) (*models.TokenPair, error)
	ValidateToken(tokenString string) (*models.TokenClaims, error)
}

// AuthService orchestrates the login use case: per-user rate limiting,
// the lockout state machine, credential verification, attempt auditing
// and session issuance, in that order.
type AuthService struct {
	users    CredentialStore
	sink     AttemptSink
	health   DependencyHealth
	issuer   SessionIssuer
	windows  *ratelimit.Window
	lockouts *lockout.Tracker
	clk      clock.Clock
	cfg      config.BruteForceConfig

	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users CredentialStore,
	sink AttemptSink,
	health DependencyHealth,
	issuer SessionIssuer,
	cfg config.BruteForceConfig,
	clk clock.Clock,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:   users,
		sink:    sink,
		health:  health,
		issuer:  issuer,
		windows: ratelimit.NewWindow(),
		lockouts: lockout.NewTracker(lockout.Config{
			Threshold: cfg.LockoutThreshold,
			Window:    cfg.LockoutWindow,
			Duration:  cfg.LockoutDuration,
		}),
		clk:         clk,
		cfg:         cfg,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Login authenticates a user and returns a token pair. Checks run in
// strict order: per-user rate limit, lockout, credentials. The per-IP
// limit sits in front of this method at the HTTP edge and writes no
// attempt record.
//
// Every outcome past the per-IP gate is audited, including rejections.
// In-memory rate/lockout state is committed before the best-effort audit
// write, so no per-key lock is ever held across I/O.
func (s *AuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*models.TokenPair, error) {
	if username = strings.TrimSpace(username); username == "" {
		s.logger.Warn("login attempt with empty username")
		return nil, models.ErrUnauthorized
	}

	now := s.clk.Now()

	// Per-user sliding window. The check itself consumes a slot: the
	// attempt is recorded whether or not it is allowed through.
	count := s.windows.RecordAndCount(username, s.cfg.PerUserWindow, now)
	if count > s.cfg.MaxAttemptsPerUser {
		s.logger.Warn("login rate limited",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Int("attempts_in_window", count))
		s.recordAttempt(ctx, username, ipAddress, userAgent, false, models.FailureRateLimited)
		return nil, models.ErrRateLimitExceeded
	}

	// Lockout gate, evaluated before credential verification. An attempt
	// against a locked account is audited but does not feed back into the
	// state machine: a standing lock is never extended.
	if st := s.lockouts.Status(username, now); st.Locked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			FailureReason: models.FailureAccountLocked,
		})
		s.recordAttempt(ctx, username, ipAddress, userAgent, false, models.FailureAccountLocked)
		return nil, models.ErrAccountLocked
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Unknown user and wrong password take the same path from here so
	// the external signal cannot be used for username enumeration.
	if err != nil || pkgauth.ComparePassword(user.PasswordHash, password) != nil {
		st := s.lockouts.RecordFailure(username, now)
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			FailureReason: models.FailureInvalidCredentials,
		})
		s.recordAttempt(ctx, username, ipAddress, userAgent, false, models.FailureInvalidCredentials)

		if st.Locked {
			s.auditLogger.LogLockoutAction("account_locked", username, st.LockedUntil)
			return nil, models.ErrAccountLocked
		}
		return nil, models.ErrUnauthorized
	}

	s.lockouts.RecordSuccess(username, now)
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		Username:  username,
		IPAddress: ipAddress,
		Success:   true,
	})
	s.recordAttempt(ctx, username, ipAddress, userAgent, true, "")

	// State is committed at this point and is not rolled back if token
	// issuance fails: the failed attempt counters have already been
	// cleared by the genuine success.
	pair, err := s.issuer.IssueTokenPair(username)
	if err != nil {
		s.logger.Error("failed to issue session tokens",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	s.logger.Info("user logged in", slog.String("username", pkglogger.SanitizedUsername(username)))
	return pair, nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The token is
// proof of a prior clean login, so the brute-force gates are not
// consulted here.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.issuer.ValidateToken(refreshToken)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token",
			slog.String("username", pkglogger.SanitizedUsername(claims.Username)))
		return nil, models.ErrUnauthorized
	}

	pair, err := s.issuer.IssueTokenPair(claims.Username)
	if err != nil {
		s.logger.Error("failed to issue session tokens on refresh", slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	s.logger.Info("token refreshed", slog.String("username", pkglogger.SanitizedUsername(claims.Username)))
	return pair, nil
}

// LockoutStatus returns the current lockout view for username, applying
// passive expiry first. Unknown usernames report Clear.
func (s *AuthService) LockoutStatus(ctx context.Context, username string) models.LockoutStatus {
	return s.lockouts.Status(username, s.clk.Now())
}

// Unblock administratively clears any lock and accrued failures for
// username. Idempotent; unblocking a clear user is a no-op.
func (s *AuthService) Unblock(ctx context.Context, username string) {
	s.lockouts.Unblock(username)
	s.auditLogger.LogLockoutAction("account_unblocked", username, nil)
}

// PingAttemptStore probes the external attempt store. Returns nil when
// reachable; callers surface the error detail as a degraded status.
func (s *AuthService) PingAttemptStore(ctx context.Context) error {
	if err := s.health.Ping(ctx); err != nil {
		return err
	}
	return nil
}

// recordAttempt ships the audit record with a bounded timeout on a
// context detached from the request, so an already-decided login is
// neither blocked nor failed by a slow store.
func (s *AuthService) recordAttempt(ctx context.Context, username, ipAddress, userAgent string, success bool, failureReason string) {
	attempt := &models.LoginAttempt{
		Username:  username,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Timestamp: s.clk.Now().UTC(),
		Success:   success,
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AuditTimeout)
	defer cancel()

	if err := s.sink.Record(writeCtx, attempt); err != nil {
		s.logger.Warn("failed to record login attempt",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Any("error", err))
	}
}
