package models

import "time"

// Failure reasons recorded on audited login attempts
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureRateLimited        = "rate_limited"
	FailureAccountLocked      = "account_locked"
)

// LoginAttempt is an immutable audit record of a single authentication
// attempt. Created for every attempt, never mutated, retained by the
// external store.
type LoginAttempt struct {
	ID            string    `json:"id,omitempty"`
	Username      string    `json:"username"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	FailureReason *string   `json:"failure_reason,omitempty"`
}
