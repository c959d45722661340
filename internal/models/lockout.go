package models

import "time"

// LockoutStatus is the externally visible view of a username's lockout
// record. A username with no record reports Clear (zero values), not an
// error.
type LockoutStatus struct {
	Locked       bool       `json:"locked"`
	LockedUntil  *time.Time `json:"locked_until"`
	FailureCount int        `json:"failure_count"`
}
