package models

import (
	"time"
)

// User is an account known to the credential store. Accounts are created
// out-of-band (seed or admin tooling); this service only reads them.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
