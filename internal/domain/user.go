package domain

import "time"

// User is a registered account. The ledger trusts the caller-supplied
// identity; authentication happens at the CLI boundary.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	RegisteredAt time.Time
}
