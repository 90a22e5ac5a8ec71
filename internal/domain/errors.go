package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRateNotFound currency absent from the rate snapshot.
	ErrRateNotFound = errors.New("rate not found in cache")
	// ErrMissingRate a conversion pair cannot be priced; no fallback value is fabricated.
	ErrMissingRate = errors.New("missing rate")
	// ErrInsufficientFunds base-currency balance cannot cover a purchase.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientBalance held amount cannot cover a sale.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidInput rejected before any lookup or mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserExists username already taken.
	ErrUserExists = errors.New("username already taken")
	// ErrUserNotFound no such registered user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidPassword password verification failed.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrNotLoggedIn no active session.
	ErrNotLoggedIn = errors.New("not logged in, use the login command first")
)

func errInvalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// ProviderError is a contained failure of a single rate source. It is
// aggregated into the update summary and never aborts other providers.
type ProviderError struct {
	Source Source
	Reason string
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Source, e.Reason)
}

// PersistenceError is a file read/write/lock failure, fatal for the current
// operation.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure on %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
