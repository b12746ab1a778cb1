// Package credential defines the user directory consumed by the auth
// core. The directory is owned elsewhere (the platform's relational
// store); this package holds the capability interface the core is
// written against plus interchangeable adapters: an in-memory store for
// tests and single-node development, and a Postgres store for
// production.
package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicate is returned by Create when the email or username is
	// already taken.
	ErrDuplicate = errors.New("email or username already registered")
	// ErrStoreUnavailable wraps backend failures. Callers must surface
	// it as a server-side error, never as "unknown user".
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Record is one user as seen by the auth core. Password hashes use the
// PHC format produced by the password package.
type Record struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	IsVerified   bool
	IsPremium    bool
	Level        int
	XP           int
	CreatedAt    time.Time
}

// Store is the capability interface over the user directory. All
// implementations must make each operation individually atomic; the
// core never needs multi-row transactions.
type Store interface {
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByEmail(ctx context.Context, email string) (*Record, error)
	GetByUsername(ctx context.Context, username string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error
}
