package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Every query is a point lookup or
// a single-row write; the request path must never wait on a scan.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByFederatedSubject(ctx context.Context, sub string) (domain.User, error)

	// CreateUser inserts a new user. A taken username or federated subject
	// yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// DeleteUser removes the user and, by cascade, its refresh tokens.
	// Deleting a missing user is not an error.
	DeleteUser(ctx context.Context, userID string) error

	UpdateMFASecret(ctx context.Context, userID string, secret string) error

	// EnableMFA sets mfa_enabled to now.
	EnableMFA(ctx context.Context, userID string) error

	// DisableMFA clears mfa_enabled and mfa_secret.
	DisableMFA(ctx context.Context, userID string) error
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)
	ListRefreshTokensByUser(ctx context.Context, userID string) ([]domain.RefreshToken, error)

	// DeleteRefreshToken removes one record by token id and reports whether
	// anything matched.
	DeleteRefreshToken(ctx context.Context, id string) (bool, error)

	// DeleteUserRefreshToken removes a record only when it belongs to userID.
	DeleteUserRefreshToken(ctx context.Context, userID, hash string) (bool, error)

	// DeleteRefreshTokensBefore is housekeeping for sessions past their lifetime.
	DeleteRefreshTokensBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
