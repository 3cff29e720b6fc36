// Package ttlstore holds short-lived, single-use state: federation nonces,
// pending step-up logins and socket tickets.
package ttlstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for absent or lapsed keys.
	ErrNotFound = errors.New("ttlstore: not found")
	// ErrExists is returned by Add when the key is already live.
	ErrExists = errors.New("ttlstore: key exists")
)

// Store is a typed key/value store whose entries lapse after a TTL.
//
// Take is the single-use primitive: the read and the delete happen as one
// step, so two concurrent Takes of the same key cannot both succeed.
type Store[T any] interface {
	Put(ctx context.Context, key string, v T, ttl time.Duration) error
	Add(ctx context.Context, key string, v T, ttl time.Duration) error
	Get(ctx context.Context, key string) (T, error)
	Take(ctx context.Context, key string) (T, error)
	Update(ctx context.Context, key string, fn func(v *T) (keep bool, err error)) error
	Delete(ctx context.Context, key string) error
}
