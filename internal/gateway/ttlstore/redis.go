package ttlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic retries when another writer touches a
// watched key mid-update.
const maxUpdateRetries = 8

// ErrContended is returned by Update when the key kept changing underneath it.
var ErrContended = errors.New("ttlstore: update contended")

// Redis is a Store backed by Redis keys with native expiry, so state survives
// a gateway restart and is shared between gateway replicas. Values are JSON.
type Redis[T any] struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis stores values under prefix+key.
func NewRedis[T any](client redis.UniversalClient, prefix string) *Redis[T] {
	return &Redis[T]{client: client, prefix: prefix}
}

func (s *Redis[T]) key(k string) string { return s.prefix + k }

func (s *Redis[T]) Put(ctx context.Context, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ttlstore: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("ttlstore: set: %w", err)
	}
	return nil
}

func (s *Redis[T]) Add(ctx context.Context, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ttlstore: encode: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(key), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("ttlstore: setnx: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *Redis[T]) Get(ctx context.Context, key string) (T, error) {
	return s.decode(s.client.Get(ctx, s.key(key)).Bytes())
}

// Take uses GETDEL, which Redis executes atomically.
func (s *Redis[T]) Take(ctx context.Context, key string) (T, error) {
	return s.decode(s.client.GetDel(ctx, s.key(key)).Bytes())
}

// Update reads under WATCH and writes in MULTI, retrying when the key changes
// in between. KEEPTTL preserves the entry's deadline.
func (s *Redis[T]) Update(ctx context.Context, key string, fn func(v *T) (bool, error)) error {
	k := s.key(key)
	var fnErr error

	txf := func(tx *redis.Tx) error {
		v, err := s.decode(tx.Get(ctx, k).Bytes())
		if err != nil {
			return err
		}

		keep, err := fn(&v)
		fnErr = err

		var raw []byte
		if keep {
			if raw, err = json.Marshal(v); err != nil {
				return fmt.Errorf("ttlstore: encode: %w", err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if keep {
				pipe.Set(ctx, k, raw, redis.KeepTTL)
			} else {
				pipe.Del(ctx, k)
			}
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return fmt.Errorf("ttlstore: update: %w", err)
		}
		return fnErr
	}
	return ErrContended
}

func (s *Redis[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("ttlstore: del: %w", err)
	}
	return nil
}

func (s *Redis[T]) decode(raw []byte, err error) (T, error) {
	var v T
	if errors.Is(err, redis.Nil) {
		return v, ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("ttlstore: read: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("ttlstore: decode: %w", err)
	}
	return v, nil
}
