// Package lock serializes work on a key across goroutines or processes.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey    = errors.New("lock key is empty")
	ErrInvalidTTL  = errors.New("lock ttl must be positive")
	ErrLockTimeout = errors.New("lock not acquired before deadline")
)

// Locker grants exclusive access to a key until the returned release func runs.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

const (
	DefaultTTL          = 30 * time.Second
	defaultRetryBackoff = 25 * time.Millisecond
)
