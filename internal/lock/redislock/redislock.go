// Package redislock serializes work per key across processes with a redsync mutex.
package redislock

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
)

const (
	defaultExpiry     = 10 * time.Minute
	defaultTries      = 30
	defaultRetryDelay = 2 * time.Second
)

// Options tunes lock acquisition.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions suits a nightly job that may run for minutes.
func DefaultOptions() Options {
	return Options{Expiry: defaultExpiry, Tries: defaultTries, RetryDelay: defaultRetryDelay}
}

// Locker is a distributed lock backed by redis.
type Locker struct {
	rs   *redsync.Redsync
	opts Options
	l    *zap.Logger
}

// New creates a Locker over client.
func New(client redis.UniversalClient, opts Options, logger *zap.Logger) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if opts.Expiry <= 0 || opts.Tries <= 0 {
		return nil, errors.Errorf("invalid lock options: expiry=%s tries=%d", opts.Expiry, opts.Tries)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Locker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
		l:    logger,
	}, nil
}

// WithLock runs fn while holding the distributed lock of key. The lock is
// released when fn returns, even on panic.
func (dl *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := dl.rs.NewMutex(key,
		redsync.WithExpiry(dl.opts.Expiry),
		redsync.WithTries(dl.opts.Tries),
		redsync.WithRetryDelay(dl.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return errors.Wrapf(err, "acquire lock %s", key)
	}
	dl.l.Debug("lock acquired", zap.String("lock_key", key))

	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			dl.l.Warn("failed to release lock", zap.String("lock_key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}

var _ interfaces.Locker = (*Locker)(nil)
