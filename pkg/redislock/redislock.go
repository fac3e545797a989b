// Package redislock provides mutual exclusion keyed by an integer id across processes.
//
// Each key maps to a redsync mutex, so every instance sharing the same Redis
// observes the same exclusive section. The mutex is not extended while held: a section
// that runs longer than Options.Expiry loses the lock and another holder may enter.
// Expiry must stay well above the longest store round trip of a section.
package redislock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options configures the distributed mutexes.
type Options struct {
	// Prefix is prepended to the key to build the Redis key name.
	Prefix string
	// Expiry bounds how long a crashed holder can keep the section.
	Expiry time.Duration
	// Tries is the number of acquisition attempts before giving up.
	Tries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// DefaultOptions returns options suited for short read-modify-write sections.
func DefaultOptions() Options {
	return Options{
		Prefix:     "lock:point:",
		Expiry:     10 * time.Second,
		Tries:      200,
		RetryDelay: 50 * time.Millisecond,
	}
}

// Locker hands out one exclusive section per key using Redis.
type Locker struct {
	rs   *redsync.Redsync
	opts Options
}

// New returns a Locker backed by the given client.
func New(client redis.UniversalClient, opts Options) *Locker {
	def := DefaultOptions()

	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}

	if opts.Tries <= 0 {
		opts.Tries = def.Tries
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}

	return &Locker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// Name returns the Redis key guarding the given key.
func (l *Locker) Name(key int64) string {
	return l.opts.Prefix + strconv.FormatInt(key, 10)
}

// Lock blocks until the section for key is acquired, the tries are exhausted or ctx is done.
//
// When ctx is done ctx.Err() is returned and nothing is held.
func (l *Locker) Lock(ctx context.Context, key int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := zerolog.Ctx(ctx)
	name := l.Name(key)

	mutex := l.rs.NewMutex(
		name,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		log.Error().Err(err).Str("lock", name).Msg("cannot acquire lock")

		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; the key must still be released.
			ok, err := mutex.UnlockContext(context.Background())
			if err != nil || !ok {
				log.Warn().Err(err).Str("lock", name).Msg("lock was not held on release")
			}
		})
	}, nil
}
