package redislock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := New(client, Options{
		Prefix:     DefaultOptions().Prefix,
		Expiry:     5 * time.Second,
		Tries:      1000,
		RetryDelay: 5 * time.Millisecond,
	})

	return l, mr
}

func TestName(t *testing.T) {
	l, _ := newTestLocker(t)
	require.Equal(t, "lock:point:42", l.Name(42))
}

func TestNewDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := New(client, Options{Prefix: "p:"})

	def := DefaultOptions()
	require.Equal(t, def.Expiry, l.opts.Expiry)
	require.Equal(t, def.Tries, l.opts.Tries)
	require.Equal(t, def.RetryDelay, l.opts.RetryDelay)
	require.Equal(t, "p:1", l.Name(1))
}

func TestLockUnlock(t *testing.T) {
	l, mr := newTestLocker(t)

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, mr.Exists(l.Name(1)))

	unlock()
	unlock()
	require.False(t, mr.Exists(l.Name(1)))
}

func TestLockContention(t *testing.T) {
	l, _ := newTestLocker(t)

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock2, err := l.Lock(context.Background(), 2)
	require.NoError(t, err)
	unlock2()

	unlock()

	unlock, err = l.Lock(context.Background(), 1)
	require.NoError(t, err)
	unlock()
}

func TestLockTriesExhausted(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := New(client, Options{Prefix: "p:", Tries: 2, RetryDelay: time.Millisecond})

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.Canceled)
}

func TestMutualExclusion(t *testing.T) {
	l, _ := newTestLocker(t)

	const n = 20

	var (
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := l.Lock(context.Background(), 9)
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()

			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
		}()
	}

	wg.Wait()

	require.Equal(t, n, counter)
}

func TestLockAlreadyCanceled(t *testing.T) {
	l, mr := newTestLocker(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Lock(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, mr.Exists(l.Name(1)))
}

func TestUnlockConcurrent(t *testing.T) {
	l, mr := newTestLocker(t)

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			unlock()
		}()
	}

	wg.Wait()

	require.False(t, mr.Exists(l.Name(1)))

	unlock, err = l.Lock(context.Background(), 1)
	require.NoError(t, err)
	unlock()
}
