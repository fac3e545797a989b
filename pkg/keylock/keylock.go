// Package keylock provides in-process mutual exclusion keyed by an integer id.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locker hands out one exclusive section per key.
//
// Sections for different keys never block each other. Waiters for the same key are
// admitted in the order they started waiting. An entry is created on first use and
// removed once it has no holder and no waiter left.
type Locker struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[int64]*entry)}
}

// Lock blocks until the section for key is free or ctx is done.
//
// On success it returns the function releasing the section; calling it more than once
// is a no-op. On failure nothing is held and ctx.Err() is returned.
func (l *Locker) Lock(ctx context.Context, key int64) (func(), error) {
	// Acquire grants a free section without looking at ctx.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := l.ref(key)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, e)
		return nil, err
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key, e)
		})
	}, nil
}

// Len returns the number of keys that currently have a holder or a waiter.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

func (l *Locker) ref(key int64) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}

	e.refs++

	return e
}

func (l *Locker) unref(key int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
