// Package lock provides the in-process per-key lock registry used to
// serialize queue mutations, and a redis lock for the scheduler tick.
//
// Registry locks are local to one process. Running several instances against
// the same database relies on the row locks taken by the repositories and on
// the redis tick lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

type registryKey struct {
	purpose string
	key     string
}

type entry struct {
	sem  chan struct{}
	refs int // holders plus waiters
}

// Registry hands out one mutex per (purpose, key) pair. Entries are created
// on first use and dropped by Sweep once nobody holds or waits on them.
type Registry struct {
	mu      sync.Mutex
	entries map[registryKey]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[registryKey]*entry),
	}
}

// Guard is a held lock. Release is safe to call more than once.
type Guard struct {
	r    *Registry
	k    registryKey
	e    *entry
	once sync.Once
}

// Acquire blocks until the lock for (purpose, key) is held or ctx is done.
func (r *Registry) Acquire(ctx context.Context, purpose, key string) (*Guard, error) {
	// select picks randomly when both cases are ready; a done ctx must lose.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w %s/%s: %w", ErrLockTimeout, purpose, key, err)
	}

	k := registryKey{purpose: purpose, key: key}

	r.mu.Lock()
	e, ok := r.entries[k]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.entries[k] = e
	}
	e.refs++
	r.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return &Guard{r: r, k: k, e: e}, nil
	case <-ctx.Done():
		r.unref(e)
		return nil, fmt.Errorf("%w %s/%s: %w", ErrLockTimeout, purpose, key, ctx.Err())
	}
}

// AcquireTimeout is Acquire bounded by wait.
func (r *Registry) AcquireTimeout(ctx context.Context, purpose, key string, wait time.Duration) (*Guard, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return r.Acquire(ctx, purpose, key)
}

func (g *Guard) Release() {
	g.once.Do(func() {
		<-g.e.sem
		g.r.unref(g.e)
	})
}

func (r *Registry) unref(e *entry) {
	r.mu.Lock()
	e.refs--
	r.mu.Unlock()
}

// Sweep drops idle entries and returns how many were removed. Dropping an
// idle entry is harmless: the next Acquire creates an equivalent one.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, e := range r.entries {
		if e.refs == 0 {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
