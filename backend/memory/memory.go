// Package memory is the reference in-process backend.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/codecache/backend"
)

type entry struct {
	payload   []byte
	tags      []string
	expiresAt time.Time // zero => no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Config tunes a memory backend. The zero value is usable; LoadAndExecuteOnce
// needs an Executor.
type Config struct {
	Executor        backend.Executor
	DefaultLifetime time.Duration    // 0 => unlimited
	Now             func() time.Time // nil => time.Now
}

// Backend keeps entries in a map guarded by a RWMutex.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]entry

	exec    backend.Executor
	defLife time.Duration
	now     func() time.Time
	once    backend.Once
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Manager = (*Backend)(nil)
)

func New(cfg Config) *Backend {
	b := &Backend{
		entries: make(map[string]entry),
		exec:    cfg.Executor,
		defLife: cfg.DefaultLifetime,
		now:     cfg.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *Backend) Get(_ context.Context, id string) ([]byte, bool, error) {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if e.expired(b.now()) {
		b.mu.Lock()
		// re-check: a concurrent Set may have replaced it
		if cur, ok := b.entries[id]; ok && cur.expired(b.now()) {
			delete(b.entries, id)
		}
		b.mu.Unlock()
		return nil, false, nil
	}
	return slices.Clone(e.payload), true, nil
}

func (b *Backend) Set(_ context.Context, id string, payload []byte, tags []string, lifetime time.Duration) error {
	e := entry{
		payload:   slices.Clone(payload),
		tags:      slices.Clone(tags),
		expiresAt: backend.ExpiresAt(b.now(), backend.ResolveLifetime(lifetime, b.defLife)),
	}
	b.mu.Lock()
	b.entries[id] = e
	b.mu.Unlock()
	return nil
}

func (b *Backend) LoadAndExecuteOnce(ctx context.Context, id string) (any, error) {
	return b.once.LoadAndExecute(ctx, id, b.exec, b.Get)
}

func (b *Backend) Has(ctx context.Context, id string) (bool, error) {
	_, ok, err := b.Get(ctx, id)
	return ok, err
}

func (b *Backend) Remove(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	e, ok := b.entries[id]
	delete(b.entries, id)
	b.mu.Unlock()
	return ok && !e.expired(b.now()), nil
}

func (b *Backend) Flush(context.Context) error {
	b.mu.Lock()
	b.entries = make(map[string]entry)
	b.mu.Unlock()
	return nil
}

func (b *Backend) FlushByTag(_ context.Context, tag string) error {
	b.mu.Lock()
	for id, e := range b.entries {
		if slices.Contains(e.tags, tag) {
			delete(b.entries, id)
		}
	}
	b.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Tags returns the tags stored with id.
func (b *Backend) Tags(id string) ([]string, bool) {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	return slices.Clone(e.tags), ok
}
