// Package backend defines the storage and execution contract behind a
// codecache frontend.
//
// Backends are byte-for-byte transparent: Get returns exactly the payload
// previously passed to Set. The frontend owns the envelope; a backend never
// adds, strips or rewrites it. How entries are persisted is up to the backend.
package backend

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultLifetime asks the backend to apply its own default lifetime.
	DefaultLifetime time.Duration = -1
	// Unlimited stores an entry without expiry.
	Unlimited time.Duration = 0
)

var (
	// ErrEntryNotFound is returned by LoadAndExecuteOnce when there is nothing to load.
	ErrEntryNotFound = errors.New("backend: entry not found")
	// ErrNoExecutor is returned by LoadAndExecuteOnce when the backend was built without an Executor.
	ErrNoExecutor = errors.New("backend: no executor configured")
)

// Backend is the capability set a frontend depends on.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns (payload, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, entryIdentifier string) ([]byte, bool, error)

	// Set stores payload under entryIdentifier, replacing any previous entry.
	// lifetime is DefaultLifetime, Unlimited or a positive duration.
	Set(ctx context.Context, entryIdentifier string, payload []byte, tags []string, lifetime time.Duration) error

	// LoadAndExecuteOnce loads and executes the entry on the first successful
	// call for entryIdentifier in this process. Later calls return the
	// memoized result without executing again.
	LoadAndExecuteOnce(ctx context.Context, entryIdentifier string) (any, error)
}

// Manager is implemented by backends that can inspect and evict entries.
type Manager interface {
	Has(ctx context.Context, entryIdentifier string) (bool, error)
	// Remove deletes an entry and reports whether it existed.
	Remove(ctx context.Context, entryIdentifier string) (bool, error)
	// Flush drops every entry of the backend.
	Flush(ctx context.Context) error
	// FlushByTag drops every entry carrying tag.
	FlushByTag(ctx context.Context, tag string) error
}

// Executor runs a stored payload. payload is the envelope-wrapped form.
type Executor interface {
	Execute(ctx context.Context, entryIdentifier string, payload []byte) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, entryIdentifier string, payload []byte) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, entryIdentifier string, payload []byte) (any, error) {
	return f(ctx, entryIdentifier, payload)
}

// ResolveLifetime maps DefaultLifetime (or any negative value) to def.
// The result is Unlimited or a positive duration.
func ResolveLifetime(lifetime, def time.Duration) time.Duration {
	if lifetime < 0 {
		if def < 0 {
			return Unlimited
		}
		return def
	}
	return lifetime
}

// ExpiresAt returns the absolute expiry for lifetime, or the zero time when
// the entry never expires.
func ExpiresAt(now time.Time, lifetime time.Duration) time.Time {
	if lifetime <= 0 {
		return time.Time{}
	}
	return now.Add(lifetime)
}
