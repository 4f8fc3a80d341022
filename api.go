package codecache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/codecache/backend"
)

// Frontend is the code-cache API. Every operation makes at most one backend
// call; validation failures make none.
type Frontend interface {
	// Identifier names this cache.
	Identifier() string
	// Backend returns the backend fixed at construction.
	Backend() backend.Backend

	// Set wraps sourceCode and stores it. lifetime is backend.DefaultLifetime,
	// backend.Unlimited or a positive duration. sourceCode that is not valid
	// UTF-8 is rejected with an *Error of KindInvalidData.
	Set(ctx context.Context, entryIdentifier, sourceCode string, tags []string, lifetime time.Duration) error
	// Get returns the original source code; ok is false when there is no entry.
	Get(ctx context.Context, entryIdentifier string) (code string, ok bool, err error)
	// GetWrapped returns the payload exactly as stored.
	GetWrapped(ctx context.Context, entryIdentifier string) (wrapped string, ok bool, err error)
	// RequireOnce hands off to the backend's load-and-execute-once primitive.
	RequireOnce(ctx context.Context, entryIdentifier string) (any, error)

	// Entry management; needs a backend implementing backend.Manager.
	Has(ctx context.Context, entryIdentifier string) (bool, error)
	Remove(ctx context.Context, entryIdentifier string) (bool, error)
	Flush(ctx context.Context) error
	FlushByTag(ctx context.Context, tag string) error

	IsValidEntryIdentifier(entryIdentifier string) bool
	IsValidTag(tag string) bool

	// Close closes the backend if it has a Close(context.Context) error method.
	Close(ctx context.Context) error
}

// Options configure a Frontend. Identifier and Backend are required.
type Options struct {
	Identifier string // names the cache; same grammar as entry identifiers
	Backend    backend.Backend

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

func New(opts Options) (Frontend, error) {
	return newFrontend(opts)
}
