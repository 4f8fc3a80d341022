package backend

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Once memoizes successful executions per entry identifier for the lifetime
// of the process. Concurrent first calls for the same identifier share one
// execution. Failed loads or executions are not remembered and are retried on
// the next call.
//
// The zero value is ready to use.
type Once struct {
	group singleflight.Group

	mu   sync.RWMutex
	done map[string]any
}

// Do returns the memoized result for id, or runs fn and memoizes its result
// when fn succeeds.
func (o *Once) Do(id string, fn func() (any, error)) (any, error) {
	if v, ok := o.result(id); ok {
		return v, nil
	}
	v, err, _ := o.group.Do(id, func() (any, error) {
		// a flight that finished between result() and Do already stored it
		if v, ok := o.result(id); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		if o.done == nil {
			o.done = make(map[string]any)
		}
		o.done[id] = v
		o.mu.Unlock()
		return v, nil
	})
	return v, err
}

// Executed reports whether id has a memoized result.
func (o *Once) Executed(id string) bool {
	_, ok := o.result(id)
	return ok
}

func (o *Once) result(id string) (any, bool) {
	o.mu.RLock()
	v, ok := o.done[id]
	o.mu.RUnlock()
	return v, ok
}

// LoadAndExecute is the shared LoadAndExecuteOnce body: it loads the payload
// through get and hands it to exec, memoized through o.
func (o *Once) LoadAndExecute(
	ctx context.Context,
	id string,
	exec Executor,
	get func(context.Context, string) ([]byte, bool, error),
) (any, error) {
	return o.Do(id, func() (any, error) {
		if exec == nil {
			return nil, ErrNoExecutor
		}
		payload, ok, err := get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrEntryNotFound
		}
		return exec.Execute(ctx, id, payload)
	})
}
