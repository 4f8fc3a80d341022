// Package asynchook moves Hooks calls off the caller's goroutine.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{InvalidKeyEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	fe, _ := codecache.New(codecache.Options{
//	    Identifier: "templates",
//	    Backend:    memory.New(memory.Config{}),
//	    Hooks:      hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full. Calls after Close are dropped.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/codecache"
)

type Hooks struct {
	inner codecache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ codecache.Hooks = (*Hooks)(nil)

func New(inner codecache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) InvalidKey(op, kind, value string) {
	h.try(func() { h.inner.InvalidKey(op, kind, value) })
}
func (h *Hooks) InvalidData(id string) { h.try(func() { h.inner.InvalidData(id) }) }
func (h *Hooks) BackendError(op, id string, err error) {
	h.try(func() { h.inner.BackendError(op, id, err) })
}
func (h *Hooks) MalformedEnvelope(id string) { h.try(func() { h.inner.MalformedEnvelope(id) }) }
