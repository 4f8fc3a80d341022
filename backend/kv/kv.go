// Package kv runs a codecache backend on any provider.Provider byte store.
//
// Each entry is stored as one framed value under "entry:<ns>:<id>" carrying
// its expiry, the flush generation and the generation of each tag at write
// time. Flush and FlushByTag only bump a generation in the GenStore; entries
// written before the bump fail validation on their next read and are deleted
// there (self-heal). Expired entries are left to the provider TTL.
package kv

import (
	"bytes"
	"context"
	"fmt"
	"hash/maphash"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/unkn0wn-root/codecache"
	"github.com/unkn0wn-root/codecache/backend"
	gen "github.com/unkn0wn-root/codecache/genstore"
	"github.com/unkn0wn-root/codecache/internal/util"
	"github.com/unkn0wn-root/codecache/internal/wire"
	pr "github.com/unkn0wn-root/codecache/provider"
)

type SetCostFunc func(key string, raw []byte) int64

// Options tune the kv backend. Only Namespace and Provider are required.
type Options struct {
	Namespace string // isolates entries of different caches sharing a store
	Provider  pr.Provider

	GenStore        gen.GenStore     // nil => LocalGenStore (in-process, no cleanup)
	Executor        backend.Executor // needed by LoadAndExecuteOnce
	DefaultLifetime time.Duration    // applied to backend.DefaultLifetime; 0 => unlimited
	Compress        bool             // snappy-compress payloads
	ComputeSetCost  SetCostFunc      // default 1
	Logger          codecache.Logger // nil => NopLogger
	Now             func() time.Time // nil => time.Now
}

type Backend struct {
	ns       string
	provider pr.Provider
	gen      gen.GenStore
	ownsGen  bool
	exec     backend.Executor
	defLife  time.Duration
	compress bool
	cost     SetCostFunc
	log      codecache.Logger
	now      func() time.Time
	once     backend.Once

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Manager = (*Backend)(nil)
)

func New(opts Options) (*Backend, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("kv: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("kv: namespace is required")
	}
	b := &Backend{
		ns:       opts.Namespace,
		provider: opts.Provider,
		gen:      opts.GenStore,
		exec:     opts.Executor,
		defLife:  opts.DefaultLifetime,
		compress: opts.Compress,
		cost:     opts.ComputeSetCost,
		log:      opts.Logger,
		now:      opts.Now,
		seed:     maphash.MakeSeed(),
	}
	if b.gen == nil {
		b.gen = gen.NewLocalGenStore(0, 0)
		b.ownsGen = true
	}
	if b.cost == nil {
		b.cost = func(string, []byte) int64 { return 1 }
	}
	if b.log == nil {
		b.log = codecache.NopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

func (b *Backend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	k := util.EntryKey(b.ns, id)
	raw, ok, err := b.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		b.selfHeal(ctx, k, raw, "corrupt")
		return nil, false, nil
	}
	// the provider was given the lifetime as TTL and drops the key itself
	if e.ExpiresAt != 0 && b.now().UnixNano() >= e.ExpiresAt {
		return nil, false, nil
	}
	fresh, err := b.fresh(ctx, e)
	if err != nil {
		return nil, false, err
	}
	if !fresh {
		b.selfHeal(ctx, k, raw, "gen_mismatch")
		return nil, false, nil
	}
	if e.Flags&wire.FlagSnappy != 0 {
		p, err := snappy.Decode(nil, e.Payload)
		if err != nil {
			b.selfHeal(ctx, k, raw, "decompress")
			return nil, false, nil
		}
		return p, true, nil
	}
	// providers may hand out their own buffer
	return bytes.Clone(e.Payload), true, nil
}

func (b *Backend) Set(ctx context.Context, id string, payload []byte, tags []string, lifetime time.Duration) error {
	lifetime = backend.ResolveLifetime(lifetime, b.defLife)
	k := util.EntryKey(b.ns, id)

	keys := make([]string, 0, len(tags)+1)
	keys = append(keys, util.FlushKey)
	for _, t := range tags {
		keys = append(keys, util.TagKey(t))
	}
	gens, err := b.gen.SnapshotMany(ctx, keys)
	if err != nil {
		return fmt.Errorf("kv: snapshot generations: %w", err)
	}

	e := wire.Entry{
		FlushGen: gens[util.FlushKey],
		Tags:     make([]wire.TagGen, 0, len(tags)),
		Payload:  payload,
	}
	if exp := backend.ExpiresAt(b.now(), lifetime); !exp.IsZero() {
		e.ExpiresAt = exp.UnixNano()
	}
	for _, t := range tags {
		e.Tags = append(e.Tags, wire.TagGen{Tag: t, Gen: gens[util.TagKey(t)]})
	}
	if b.compress {
		e.Flags |= wire.FlagSnappy
		e.Payload = snappy.Encode(nil, payload)
	}
	raw, err := wire.EncodeEntry(e)
	if err != nil {
		return err
	}

	mu := b.lockFor(k)
	mu.Lock()
	ok, err := b.provider.Set(ctx, k, raw, b.cost(k, raw), lifetime)
	mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		b.log.Debug("set rejected by provider (pressure)", codecache.Fields{"key": util.Redact(k)})
	}
	return nil
}

func (b *Backend) LoadAndExecuteOnce(ctx context.Context, id string) (any, error) {
	return b.once.LoadAndExecute(ctx, id, b.exec, b.Get)
}

func (b *Backend) Has(ctx context.Context, id string) (bool, error) {
	_, ok, err := b.Get(ctx, id)
	return ok, err
}

func (b *Backend) Remove(ctx context.Context, id string) (bool, error) {
	ok, err := b.Has(ctx, id)
	if err != nil {
		return false, err
	}
	if err := b.provider.Del(ctx, util.EntryKey(b.ns, id)); err != nil {
		return false, err
	}
	return ok, nil
}

func (b *Backend) Flush(ctx context.Context) error {
	g, err := b.gen.Bump(ctx, util.FlushKey)
	if err != nil {
		return fmt.Errorf("kv: bump flush generation: %w", err)
	}
	b.log.Debug("flushed (bumped flush gen)", codecache.Fields{"ns": b.ns, "gen": g})
	return nil
}

func (b *Backend) FlushByTag(ctx context.Context, tag string) error {
	g, err := b.gen.Bump(ctx, util.TagKey(tag))
	if err != nil {
		return fmt.Errorf("kv: bump tag generation: %w", err)
	}
	b.log.Debug("flushed tag (bumped tag gen)", codecache.Fields{"ns": b.ns, "tag": tag, "gen": g})
	return nil
}

// Close closes the provider, and the GenStore when the backend created it.
func (b *Backend) Close(ctx context.Context) error {
	if b.ownsGen {
		_ = b.gen.Close(ctx)
	}
	return b.provider.Close(ctx)
}

// fresh reports whether no generation recorded in e has moved since it was written.
func (b *Backend) fresh(ctx context.Context, e wire.Entry) (bool, error) {
	keys := make([]string, 0, len(e.Tags)+1)
	keys = append(keys, util.FlushKey)
	for _, t := range e.Tags {
		keys = append(keys, util.TagKey(t.Tag))
	}
	cur, err := b.gen.SnapshotMany(ctx, keys)
	if err != nil {
		return false, fmt.Errorf("kv: snapshot generations: %w", err)
	}
	if cur[util.FlushKey] != e.FlushGen {
		return false, nil
	}
	for _, t := range e.Tags {
		if cur[util.TagKey(t.Tag)] != t.Gen {
			return false, nil
		}
	}
	return true, nil
}

// selfHeal deletes k only while it still holds the frame judged bad, so a
// Set that landed after the read survives. The check and the delete are
// atomic against Sets of this Backend only; see lockFor.
func (b *Backend) selfHeal(ctx context.Context, k string, judged []byte, reason string) {
	mu := b.lockFor(k)
	mu.Lock()
	defer mu.Unlock()

	cur, ok, err := b.provider.Get(ctx, k)
	if err != nil || !ok {
		return
	}
	if !bytes.Equal(cur, judged) {
		b.log.Debug("self-heal skipped (entry rewritten)", codecache.Fields{"key": util.Redact(k), "reason": reason})
		return
	}
	if err := b.provider.Del(ctx, k); err != nil {
		b.log.Warn("self-heal delete failed", codecache.Fields{"key": util.Redact(k), "reason": reason, "err": err})
		return
	}
	b.log.Debug("self-healed entry", codecache.Fields{"key": util.Redact(k), "reason": reason})
}

// lockFor returns the stripe serializing writes and self-heal of k within
// this process. Providers have no compare-and-delete, so another process can
// still write between the compare and the delete.
func (b *Backend) lockFor(k string) *sync.Mutex {
	return &b.locks[maphash.String(b.seed, k)%lockStripes]
}
