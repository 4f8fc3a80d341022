package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/codecache/backend"
	gen "github.com/unkn0wn-root/codecache/genstore"
	"github.com/unkn0wn-root/codecache/internal/util"
	"github.com/unkn0wn-root/codecache/internal/wire"
	pr "github.com/unkn0wn-root/codecache/provider"
	"github.com/unkn0wn-root/codecache/provider/bigcache"
	"github.com/unkn0wn-root/codecache/provider/ristretto"
)

type memEntry struct {
	v   []byte
	ttl time.Duration
}

type memProvider struct {
	mu   sync.Mutex
	m    map[string]memEntry
	dels int
	rej  bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rej {
		return false, nil
	}
	p.m[key] = memEntry{v: value, ttl: ttl}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	p.dels++
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

type errProvider struct{ *memProvider }

var errBoom = errors.New("boom")

func (*errProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBoom }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBackend(t *testing.T, mp pr.Provider, optsOpt func(*Options)) *Backend {
	t.Helper()
	opts := Options{Namespace: "test", Provider: mp}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	b, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestNewRequiresProviderAndNamespace(t *testing.T) {
	if _, err := New(Options{Namespace: "x"}); err == nil {
		t.Fatalf("expected error without provider")
	}
	if _, err := New(Options{Provider: newMemProvider()}); err == nil {
		t.Fatalf("expected error without namespace")
	}
}

func TestSetGetOverwrite(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	b := newTestBackend(t, mp, nil)

	if _, ok, err := b.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("Get on empty: ok=%v err=%v", ok, err)
	}
	if err := b.Set(ctx, "a", []byte("one"), nil, backend.DefaultLifetime); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "a", []byte("two"), []string{"t"}, backend.DefaultLifetime); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := b.Get(ctx, "a")
	if err != nil || !ok || string(got) != "two" {
		t.Fatalf("Get = %q ok=%v err=%v", got, ok, err)
	}
	if !mp.has(util.EntryKey("test", "a")) {
		t.Fatalf("entry not stored under namespaced key")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, newMemProvider(), nil)
	_ = b.Set(ctx, "a", []byte("abc"), nil, backend.Unlimited)

	got, _, _ := b.Get(ctx, "a")
	got[0] = 'X'
	again, _, _ := b.Get(ctx, "a")
	if string(again) != "abc" {
		t.Fatalf("stored payload mutated through Get result: %q", again)
	}
}

func TestLifetime(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBackend(t, mp, func(o *Options) {
		o.Now = clk.now
		o.DefaultLifetime = time.Hour
	})

	_ = b.Set(ctx, "def", []byte("x"), nil, backend.DefaultLifetime)
	_ = b.Set(ctx, "short", []byte("x"), nil, time.Minute)
	_ = b.Set(ctx, "forever", []byte("x"), nil, backend.Unlimited)

	if ttl := mp.m[util.EntryKey("test", "def")].ttl; ttl != time.Hour {
		t.Fatalf("default lifetime not resolved: %v", ttl)
	}
	if ttl := mp.m[util.EntryKey("test", "forever")].ttl; ttl != 0 {
		t.Fatalf("unlimited should pass ttl 0, got %v", ttl)
	}

	clk.t = clk.t.Add(2 * time.Minute)
	if _, ok, _ := b.Get(ctx, "short"); ok {
		t.Fatalf("expired entry returned")
	}
	// expiry is left to the provider TTL; a read never deletes on it
	if e, ok := mp.m[util.EntryKey("test", "short")]; !ok || e.ttl != time.Minute {
		t.Fatalf("expired entry should stay for the provider TTL: ok=%v ttl=%v", ok, e.ttl)
	}
	if _, ok, _ := b.Get(ctx, "def"); !ok {
		t.Fatalf("default-lifetime entry gone too early")
	}

	clk.t = clk.t.Add(24 * 365 * time.Hour)
	if _, ok, _ := b.Get(ctx, "forever"); !ok {
		t.Fatalf("unlimited entry expired")
	}
}

func TestFlushByTag(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	b := newTestBackend(t, mp, nil)

	_ = b.Set(ctx, "a", []byte("a"), []string{"red", "blue"}, backend.Unlimited)
	_ = b.Set(ctx, "b", []byte("b"), []string{"blue"}, backend.Unlimited)
	_ = b.Set(ctx, "c", []byte("c"), nil, backend.Unlimited)

	if err := b.FlushByTag(ctx, "red"); err != nil {
		t.Fatalf("FlushByTag: %v", err)
	}
	if ok, _ := b.Has(ctx, "a"); ok {
		t.Fatalf("a should be invalidated by tag red")
	}
	if mp.has(util.EntryKey("test", "a")) {
		t.Fatalf("stale entry should be deleted on read")
	}
	if ok, _ := b.Has(ctx, "b"); !ok {
		t.Fatalf("b has no red tag, must survive")
	}

	// entries written after the bump are fresh
	_ = b.Set(ctx, "a", []byte("a2"), []string{"red"}, backend.Unlimited)
	if got, ok, _ := b.Get(ctx, "a"); !ok || string(got) != "a2" {
		t.Fatalf("rewrite after flush = %q ok=%v", got, ok)
	}
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, newMemProvider(), nil)
	_ = b.Set(ctx, "a", []byte("a"), nil, backend.Unlimited)
	_ = b.Set(ctx, "b", []byte("b"), []string{"t"}, backend.Unlimited)

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if ok, _ := b.Has(ctx, id); ok {
			t.Fatalf("%s survived Flush", id)
		}
	}
}

func TestSharedGenStoreAcrossBackends(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	gs := gen.NewLocalGenStore(0, 0)
	defer gs.Close(ctx)

	b1 := newTestBackend(t, mp, func(o *Options) { o.GenStore = gs })
	b2 := newTestBackend(t, mp, func(o *Options) { o.GenStore = gs })

	_ = b1.Set(ctx, "a", []byte("a"), []string{"t"}, backend.Unlimited)
	if ok, _ := b2.Has(ctx, "a"); !ok {
		t.Fatalf("b2 should see b1's write")
	}
	_ = b2.FlushByTag(ctx, "t")
	if ok, _ := b1.Has(ctx, "a"); ok {
		t.Fatalf("tag flush on b2 must invalidate for b1")
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, newMemProvider(), nil)
	_ = b.Set(ctx, "a", []byte("a"), nil, backend.Unlimited)

	if ok, err := b.Remove(ctx, "a"); err != nil || !ok {
		t.Fatalf("Remove existing: ok=%v err=%v", ok, err)
	}
	if ok, err := b.Remove(ctx, "a"); err != nil || ok {
		t.Fatalf("Remove missing: ok=%v err=%v", ok, err)
	}
}

func TestCompression(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	b := newTestBackend(t, mp, func(o *Options) { o.Compress = true })

	payload := bytes.Repeat([]byte("echo 'hi';\n"), 200)
	if err := b.Set(ctx, "a", payload, nil, backend.Unlimited); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw := mp.m[util.EntryKey("test", "a")].v
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if e.Flags&wire.FlagSnappy == 0 {
		t.Fatalf("snappy flag not set")
	}
	if len(e.Payload) >= len(payload) {
		t.Fatalf("payload not compressed: %d >= %d", len(e.Payload), len(payload))
	}
	got, ok, err := b.Get(ctx, "a")
	if err != nil || !ok || !bytes.Equal(got, payload) {
		t.Fatalf("compressed round trip failed: ok=%v err=%v", ok, err)
	}
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	b := newTestBackend(t, mp, nil)
	k := util.EntryKey("test", "a")
	_, _ = mp.Set(ctx, k, []byte("not a frame"), 1, 0)

	if _, ok, err := b.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("corrupt entry: ok=%v err=%v", ok, err)
	}
	if mp.has(k) {
		t.Fatalf("corrupt entry not deleted")
	}
}

// afterGetProvider runs hook once, right after the first Get of key that
// finds a value, before the Backend acts on what it read.
type afterGetProvider struct {
	*memProvider
	key  string
	once sync.Once
	hook func()
}

func (p *afterGetProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := p.memProvider.Get(ctx, key)
	if ok && key == p.key && p.hook != nil {
		p.once.Do(p.hook)
	}
	return v, ok, err
}

func TestStaleReadKeepsConcurrentWrite(t *testing.T) {
	cases := []struct {
		name  string
		stale func(t *testing.T, b *Backend, clk *clock)
	}{
		{"gen_mismatch", func(t *testing.T, b *Backend, _ *clock) {
			if err := b.FlushByTag(context.Background(), "t"); err != nil {
				t.Fatalf("FlushByTag: %v", err)
			}
		}},
		{"expired", func(_ *testing.T, _ *Backend, clk *clock) { clk.t = clk.t.Add(time.Hour) }},
		{"corrupt", func(_ *testing.T, b *Backend, _ *clock) {
			_, _ = b.provider.Set(context.Background(), util.EntryKey("test", "k"), []byte("not a frame"), 1, 0)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clk := &clock{t: time.Unix(1_700_000_000, 0)}
			p := &afterGetProvider{memProvider: newMemProvider(), key: util.EntryKey("test", "k")}
			b := newTestBackend(t, p, func(o *Options) { o.Now = clk.now })

			if err := b.Set(ctx, "k", []byte("stale"), []string{"t"}, time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			tc.stale(t, b, clk)

			// another writer lands between the stale read and its cleanup
			p.hook = func() {
				if err := b.Set(ctx, "k", []byte("fresh"), nil, backend.Unlimited); err != nil {
					t.Errorf("interleaved Set: %v", err)
				}
			}
			if _, ok, _ := b.Get(ctx, "k"); ok {
				t.Fatalf("stale entry returned")
			}
			got, ok, err := b.Get(ctx, "k")
			if err != nil || !ok || string(got) != "fresh" {
				t.Fatalf("write after stale read lost: %q ok=%v err=%v", got, ok, err)
			}
		})
	}
}

func TestConcurrentLastWriteWins(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, newMemProvider(), nil)

	const writers, rounds = 4, 50
	for i := 0; i < writers; i++ {
		_ = b.Set(ctx, fmt.Sprintf("k%d", i), []byte("stale"), []string{"t"}, backend.Unlimited)
	}
	if err := b.FlushByTag(ctx, "t"); err != nil {
		t.Fatalf("FlushByTag: %v", err)
	}

	stop := make(chan struct{})
	errs := make(chan error, writers*rounds)
	var readers, wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for i := 0; i < writers; i++ {
					_, _, _ = b.Get(ctx, fmt.Sprintf("k%d", i))
				}
			}
		}()
	}
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("k%d", w)
			for n := 0; n < rounds; n++ {
				want := fmt.Sprintf("%s-%d", id, n)
				if err := b.Set(ctx, id, []byte(want), []string{"t"}, backend.Unlimited); err != nil {
					errs <- err
					return
				}
				got, ok, err := b.Get(ctx, id)
				if err != nil || !ok || string(got) != want {
					errs <- fmt.Errorf("%s: got %q ok=%v err=%v, want %q", id, got, ok, err, want)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	readers.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestProviderErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	p := &errProvider{memProvider: newMemProvider()}
	b := newTestBackend(t, p, nil)
	if _, _, err := b.Get(ctx, "a"); !errors.Is(err, errBoom) {
		t.Fatalf("want errBoom, got %v", err)
	}
}

func TestRejectedSetIsNotAnError(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.rej = true
	b := newTestBackend(t, mp, nil)
	if err := b.Set(ctx, "a", []byte("a"), nil, backend.Unlimited); err != nil {
		t.Fatalf("rejected set should not fail: %v", err)
	}
	if ok, _ := b.Has(ctx, "a"); ok {
		t.Fatalf("rejected set should not be visible")
	}
}

func TestLoadAndExecuteOnce(t *testing.T) {
	ctx := context.Background()
	var calls int
	exec := backend.ExecutorFunc(func(_ context.Context, id string, payload []byte) (any, error) {
		calls++
		return id + ":" + string(payload), nil
	})
	b := newTestBackend(t, newMemProvider(), func(o *Options) { o.Executor = exec })

	if _, err := b.LoadAndExecuteOnce(ctx, "a"); !errors.Is(err, backend.ErrEntryNotFound) {
		t.Fatalf("missing entry: want ErrEntryNotFound, got %v", err)
	}
	_ = b.Set(ctx, "a", []byte("x"), nil, backend.Unlimited)
	for i := 0; i < 3; i++ {
		v, err := b.LoadAndExecuteOnce(ctx, "a")
		if err != nil || v != "a:x" {
			t.Fatalf("LoadAndExecuteOnce = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("executor ran %d times, want 1", calls)
	}
}

func TestOverRealProviders(t *testing.T) {
	ctx := context.Background()
	bc, err := bigcache.New(ctx, bigcache.Config{Shards: 16})
	if err != nil {
		t.Fatalf("bigcache: %v", err)
	}
	rp, err := ristretto.New(ristretto.Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64, SyncWrites: true})
	if err != nil {
		t.Fatalf("ristretto: %v", err)
	}

	for name, p := range map[string]pr.Provider{"bigcache": bc, "ristretto": rp} {
		t.Run(name, func(t *testing.T) {
			b := newTestBackend(t, p, func(o *Options) {
				o.Compress = true
				o.ComputeSetCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
			})
			defer b.Close(ctx)

			if err := b.Set(ctx, "Foo123", []byte("<?php echo 'hi';\n#"), []string{"v"}, backend.Unlimited); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, ok, err := b.Get(ctx, "Foo123")
			if err != nil || !ok || string(got) != "<?php echo 'hi';\n#" {
				t.Fatalf("Get = %q ok=%v err=%v", got, ok, err)
			}
			_ = b.FlushByTag(ctx, "v")
			if ok, _ := b.Has(ctx, "Foo123"); ok {
				t.Fatalf("tag flush ignored")
			}
		})
	}
}
