package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/codecache/backend"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSetGetOverwrite(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})

	_, ok, err := b.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "a", []byte("one"), nil, backend.DefaultLifetime))
	require.NoError(t, b.Set(ctx, "a", []byte("two"), []string{"t"}, backend.DefaultLifetime))

	got, ok, err := b.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(got))

	tags, _ := b.Tags("a")
	assert.Equal(t, []string{"t"}, tags)
}

func TestPayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})
	p := []byte("abc")
	require.NoError(t, b.Set(ctx, "a", p, nil, backend.Unlimited))
	p[0] = 'X'

	got, _, _ := b.Get(ctx, "a")
	assert.Equal(t, "abc", string(got))
	got[1] = 'Y'
	again, _, _ := b.Get(ctx, "a")
	assert.Equal(t, "abc", string(again))
}

func TestLifetime(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Unix(1000, 0)}
	b := New(Config{DefaultLifetime: time.Minute, Now: c.now})

	require.NoError(t, b.Set(ctx, "def", []byte("x"), nil, backend.DefaultLifetime))
	require.NoError(t, b.Set(ctx, "short", []byte("x"), nil, time.Second))
	require.NoError(t, b.Set(ctx, "forever", []byte("x"), nil, backend.Unlimited))

	c.advance(2 * time.Second)
	_, ok, _ := b.Get(ctx, "short")
	assert.False(t, ok, "short-lived entry should expire")
	_, ok, _ = b.Get(ctx, "def")
	assert.True(t, ok, "default lifetime not reached yet")

	c.advance(time.Hour)
	_, ok, _ = b.Get(ctx, "def")
	assert.False(t, ok)
	_, ok, _ = b.Get(ctx, "forever")
	assert.True(t, ok)
	assert.Equal(t, 1, b.Len(), "expired entries are dropped on read")
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})
	require.NoError(t, b.Set(ctx, "a", []byte("1"), []string{"g1", "g2"}, backend.Unlimited))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), []string{"g2"}, backend.Unlimited))
	require.NoError(t, b.Set(ctx, "c", []byte("3"), nil, backend.Unlimited))

	require.NoError(t, b.FlushByTag(ctx, "g1"))
	has, _ := b.Has(ctx, "a")
	assert.False(t, has)
	has, _ = b.Has(ctx, "b")
	assert.True(t, has)

	removed, err := b.Remove(ctx, "b")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, _ = b.Remove(ctx, "b")
	assert.False(t, removed)

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 0, b.Len())
}

func TestLoadAndExecuteOnce(t *testing.T) {
	ctx := context.Background()
	var runs int
	b := New(Config{Executor: backend.ExecutorFunc(func(_ context.Context, _ string, p []byte) (any, error) {
		runs++
		return len(p), nil
	})})

	_, err := b.LoadAndExecuteOnce(ctx, "nope")
	assert.True(t, errors.Is(err, backend.ErrEntryNotFound))

	require.NoError(t, b.Set(ctx, "a", []byte("four"), nil, backend.Unlimited))
	for i := 0; i < 3; i++ {
		v, err := b.LoadAndExecuteOnce(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 4, v)
	}
	assert.Equal(t, 1, runs)

	// execution is process scoped: removing the entry does not re-arm it
	_, _ = b.Remove(ctx, "a")
	v, err := b.LoadAndExecuteOnce(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	assert.Equal(t, 1, runs)
}
