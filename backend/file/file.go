// Package file stores entries on the local filesystem.
//
// Each entry is two files in Dir: "<id>.php" holds the payload verbatim so it
// can be executed or inspected directly, "<id>.meta" holds tags and expiry
// encoded with a codec.Codec[Meta] (deterministic CBOR by default). Both are
// written to a temp file first and renamed into place.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/codecache"
	"github.com/unkn0wn-root/codecache/backend"
	"github.com/unkn0wn-root/codecache/codec"
)

const (
	PayloadExt = ".php"
	MetaExt    = ".meta"

	defaultMaxMeta = 1 << 20
)

var (
	ErrInvalidPath = errors.New("file: identifier is not a safe file name")
	errCorruptMeta = errors.New("file: corrupt meta sidecar")
)

// Meta is the sidecar of one entry.
type Meta struct {
	Tags      []string `json:"tags,omitempty" cbor:"tags,omitempty" msgpack:"tags,omitempty"`
	ExpiresAt int64    `json:"expires_at" cbor:"expires_at" msgpack:"expires_at"` // unix nanos; 0 => never
}

func (m Meta) expired(now time.Time) bool {
	return m.ExpiresAt != 0 && now.UnixNano() >= m.ExpiresAt
}

type Config struct {
	Dir             string
	MetaCodec       codec.Codec[Meta] // nil => deterministic CBOR
	MaxMetaSize     int               // sidecars larger than this are treated as corrupt; 0 => 1 MiB
	Executor        backend.Executor
	DefaultLifetime time.Duration // applied to backend.DefaultLifetime; 0 => unlimited
	FileMode        fs.FileMode   // 0 => 0o644
	Logger          codecache.Logger
	Now             func() time.Time
}

type Backend struct {
	dir     string
	meta    codec.Codec[Meta]
	exec    backend.Executor
	defLife time.Duration
	mode    fs.FileMode
	log     codecache.Logger
	now     func() time.Time
	once    backend.Once

	// serializes writers against readers of the payload/meta pair
	mu sync.RWMutex
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Manager = (*Backend)(nil)
)

func New(cfg Config) (*Backend, error) {
	if cfg.Dir == "" {
		return nil, errors.New("file: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create dir: %w", err)
	}
	mc := cfg.MetaCodec
	if mc == nil {
		c, err := codec.NewCBOR[Meta](true)
		if err != nil {
			return nil, err
		}
		mc = c
	}
	maxMeta := cfg.MaxMetaSize
	if maxMeta <= 0 {
		maxMeta = defaultMaxMeta
	}
	b := &Backend{
		dir:     cfg.Dir,
		meta:    codec.Limit[Meta]{Inner: mc, MaxDecode: maxMeta},
		exec:    cfg.Executor,
		defLife: cfg.DefaultLifetime,
		mode:    cfg.FileMode,
		log:     cfg.Logger,
		now:     cfg.Now,
	}
	if b.mode == 0 {
		b.mode = 0o644
	}
	if b.log == nil {
		b.log = codecache.NopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Path returns the payload file of id.
func (b *Backend) Path(id string) (string, error) {
	if err := checkName(id); err != nil {
		return "", err
	}
	return filepath.Join(b.dir, id+PayloadExt), nil
}

func (b *Backend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := checkName(id); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	m, seen, err := b.readMetaFile(id)
	if errors.Is(err, errCorruptMeta) {
		pseen := b.statPayload(id)
		b.mu.RUnlock()
		b.evict(id, "corrupt_meta", seen, pseen)
		return nil, false, nil
	}
	if err != nil || seen == nil {
		b.mu.RUnlock()
		return nil, false, err
	}
	if m.expired(b.now()) {
		pseen := b.statPayload(id)
		b.mu.RUnlock()
		b.evict(id, "expired", seen, pseen)
		return nil, false, nil
	}
	payload, err := os.ReadFile(b.payloadPath(id))
	b.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		b.evict(id, "orphan_meta", seen, nil)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (b *Backend) Set(ctx context.Context, id string, payload []byte, tags []string, lifetime time.Duration) error {
	if err := checkName(id); err != nil {
		return err
	}
	lifetime = backend.ResolveLifetime(lifetime, b.defLife)
	m := Meta{Tags: slices.Clone(tags)}
	if exp := backend.ExpiresAt(b.now(), lifetime); !exp.IsZero() {
		m.ExpiresAt = exp.UnixNano()
	}
	raw, err := b.meta.Encode(m)
	if err != nil {
		return fmt.Errorf("file: encode meta: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeAtomic(b.payloadPath(id), payload); err != nil {
		return err
	}
	return b.writeAtomic(b.metaPath(id), raw)
}

func (b *Backend) LoadAndExecuteOnce(ctx context.Context, id string) (any, error) {
	return b.once.LoadAndExecute(ctx, id, b.exec, b.Get)
}

func (b *Backend) Has(ctx context.Context, id string) (bool, error) {
	_, ok, err := b.Get(ctx, id)
	return ok, err
}

func (b *Backend) Remove(ctx context.Context, id string) (bool, error) {
	if err := checkName(id); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok, err := b.readMeta(id)
	if errors.Is(err, errCorruptMeta) {
		ok, err = false, nil
	}
	if err != nil {
		return false, err
	}
	if err := b.removePair(id); err != nil {
		return false, err
	}
	return ok, nil
}

func (b *Backend) Flush(ctx context.Context) error {
	return b.sweep(ctx, func(string, Meta) bool { return true })
}

func (b *Backend) FlushByTag(ctx context.Context, tag string) error {
	return b.sweep(ctx, func(_ string, m Meta) bool { return slices.Contains(m.Tags, tag) })
}

// CollectGarbage removes expired entries and sidecars that no longer decode.
func (b *Backend) CollectGarbage(ctx context.Context) error {
	now := b.now()
	return b.sweep(ctx, func(_ string, m Meta) bool { return m.expired(now) })
}

// sweep removes every entry whose meta matches. Entries with a corrupt
// sidecar and payloads without one are removed too.
func (b *Backend) sweep(ctx context.Context, match func(id string, m Meta) bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	des, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("file: read dir: %w", err)
	}
	var removed int
	for _, de := range des {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := de.Name()
		if de.IsDir() {
			continue
		}
		if id, ok := strings.CutSuffix(name, PayloadExt); ok {
			if _, err := os.Stat(b.metaPath(id)); errors.Is(err, fs.ErrNotExist) {
				if err := os.Remove(b.payloadPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			continue
		}
		if !strings.HasSuffix(name, MetaExt) {
			continue
		}
		id := strings.TrimSuffix(name, MetaExt)
		m, ok, err := b.readMeta(id)
		switch {
		case errors.Is(err, errCorruptMeta):
		case err != nil:
			return err
		case !ok || !match(id, m):
			continue
		}
		if err := b.removePair(id); err != nil {
			return err
		}
		removed++
	}
	b.log.Debug("swept entries", codecache.Fields{"dir": b.dir, "removed": removed})
	return nil
}

// readMeta returns ok=false when there is no sidecar. A sidecar that fails
// to decode yields errCorruptMeta.
func (b *Backend) readMeta(id string) (Meta, bool, error) {
	m, info, err := b.readMetaFile(id)
	return m, info != nil, err
}

// readMetaFile is readMeta that also returns the identity of the sidecar it
// read; info is nil when there is none.
func (b *Backend) readMetaFile(id string) (Meta, fs.FileInfo, error) {
	f, err := os.Open(b.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Meta{}, nil, nil
	}
	if err != nil {
		return Meta{}, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Meta{}, nil, err
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return Meta{}, nil, err
	}
	m, err := b.meta.Decode(raw)
	if err != nil {
		b.log.Warn("corrupt meta sidecar", codecache.Fields{"id": id, "err": err})
		return Meta{}, info, fmt.Errorf("%w %q: %v", errCorruptMeta, id, err)
	}
	return m, info, nil
}

func (b *Backend) statPayload(id string) fs.FileInfo {
	info, err := os.Stat(b.payloadPath(id))
	if err != nil {
		return nil
	}
	return info
}

// evict removes an entry a reader judged dead, unless it was rewritten in
// the meantime. Writes rename new files into place, so a rewrite changes the
// identity of the sidecar or the payload. A nil payload means the reader
// found none; then only the sidecar goes, so a payload landing ahead of its
// sidecar survives.
func (b *Backend) evict(id, reason string, meta, payload fs.FileInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields := codecache.Fields{"id": id, "reason": reason}
	if !sameFile(meta, b.metaPath(id)) {
		b.log.Debug("evict skipped (sidecar rewritten)", fields)
		return
	}
	paths := []string{b.metaPath(id)}
	if payload != nil {
		if !sameFile(payload, b.payloadPath(id)) {
			b.log.Debug("evict skipped (payload rewritten)", fields)
			return
		}
		paths = append(paths, b.payloadPath(id))
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fields["err"] = err
			b.log.Warn("evict failed", fields)
			return
		}
	}
	b.log.Debug("evicted entry", fields)
}

// sameFile also compares mtime and size, since a freed inode number can be
// handed to a later write.
func sameFile(seen fs.FileInfo, path string) bool {
	cur, err := os.Stat(path)
	return err == nil && os.SameFile(seen, cur) &&
		cur.ModTime().Equal(seen.ModTime()) && cur.Size() == seen.Size()
}

func (b *Backend) removePair(id string) error {
	// meta first: an entry without a sidecar is a miss
	for _, p := range []string{b.metaPath(id), b.payloadPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (b *Backend) writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Chmod(b.mode)
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp, path)
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file: write %s: %w", filepath.Base(path), werr)
	}
	return nil
}

func (b *Backend) payloadPath(id string) string { return filepath.Join(b.dir, id+PayloadExt) }
func (b *Backend) metaPath(id string) string    { return filepath.Join(b.dir, id+MetaExt) }

func checkName(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`+"\x00") || strings.Contains(id, "..") ||
		strings.HasPrefix(id, ".tmp-") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, id)
	}
	return nil
}
