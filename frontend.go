package codecache

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/unkn0wn-root/codecache/backend"
	"github.com/unkn0wn-root/codecache/envelope"
)

type frontend struct {
	id      string
	backend backend.Backend
	log     Logger
	hooks   Hooks
}

var _ Frontend = (*frontend)(nil)

func newFrontend(opts Options) (*frontend, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("codecache: backend is required")
	}
	if !IsValidEntryIdentifier(opts.Identifier) {
		return nil, &Error{
			Kind:  KindInvalidIdentifier,
			Code:  CodeInvalidCacheName,
			Value: opts.Identifier,
			Msg:   fmt.Sprintf("%q is not a valid cache identifier", opts.Identifier),
		}
	}
	f := &frontend{
		id:      opts.Identifier,
		backend: opts.Backend,
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if opts.Logger != nil {
		f.log = scoped{l: opts.Logger, base: Fields{"cache": opts.Identifier}}
	} else {
		f.log = NopLogger{}
	}
	return f, nil
}

func (f *frontend) Identifier() string       { return f.id }
func (f *frontend) Backend() backend.Backend { return f.backend }

func (f *frontend) IsValidEntryIdentifier(id string) bool { return IsValidEntryIdentifier(id) }
func (f *frontend) IsValidTag(tag string) bool            { return IsValidTag(tag) }

func (f *frontend) Set(ctx context.Context, id, sourceCode string, tags []string, lifetime time.Duration) error {
	if !IsValidEntryIdentifier(id) {
		f.rejectKey("set", "identifier", id)
		return invalidIdentifier(CodeSetInvalidIdentifier, id)
	}
	if !utf8.ValidString(sourceCode) {
		f.hooks.InvalidData(id)
		f.log.Debug("set rejected (source code is not valid text)", Fields{"entry": id})
		return &Error{
			Kind:  KindInvalidData,
			Code:  CodeSetInvalidData,
			Value: id,
			Msg:   "the given source code is not a valid string",
		}
	}
	for _, tag := range tags {
		if !IsValidTag(tag) {
			f.rejectKey("set", "tag", tag)
			return invalidTag(tag)
		}
	}
	if err := f.backend.Set(ctx, id, envelope.Wrap(sourceCode), tags, lifetime); err != nil {
		f.backendError("set", id, err)
		return err
	}
	return nil
}

func (f *frontend) Get(ctx context.Context, id string) (string, bool, error) {
	raw, ok, err := f.get(ctx, "get", id)
	if err != nil || !ok {
		return "", false, err
	}
	code, framed := envelope.Unwrap(raw)
	if !framed {
		f.hooks.MalformedEnvelope(id)
		f.log.Warn("payload without envelope framing; stripped by lines", Fields{"entry": id})
	}
	return code, true, nil
}

func (f *frontend) GetWrapped(ctx context.Context, id string) (string, bool, error) {
	raw, ok, err := f.get(ctx, "get_wrapped", id)
	if err != nil || !ok {
		return "", false, err
	}
	return string(raw), true, nil
}

// RequireOnce does no validation and no envelope handling: the backend owns
// loading, execution and the at-most-once guarantee.
func (f *frontend) RequireOnce(ctx context.Context, id string) (any, error) {
	v, err := f.backend.LoadAndExecuteOnce(ctx, id)
	if err != nil {
		f.backendError("require_once", id, err)
	}
	return v, err
}

func (f *frontend) Has(ctx context.Context, id string) (bool, error) {
	m, err := f.manager("has", id)
	if err != nil {
		return false, err
	}
	ok, err := m.Has(ctx, id)
	if err != nil {
		f.backendError("has", id, err)
	}
	return ok, err
}

func (f *frontend) Remove(ctx context.Context, id string) (bool, error) {
	m, err := f.manager("remove", id)
	if err != nil {
		return false, err
	}
	ok, err := m.Remove(ctx, id)
	if err != nil {
		f.backendError("remove", id, err)
	}
	return ok, err
}

func (f *frontend) Flush(ctx context.Context) error {
	m, ok := f.backend.(backend.Manager)
	if !ok {
		return unsupported("flush")
	}
	if err := m.Flush(ctx); err != nil {
		f.backendError("flush", "", err)
		return err
	}
	f.log.Info("cache flushed", nil)
	return nil
}

func (f *frontend) FlushByTag(ctx context.Context, tag string) error {
	if !IsValidTag(tag) {
		f.rejectKey("flush_by_tag", "tag", tag)
		return invalidTag(tag)
	}
	m, ok := f.backend.(backend.Manager)
	if !ok {
		return unsupported("flush_by_tag")
	}
	if err := m.FlushByTag(ctx, tag); err != nil {
		f.backendError("flush_by_tag", "", err)
		return err
	}
	f.log.Debug("flushed by tag", Fields{"tag": tag})
	return nil
}

func (f *frontend) Close(ctx context.Context) error {
	if c, ok := f.backend.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

func (f *frontend) get(ctx context.Context, op, id string) ([]byte, bool, error) {
	if !IsValidEntryIdentifier(id) {
		f.rejectKey(op, "identifier", id)
		return nil, false, invalidIdentifier(CodeGetInvalidIdentifier, id)
	}
	raw, ok, err := f.backend.Get(ctx, id)
	if err != nil {
		f.backendError(op, id, err)
		return nil, false, err
	}
	return raw, ok, nil
}

func (f *frontend) manager(op, id string) (backend.Manager, error) {
	if !IsValidEntryIdentifier(id) {
		f.rejectKey(op, "identifier", id)
		return nil, invalidIdentifier(CodeGetInvalidIdentifier, id)
	}
	m, ok := f.backend.(backend.Manager)
	if !ok {
		return nil, unsupported(op)
	}
	return m, nil
}

func (f *frontend) rejectKey(op, kind, value string) {
	f.hooks.InvalidKey(op, kind, value)
	f.log.Debug(op+" rejected (invalid "+kind+")", Fields{kind: value})
}

func (f *frontend) backendError(op, id string, err error) {
	f.hooks.BackendError(op, id, err)
	f.log.Warn("backend error", Fields{"op": op, "entry": id, "err": err})
}
