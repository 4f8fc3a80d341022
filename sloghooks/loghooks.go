// Package sloghooks reports frontend events through log/slog.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/codecache"
	"github.com/unkn0wn-root/codecache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	InvalidKeyEvery        uint64
	MalformedEnvelopeEvery uint64
	// Optional value redactor applied to identifiers and tags.
	// Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	invalidKeyCtr atomic.Uint64
	envelopeCtr   atomic.Uint64
}

var _ codecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) InvalidKey(op, kind, value string) {
	if h.l == nil || !sample(h.opts.InvalidKeyEvery, &h.invalidKeyCtr) {
		return
	}
	h.l.Info("codecache.invalid_key",
		"op", op,
		"kind", kind,
		"value", h.redact(value))
}

func (h *Hooks) InvalidData(id string) {
	if h.l == nil {
		return
	}
	h.l.Warn("codecache.invalid_data",
		"id", h.redact(id))
}

func (h *Hooks) BackendError(op, id string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("codecache.backend_error",
		"op", op,
		"id", h.redact(id),
		"err", err)
}

func (h *Hooks) MalformedEnvelope(id string) {
	if h.l == nil || !sample(h.opts.MalformedEnvelopeEvery, &h.envelopeCtr) {
		return
	}
	h.l.Warn("codecache.malformed_envelope",
		"id", h.redact(id))
}
