package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestEvents(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{Redact: func(s string) string { return "<" + s + ">" }})

	h.InvalidKey("set", "tag", "bad tag")
	h.InvalidData("Foo")
	h.BackendError("get", "Foo", errors.New("boom"))
	h.MalformedEnvelope("Foo")

	out := buf.String()
	for _, want := range []string{
		"codecache.invalid_key", "op=set", "kind=tag", `value="<bad tag>"`,
		"codecache.invalid_data",
		"codecache.backend_error", "err=boom",
		"codecache.malformed_envelope", "id=<Foo>",
	} {
		assert.Contains(t, out, want)
	}
}

func TestDefaultRedactHidesValue(t *testing.T) {
	l, buf := newBufLogger()
	New(l, Options{}).InvalidData("secret-id")
	assert.NotContains(t, buf.String(), "secret-id")
}

func TestSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{InvalidKeyEvery: 3})
	for i := 0; i < 9; i++ {
		h.InvalidKey("get", "identifier", "x")
	}
	assert.Equal(t, 3, strings.Count(buf.String(), "codecache.invalid_key"))
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.InvalidKey("get", "identifier", "x")
	h.InvalidData("x")
	h.BackendError("get", "x", errors.New("boom"))
	h.MalformedEnvelope("x")
}
