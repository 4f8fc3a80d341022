// Package envelope frames source code so a host runtime can include a cache
// entry directly.
//
// Stored form:
//
//	"<?php" + " " + code + "\n" + "#"
//
// The trailing "#" line guarantees the payload ends with a complete line even
// when code has no trailing newline.
package envelope

import "bytes"

const (
	// OpenMarker tells the host runtime that executable source follows.
	OpenMarker = "<?php"
	// Sentinel is the content of the trailing line.
	Sentinel = "#"
)

var (
	prefix = []byte(OpenMarker + " ")
	suffix = []byte("\n" + Sentinel)
)

// Wrap returns code framed for storage.
func Wrap(code string) []byte {
	out := make([]byte, 0, len(prefix)+len(code)+len(suffix))
	out = append(out, prefix...)
	out = append(out, code...)
	return append(out, suffix...)
}

// IsWrapped reports whether b carries the framing written by Wrap.
func IsWrapped(b []byte) bool {
	return len(b) >= len(prefix)+len(suffix) &&
		bytes.HasPrefix(b, prefix) &&
		bytes.HasSuffix(b, suffix)
}

// Unwrap returns the code stored in b.
//
// For payloads produced by Wrap the marker and the sentinel line are cut off
// exactly, so Unwrap(Wrap(c)) == c for every c, including "" and "#".
// Anything else goes through StripLines and ok is false.
func Unwrap(b []byte) (code string, ok bool) {
	if IsWrapped(b) {
		return string(b[len(prefix) : len(b)-len(suffix)]), true
	}
	return StripLines(b), false
}

// StripLines drops the first line of b and then the last line of what
// remains, if any. Interior lines and their terminators are kept as they are.
//
// A last line consisting of a lone "\n" counts as a line, so "m\na\n\n"
// yields "a\n". A body whose only remaining line looks like the sentinel is
// indistinguishable from the sentinel and is dropped.
func StripLines(b []byte) string {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return ""
	}
	rest := b[i+1:]
	// the last line's own terminator, if present
	rest = bytes.TrimSuffix(rest, []byte("\n"))
	j := bytes.LastIndexByte(rest, '\n')
	if j < 0 {
		return ""
	}
	return string(rest[:j+1])
}
