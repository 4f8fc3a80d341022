package codecache

import (
	"fmt"
)

// Kind classifies frontend errors.
type Kind uint8

const (
	// KindInvalidIdentifier: an identifier or tag failed the grammar check.
	KindInvalidIdentifier Kind = iota + 1
	// KindInvalidData: the source code passed to Set is not valid UTF-8 text.
	KindInvalidData
	// KindUnsupported: the backend lacks the capability an operation needs.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindInvalidIdentifier:
		return "invalid_identifier"
	case KindInvalidData:
		return "invalid_data"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Stable codes carried by *Error, one per failing check.
const (
	CodeGetInvalidIdentifier = 1233057752
	CodeSetInvalidIdentifier = 1264023823
	CodeSetInvalidData       = 1264023824
	CodeSetInvalidTag        = 1264023825
	CodeInvalidCacheName     = 1203965999
	CodeUnsupported          = 1264023826
)

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier}
	ErrInvalidData       = &Error{Kind: KindInvalidData}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
)

// Error is returned for every failure the frontend detects itself.
// Backend errors are never wrapped in it.
type Error struct {
	Kind  Kind
	Code  int
	Value string // offending identifier or tag, if any
	Msg   string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "codecache: " + e.Kind.String()
	}
	return fmt.Sprintf("codecache: %s (#%d)", e.Msg, e.Code)
}

// Is matches on Kind so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func invalidIdentifier(code int, id string) *Error {
	return &Error{
		Kind:  KindInvalidIdentifier,
		Code:  code,
		Value: id,
		Msg:   fmt.Sprintf("%q is not a valid cache entry identifier", id),
	}
}

func invalidTag(tag string) *Error {
	return &Error{
		Kind:  KindInvalidIdentifier,
		Code:  CodeSetInvalidTag,
		Value: tag,
		Msg:   fmt.Sprintf("%q is not a valid tag for a cache entry", tag),
	}
}

func unsupported(op string) *Error {
	return &Error{
		Kind: KindUnsupported,
		Code: CodeUnsupported,
		Msg:  op + " is not supported by the configured backend",
	}
}
