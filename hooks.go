package codecache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The frontend calls them on hot paths.
type Hooks interface {
	// An identifier or tag was rejected before reaching the backend.
	// kind ∈ {"identifier", "tag"}
	InvalidKey(op, kind, value string)

	// Set received source code that is not valid UTF-8.
	InvalidData(entryIdentifier string)

	// The backend returned an error; it is passed to the caller unchanged.
	// op ∈ {"get", "get_wrapped", "set", "require_once", "has", "remove", "flush", "flush_by_tag"}
	BackendError(op, entryIdentifier string, err error)

	// Get read a payload without the envelope framing and fell back to the
	// line-based strip.
	MalformedEnvelope(entryIdentifier string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) InvalidKey(string, string, string)  {}
func (NopHooks) InvalidData(string)                 {}
func (NopHooks) BackendError(string, string, error) {}
func (NopHooks) MalformedEnvelope(string)           {}

// MultiHooks fans every event out to each of its members in order.
type MultiHooks []Hooks

func (m MultiHooks) InvalidKey(op, kind, value string) {
	for _, h := range m {
		h.InvalidKey(op, kind, value)
	}
}

func (m MultiHooks) InvalidData(id string) {
	for _, h := range m {
		h.InvalidData(id)
	}
}

func (m MultiHooks) BackendError(op, id string, err error) {
	for _, h := range m {
		h.BackendError(op, id, err)
	}
}

func (m MultiHooks) MalformedEnvelope(id string) {
	for _, h := range m {
		h.MalformedEnvelope(id)
	}
}
