// Package codec serializes the metadata sidecar of backend/file.
//
// Payloads are never run through a codec: the cached source is stored as-is.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by ByName.
const (
	NameJSON    = "json"
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
)

// ByName returns the codec registered under name. An empty name selects CBOR.
// Protobuf is not selectable by name because it needs a message constructor.
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", NameCBOR:
		c, err := NewCBOR[V](true)
		if err != nil {
			return nil, err
		}
		return c, nil
	case NameJSON:
		return JSON[V]{}, nil
	case NameMsgpack:
		return Msgpack[V]{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
