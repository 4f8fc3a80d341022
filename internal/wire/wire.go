package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version byte = 1

	// FlagSnappy marks a snappy-compressed payload.
	FlagSnappy byte = 1 << 0
)

var (
	ErrCorrupt = errors.New("codecache: corrupt entry")
	magic4     = [...]byte{'C', 'C', 'E', 'N'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// TagGen pins a tag to the generation observed when the entry was written.
type TagGen struct {
	Tag string
	Gen uint64
}

// Entry is one stored cache entry.
type Entry struct {
	Flags     byte
	ExpiresAt int64 // unix nanos; 0 => no expiry
	FlushGen  uint64
	Tags      []TagGen
	Payload   []byte
}

// Entry:
//
//	magic(4) | ver(1) | flags(1) | expiresAt(i64 be) | flushGen(u64 be) | n(u16 be)
//	tagLen(u16 be) | tag(tagLen) | gen(u64 be)  * n
//	vlen(u32 be) | payload(vlen)
func EncodeEntry(e Entry) ([]byte, error) {
	if len(e.Tags) > 0xFFFF {
		return nil, fmt.Errorf("codecache: too many tags: %d", len(e.Tags))
	}
	total := 4 + 1 + 1 + 8 + 8 + 2 + 4 + len(e.Payload)
	for _, t := range e.Tags {
		if l := len(t.Tag); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("codecache: invalid tag length %d", l)
		}
		total += 2 + len(t.Tag) + 8
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(e.Flags)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.ExpiresAt))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], e.FlushGen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Tags)))
	buf.Write(u2[:])
	for _, t := range e.Tags {
		binary.BigEndian.PutUint16(u2[:], uint16(len(t.Tag)))
		buf.Write(u2[:])
		buf.WriteString(t.Tag)
		binary.BigEndian.PutUint64(u8[:], t.Gen)
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// DecodeEntry parses b strictly: trailing bytes are corruption.
// The returned payload aliases b.
func DecodeEntry(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 1 + 8 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	e := Entry{Flags: b[5]}
	off := 6

	e.ExpiresAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	e.FlushGen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	// no preallocation from n: it is untrusted until the tags are read
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Entry{}, ErrCorrupt
		}
		tlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if tlen == 0 || tlen > len(b)-off {
			return Entry{}, ErrCorrupt
		}
		tag := string(b[off : off+tlen])
		off += tlen

		if off+8 > len(b) {
			return Entry{}, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		e.Tags = append(e.Tags, TagGen{Tag: tag, Gen: gen})
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}
	e.Payload = b[off:]
	return e, nil
}
