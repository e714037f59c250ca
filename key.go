package ordidx

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxKeyLen is the longest key the index accepts, terminator included (the
// C original stores keys inline, NUL-terminated, in its arena nodes; Go
// keys carry their own length so the constraint is purely a size cap).
const MaxKeyLen = 32767

// Key is a non-empty byte string compared unsigned-byte-wise. Keys carry no
// Unicode collation semantics: FromString only normalizes the input text,
// it does not make comparisons locale-aware.
type Key []byte

// FromBytes returns a copy of b as a Key.
func FromBytes(b []byte) Key {
	kb := make([]byte, len(b))
	copy(kb, b)
	return Key(kb)
}

// FromString NFC-normalizes s and returns its UTF-8 bytes as a Key.
func FromString(s string) Key {
	return FromBytes([]byte(norm.NFC.String(s)))
}

// FromUint64 encodes u as an order-preserving 8-byte big-endian Key.
func FromUint64(u uint64) Key {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	return Key(b[:])
}

// FromInt64 encodes i as an order-preserving 8-byte big-endian Key: the
// signed range is shifted by 1<<63 so lexicographic Key order matches
// numeric order.
func FromInt64(i int64) Key {
	const offset = uint64(1) << 63
	return FromUint64(uint64(i) + offset)
}

// FromUint32 encodes u as an order-preserving 8-byte big-endian Key.
func FromUint32(u uint32) Key {
	return FromUint64(uint64(u))
}

// FromInt32 encodes i as an order-preserving 8-byte big-endian Key.
func FromInt32(i int32) Key {
	return FromInt64(int64(i))
}

// String renders k as uppercase hex tuples, e.g. "[01,AB,00]".
func (k Key) String() string {
	if len(k) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	const hex = "0123456789ABCDEF"
	for i, b := range k {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(hex[b>>4])
		sb.WriteByte(hex[b&0x0F])
	}
	sb.WriteByte(']')
	return sb.String()
}

// Validate reports whether k satisfies the index's key constraints:
// non-empty, shorter than MaxKeyLen, and free of embedded 0x00 bytes.
func (k Key) Validate() error {
	if len(k) == 0 {
		return fmt.Errorf("key is empty: %w", ErrInvalidArgument)
	}
	if len(k) >= MaxKeyLen {
		return fmt.Errorf("key length %d >= MaxKeyLen %d: %w", len(k), MaxKeyLen, ErrInvalidArgument)
	}
	for _, b := range k {
		if b == 0 {
			return fmt.Errorf("key contains embedded NUL byte: %w", ErrInvalidArgument)
		}
	}
	return nil
}
