// Package mp4 implements a generic, registrable ISO-BMFF box parser and the
// typed box decoders built on top of it.
package mp4

import (
	"encoding/binary"
	"fmt"
)

// ErrUnexpectedEOF is returned when a read would exceed the reader's length.
var ErrUnexpectedEOF = fmt.Errorf("mp4: unexpected end of data")

// Reader is a bounded big-endian cursor over a byte slice. All box code goes
// through this; there is no ambient cursor.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data in a Reader positioned at offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current read offset.
func (r *Reader) Position() int { return r.pos }

// Length returns the total number of bytes available.
func (r *Reader) Length() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) require(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return ErrUnexpectedEOF
	}
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.require(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// ReadBytes reads and returns the next n bytes, advancing the cursor.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// ReadU16 reads a big-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadU32 reads a big-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadU64 reads a big-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadI32 reads a big-endian int32.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// Rest returns every remaining unread byte without advancing the cursor.
func (r *Reader) Rest() []byte {
	return r.data[r.pos:]
}

// Sub returns a new Reader scoped to exactly the next n bytes, advancing
// this reader's cursor past them.
func (r *Reader) Sub(n int) (*Reader, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}
