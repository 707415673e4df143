// Package savestate encodes snapshot values as fixed-width little-endian
// fields. Snapshots only ever carry plain values; lookup tables are rebuilt
// by their owners after a load and never written here.
package savestate

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrStateCorruption is returned when a snapshot is truncated, misframed or
// carries a value outside the range its field allows.
var ErrStateCorruption = errors.New("state corruption")

// Corruptf wraps ErrStateCorruption with a description of the offending field.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateCorruption, fmt.Sprintf(format, args...))
}

// Encoder appends fields to an in-memory snapshot.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Section writes a four character marker used to detect misframed input.
func (e *Encoder) Section(tag string) {
	if len(tag) != 4 {
		panic("savestate: section tags are four bytes")
	}
	e.buf = append(e.buf, tag...)
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) U8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) U16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *Encoder) U32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *Encoder) I32(v int32)  { e.U32(uint32(v)) }
func (e *Encoder) I64(v int64)  { e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v)) }

// Bytes writes a length-prefixed byte slice.
func (e *Encoder) Bytes(p []byte) {
	e.U32(uint32(len(p)))
	e.buf = append(e.buf, p...)
}

// Data returns the encoded snapshot.
func (e *Encoder) Data() []byte {
	return e.buf
}

// Decoder reads fields back in the order they were encoded. The first
// failure sticks; every later read returns the zero value.
type Decoder struct {
	buf []byte
	off int
	err error
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: data}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = Corruptf("truncated at offset %d (need %d bytes, have %d)", d.off, n, len(d.buf)-d.off)
		return nil
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p
}

// Section checks that the next four bytes match tag.
func (d *Decoder) Section(tag string) {
	p := d.take(len(tag))
	if p != nil && string(p) != tag {
		d.err = Corruptf("expected section %q at offset %d, found %q", tag, d.off-len(tag), p)
	}
}

func (d *Decoder) Bool() bool {
	p := d.take(1)
	if p == nil {
		return false
	}
	switch p[0] {
	case 0:
		return false
	case 1:
		return true
	}
	d.err = Corruptf("invalid bool 0x%02X at offset %d", p[0], d.off-1)
	return false
}

func (d *Decoder) U8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *Decoder) U16() uint16 {
	if p := d.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *Decoder) U32() uint32 {
	if p := d.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *Decoder) I32() int32 { return int32(d.U32()) }

func (d *Decoder) I64() int64 {
	if p := d.take(8); p != nil {
		return int64(binary.LittleEndian.Uint64(p))
	}
	return 0
}

// Bytes reads a length-prefixed byte slice. The result is a copy.
func (d *Decoder) Bytes() []byte {
	n := d.U32()
	p := d.take(int(n))
	if p == nil {
		return nil
	}
	return append([]byte(nil), p...)
}

// Fail records err unless an earlier failure is already stored.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Err reports the first failure.
func (d *Decoder) Err() error {
	return d.err
}

// Finish reports the first failure, or corruption if input remains unread.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return Corruptf("%d trailing bytes", len(d.buf)-d.off)
	}
	return nil
}
