package serial

import (
	"encoding/binary"
)

// Encoder appends encoded values to an in-memory buffer.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded data.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Err returns the first error encountered while encoding.
func (e *Encoder) Err() error {
	return e.err
}

// SetErr records err unless an error was already recorded. It lets Encodable
// implementations report their own validation failures.
func (e *Encoder) SetErr(err error) {
	if e.err == nil {
		e.err = err
	}
}

// WriteU8 ...
func (e *Encoder) WriteU8(v uint8) {
	if e.err != nil {
		return
	}
	e.buf = append(e.buf, v)
}

// WriteU16 ...
func (e *Encoder) WriteU16(v uint16) {
	if e.err != nil {
		return
	}
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

// WriteU32 ...
func (e *Encoder) WriteU32(v uint32) {
	if e.err != nil {
		return
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// WriteU64 ...
func (e *Encoder) WriteU64(v uint64) {
	if e.err != nil {
		return
	}
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// WriteBool writes 1 for true and 0 for false.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteU8(1)
		return
	}
	e.WriteU8(0)
}

// WriteVarInt writes v in its minimal VarInt form.
func (e *Encoder) WriteVarInt(v uint64) {
	switch VarInt(v).Length() {
	case 1:
		e.WriteU8(uint8(v))
	case 3:
		e.WriteU8(varIntU16)
		e.WriteU16(uint16(v))
	case 5:
		e.WriteU8(varIntU32)
		e.WriteU32(uint32(v))
	default:
		e.WriteU8(varIntU64)
		e.WriteU64(v)
	}
}

// WriteFixed writes b as is, without a length prefix.
func (e *Encoder) WriteFixed(b []byte) {
	if e.err != nil {
		return
	}
	e.buf = append(e.buf, b...)
}

// WriteBytes writes a VarInt length followed by b.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteVarInt(uint64(len(b)))
	e.WriteFixed(b)
}

// WriteString writes a VarInt length followed by the bytes of s.
func (e *Encoder) WriteString(s string) {
	e.WriteVarInt(uint64(len(s)))
	if e.err != nil {
		return
	}
	e.buf = append(e.buf, s...)
}

// WriteOptionU64 writes the 0/1 presence tag followed by *v when v is not nil.
func (e *Encoder) WriteOptionU64(v *uint64) {
	if v == nil {
		e.WriteU8(0)
		return
	}
	e.WriteU8(1)
	e.WriteU64(*v)
}

// Write writes an Encodable value.
func (e *Encoder) Write(v Encodable) {
	if e.err != nil {
		return
	}
	v.Encode(e)
}
