package serial

import (
	"encoding/binary"
	"fmt"
)

// MaxLength bounds every length or count read from the wire.
const MaxLength = 32 * 1024 * 1024

// Decoder reads encoded values from an in-memory buffer.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a Decoder reading from data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: data}
}

// Err returns the first error encountered while decoding.
func (d *Decoder) Err() error {
	return d.err
}

// SetErr records err unless an error was already recorded.
func (d *Decoder) SetErr(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

// Remaining returns the number of bytes left to read.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Remaining() < n {
		d.err = ErrUnexpectedEOF
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// ReadU8 ...
func (d *Decoder) ReadU8() uint8 {
	b := d.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadU16 ...
func (d *Decoder) ReadU16() uint16 {
	b := d.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadU32 ...
func (d *Decoder) ReadU32() uint32 {
	b := d.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadU64 ...
func (d *Decoder) ReadU64() uint64 {
	b := d.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// ReadBool accepts only 0 and 1.
func (d *Decoder) ReadBool() bool {
	v := d.ReadU8()
	switch v {
	case 0:
		return false
	case 1:
		return true
	default:
		d.SetErr(fmt.Errorf("%w: invalid bool byte 0x%02x", ErrMalformed, v))
		return false
	}
}

// ReadVarInt reads a VarInt and rejects encodings that are not minimal.
func (d *Decoder) ReadVarInt() uint64 {
	marker := d.ReadU8()
	if d.err != nil {
		return 0
	}

	switch marker {
	case varIntU16:
		v := uint64(d.ReadU16())
		if d.err == nil && v < varIntU16 {
			d.err = ErrNonMinimalVarInt
		}
		return v
	case varIntU32:
		v := uint64(d.ReadU32())
		if d.err == nil && v <= 0xFFFF {
			d.err = ErrNonMinimalVarInt
		}
		return v
	case varIntU64:
		v := d.ReadU64()
		if d.err == nil && v <= 0xFFFFFFFF {
			d.err = ErrNonMinimalVarInt
		}
		return v
	default:
		return uint64(marker)
	}
}

// ReadLength reads a VarInt used as a length or a count and checks it against
// MaxLength.
func (d *Decoder) ReadLength() int {
	l := d.ReadVarInt()
	if d.err != nil {
		return 0
	}
	if l > MaxLength {
		d.err = ErrTooLarge
		return 0
	}
	return int(l)
}

// ReadFixed reads exactly n bytes. The result is a copy.
func (d *Decoder) ReadFixed(n int) []byte {
	b := d.next(n)
	if b == nil {
		return nil
	}
	res := make([]byte, n)
	copy(res, b)
	return res
}

// ReadFixedInto fills dst.
func (d *Decoder) ReadFixedInto(dst []byte) {
	b := d.next(len(dst))
	if b != nil {
		copy(dst, b)
	}
}

// ReadBytes reads a VarInt length followed by that many bytes.
func (d *Decoder) ReadBytes() []byte {
	n := d.ReadLength()
	if d.err != nil {
		return nil
	}
	return d.ReadFixed(n)
}

// ReadString reads a VarInt length followed by that many bytes.
func (d *Decoder) ReadString() string {
	n := d.ReadLength()
	b := d.next(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// ReadOptionU64 reads a 0/1 tag, followed by a u64 when the tag is 1.
func (d *Decoder) ReadOptionU64() *uint64 {
	if !d.ReadBool() {
		return nil
	}
	v := d.ReadU64()
	if d.err != nil {
		return nil
	}
	return &v
}

// Read decodes a Decodable value.
func (d *Decoder) Read(v Decodable) {
	if d.err != nil {
		return
	}
	v.Decode(d)
}
