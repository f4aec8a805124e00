package serial

import (
	"errors"
)

var (
	// ErrNonMinimalVarInt is returned when a VarInt uses a longer form than
	// necessary.
	ErrNonMinimalVarInt = errors.New("non-minimal varint")
	// ErrUnexpectedEOF is returned when the input ends in the middle of a
	// value.
	ErrUnexpectedEOF = errors.New("unexpected end of data")
	// ErrTrailingData is returned by Deserialize when bytes are left over.
	ErrTrailingData = errors.New("data not consumed fully")
	// ErrTooLarge is returned when a length exceeds MaxLength.
	ErrTooLarge = errors.New("length exceeds limit")
	// ErrMalformed is returned for values that cannot be represented.
	ErrMalformed = errors.New("malformed data")
)

// Encodable is implemented by types with a wire encoding.
type Encodable interface {
	Encode(e *Encoder)
}

// Decodable is implemented by types that can be read back from their wire
// encoding.
type Decodable interface {
	Decode(d *Decoder)
}

// Serialize returns the encoding of v.
func Serialize(v Encodable) ([]byte, error) {
	e := NewEncoder()
	e.Write(v)
	if err := e.Err(); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Deserialize decodes data into v. All of data must be consumed.
func Deserialize(data []byte, v Decodable) error {
	n, err := DeserializePartial(data, v)
	if err != nil {
		return err
	}
	if n != len(data) {
		return ErrTrailingData
	}
	return nil
}

// DeserializePartial decodes a prefix of data into v and returns the number of
// bytes consumed.
func DeserializePartial(data []byte, v Decodable) (int, error) {
	d := NewDecoder(data)
	d.Read(v)
	if err := d.Err(); err != nil {
		return 0, err
	}
	return d.Offset(), nil
}

// WriteSeq writes a VarInt count followed by each item.
func WriteSeq[T Encodable](e *Encoder, items []T) {
	e.WriteVarInt(uint64(len(items)))
	for _, it := range items {
		e.Write(it)
	}
}

// ReadSeq reads a VarInt count followed by that many items. PT is the pointer
// type of T, which carries the Decode method.
func ReadSeq[T any, PT interface {
	*T
	Decodable
}](d *Decoder) []T {
	n := d.ReadLength()
	if d.Err() != nil {
		return nil
	}
	res := make([]T, 0, minInt(n, d.Remaining()))
	for i := 0; i < n; i++ {
		var it T
		d.Read(PT(&it))
		if d.Err() != nil {
			return nil
		}
		res = append(res, it)
	}
	return res
}

// WriteBytesSeq writes a VarInt count followed by each byte string.
func WriteBytesSeq(e *Encoder, items [][]byte) {
	e.WriteVarInt(uint64(len(items)))
	for _, it := range items {
		e.WriteBytes(it)
	}
}

// ReadBytesSeq reads a sequence written by WriteBytesSeq.
func ReadBytesSeq(d *Decoder) [][]byte {
	n := d.ReadLength()
	if d.Err() != nil {
		return nil
	}
	res := make([][]byte, 0, minInt(n, d.Remaining()))
	for i := 0; i < n; i++ {
		b := d.ReadBytes()
		if d.Err() != nil {
			return nil
		}
		res = append(res, b)
	}
	return res
}

// WriteStringSeq writes a VarInt count followed by each string.
func WriteStringSeq(e *Encoder, items []string) {
	e.WriteVarInt(uint64(len(items)))
	for _, it := range items {
		e.WriteString(it)
	}
}

// ReadStringSeq reads a sequence written by WriteStringSeq.
func ReadStringSeq(d *Decoder) []string {
	n := d.ReadLength()
	if d.Err() != nil {
		return nil
	}
	res := make([]string, 0, minInt(n, d.Remaining()))
	for i := 0; i < n; i++ {
		s := d.ReadString()
		if d.Err() != nil {
			return nil
		}
		res = append(res, s)
	}
	return res
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
