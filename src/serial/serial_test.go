package serial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestVarIntBoundaries(t *testing.T) {
	cases := []struct {
		value  uint64
		length int
		marker byte
	}{
		{0, 1, 0x00},
		{0xFC, 1, 0xFC},
		{0xFD, 3, 0xFD},
		{0xFFFF, 3, 0xFD},
		{0x10000, 5, 0xFE},
		{0xFFFFFFFF, 5, 0xFE},
		{0x100000000, 9, 0xFF},
		{math.MaxUint64, 9, 0xFF},
	}

	for _, c := range cases {
		data, err := Serialize(VarInt(c.value))
		require.NoError(t, err)
		assert.Len(t, data, c.length, "value %#x", c.value)
		assert.Equal(t, c.length, VarInt(c.value).Length())
		assert.Equal(t, c.marker, data[0], "value %#x", c.value)

		var v VarInt
		require.NoError(t, Deserialize(data, &v))
		assert.Equal(t, c.value, uint64(v))
	}
}

func TestVarIntRejectsNonMinimal(t *testing.T) {
	cases := [][]byte{
		{0xFD, 0x00, 0x00},
		{0xFD, 0xFC, 0x00},
		{0xFE, 0xFF, 0xFF, 0x00, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00},
	}

	for _, c := range cases {
		var v VarInt
		err := Deserialize(c, &v)
		assert.ErrorIs(t, err, ErrNonMinimalVarInt, "%x", c)
	}
}

func TestVarIntTruncated(t *testing.T) {
	var v VarInt
	assert.ErrorIs(t, Deserialize([]byte{0xFE, 0x01}, &v), ErrUnexpectedEOF)
	assert.ErrorIs(t, Deserialize([]byte{}, &v), ErrUnexpectedEOF)
}

func TestVarIntProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Uint64().Draw(t, "x")

		data, err := Serialize(VarInt(x))
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != VarInt(x).Length() {
			t.Fatalf("length %d, expected %d", len(data), VarInt(x).Length())
		}

		var v VarInt
		if err := Deserialize(data, &v); err != nil {
			t.Fatal(err)
		}
		if uint64(v) != x {
			t.Fatalf("decoded %d, expected %d", v, x)
		}
	})
}

type record struct {
	Name    string
	Payload []byte
	Count   uint32
	Flag    bool
	Seen    *uint64
	Tags    []string
}

func (r *record) Encode(e *Encoder) {
	e.WriteString(r.Name)
	e.WriteBytes(r.Payload)
	e.WriteU32(r.Count)
	e.WriteBool(r.Flag)
	e.WriteOptionU64(r.Seen)
	WriteStringSeq(e, r.Tags)
}

func (r *record) Decode(d *Decoder) {
	r.Name = d.ReadString()
	r.Payload = d.ReadBytes()
	r.Count = d.ReadU32()
	r.Flag = d.ReadBool()
	r.Seen = d.ReadOptionU64()
	r.Tags = ReadStringSeq(d)
}

func TestRecordEncoding(t *testing.T) {
	seen := uint64(7)
	in := &record{
		Name:    "vote",
		Payload: []byte{1, 2, 3},
		Count:   0x01020304,
		Flag:    true,
		Seen:    &seen,
		Tags:    []string{"a", "bc"},
	}

	data, err := Serialize(in)
	require.NoError(t, err)

	expected := []byte{
		0x04, 'v', 'o', 't', 'e',
		0x03, 1, 2, 3,
		0x04, 0x03, 0x02, 0x01,
		0x01,
		0x01, 7, 0, 0, 0, 0, 0, 0, 0,
		0x02, 0x01, 'a', 0x02, 'b', 'c',
	}
	assert.Equal(t, expected, data)

	out := new(record)
	require.NoError(t, Deserialize(data, out))
	assert.Equal(t, in, out)
}

func TestDeserializeTrailingData(t *testing.T) {
	data, err := Serialize(&record{Name: "x"})
	require.NoError(t, err)

	data = append(data, 0x00)

	assert.ErrorIs(t, Deserialize(data, new(record)), ErrTrailingData)

	n, err := DeserializePartial(data, new(record))
	require.NoError(t, err)
	assert.Equal(t, len(data)-1, n)
}

func TestInvalidBool(t *testing.T) {
	d := NewDecoder([]byte{0x02})
	d.ReadBool()
	assert.ErrorIs(t, d.Err(), ErrMalformed)
}

func TestLengthLimit(t *testing.T) {
	e := NewEncoder()
	e.WriteVarInt(MaxLength + 1)

	d := NewDecoder(e.Bytes())
	d.ReadBytes()
	assert.ErrorIs(t, d.Err(), ErrTooLarge)
}
