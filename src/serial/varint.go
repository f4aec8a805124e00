package serial

// VarInt is an unsigned integer encoded in 1, 3, 5 or 9 bytes.
type VarInt uint64

const (
	varIntU16 = 0xFD
	varIntU32 = 0xFE
	varIntU64 = 0xFF
)

// Length returns the number of bytes of the minimal encoding of v.
func (v VarInt) Length() int {
	switch {
	case v < varIntU16:
		return 1
	case v <= 0xFFFF:
		return 3
	case v <= 0xFFFFFFFF:
		return 5
	default:
		return 9
	}
}

// Encode implements Encodable.
func (v VarInt) Encode(e *Encoder) {
	e.WriteVarInt(uint64(v))
}

// Decode implements Decodable.
func (v *VarInt) Decode(d *Decoder) {
	*v = VarInt(d.ReadVarInt())
}
