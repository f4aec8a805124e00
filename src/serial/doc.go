// Package serial implements the binary encoding used on the wire between
// streamlet nodes.
//
// All integers are little-endian and fixed width. Lengths and counts are
// written as a VarInt, a variable-length integer using 1, 3, 5 or 9 bytes:
//
//  value <= 0xFC        1 byte: the value itself
//  value <= 0xFFFF      0xFD followed by a u16
//  value <= 0xFFFFFFFF  0xFE followed by a u32
//  otherwise            0xFF followed by a u64
//
// Encoders always pick the shortest form and decoders reject any other form,
// so every value has exactly one encoding. Byte strings and strings are a
// VarInt length followed by the raw bytes; optional values are a 0/1 tag byte
// followed by the value when present; sequences are a VarInt count followed by
// the items.
//
// Types opt in by implementing Encodable and Decodable against the Encoder and
// Decoder of this package. Both keep the first error they encounter and turn
// every subsequent call into a no-op, so implementations can write a list of
// fields and check Err once at the end.
package serial
