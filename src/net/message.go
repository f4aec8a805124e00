package net

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mosaicnetworks/streamlet/src/serial"
)

// MagicBytes open every packet on the wire.
var MagicBytes = [4]byte{0xd9, 0xef, 0xb6, 0x7d}

// MaxCommandLen bounds the length of a packet command.
const MaxCommandLen = 64

var (
	// ErrBadMagic is returned when a packet does not start with MagicBytes.
	ErrBadMagic = errors.New("bad packet magic")

	// ErrCommandTooLong is returned when a packet command exceeds
	// MaxCommandLen.
	ErrCommandTooLong = errors.New("packet command too long")
)

// Message is a typed protocol message. Name returns the command that tags the
// message in the outer packet; it must be unique among the messages of a
// network.
type Message interface {
	serial.Encodable
	serial.Decodable
	Name() string
}

// Packet is the outer frame of every message: the command and the encoded
// message payload.
type Packet struct {
	Command string
	Payload []byte
}

// NewPacket encodes msg into a Packet.
func NewPacket(msg Message) (*Packet, error) {
	payload, err := serial.Serialize(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %v", msg.Name(), err)
	}
	return &Packet{
		Command: msg.Name(),
		Payload: payload,
	}, nil
}

// Marshal returns the wire form of the packet.
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.Command) > MaxCommandLen {
		return nil, ErrCommandTooLong
	}
	e := serial.NewEncoder()
	e.WriteFixed(MagicBytes[:])
	e.WriteString(p.Command)
	e.WriteBytes(p.Payload)
	return e.Bytes(), e.Err()
}

// readPacket reads one packet from r.
func readPacket(r *bufio.Reader) (*Packet, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic[:], MagicBytes[:]) {
		return nil, ErrBadMagic
	}

	cmdLen, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if cmdLen > MaxCommandLen {
		return nil, ErrCommandTooLong
	}
	cmd := make([]byte, cmdLen)
	if _, err := io.ReadFull(r, cmd); err != nil {
		return nil, err
	}

	payloadLen, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if payloadLen > serial.MaxLength {
		return nil, serial.ErrTooLarge
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return &Packet{
		Command: string(cmd),
		Payload: payload,
	}, nil
}

// readVarInt reads a VarInt from a stream. The bytes are collected first and
// handed to the serial decoder, which enforces the minimal encoding.
func readVarInt(r *bufio.Reader) (uint64, error) {
	marker, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	buf := []byte{marker}
	switch marker {
	case 0xFD:
		buf = append(buf, make([]byte, 2)...)
	case 0xFE:
		buf = append(buf, make([]byte, 4)...)
	case 0xFF:
		buf = append(buf, make([]byte, 8)...)
	}
	if _, err := io.ReadFull(r, buf[1:]); err != nil {
		return 0, err
	}

	var v serial.VarInt
	if err := serial.Deserialize(buf, &v); err != nil {
		return 0, err
	}
	return uint64(v), nil
}
