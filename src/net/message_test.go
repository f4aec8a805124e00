package net

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/streamlet/src/serial"
)

func TestPacketFraming(t *testing.T) {
	packet, err := NewPacket(&AddrMessage{Addrs: []string{"10.0.0.1:8000", "10.0.0.2:8000"}})
	require.NoError(t, err)

	raw, err := packet.Marshal()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, MagicBytes[:]))

	// Two packets back to back.
	stream := append(append([]byte{}, raw...), raw...)
	r := bufio.NewReader(bytes.NewReader(stream))

	for i := 0; i < 2; i++ {
		got, err := readPacket(r)
		require.NoError(t, err)
		assert.Equal(t, CmdAddr, got.Command)

		var msg AddrMessage
		require.NoError(t, serial.Deserialize(got.Payload, &msg))
		assert.Equal(t, []string{"10.0.0.1:8000", "10.0.0.2:8000"}, msg.Addrs)
	}
}

func TestPacketBadMagic(t *testing.T) {
	packet, err := NewPacket(&PingMessage{Nonce: 3})
	require.NoError(t, err)
	raw, err := packet.Marshal()
	require.NoError(t, err)

	raw[0] ^= 0xFF
	_, err = readPacket(bufio.NewReader(bytes.NewReader(raw)))
	assert.Equal(t, ErrBadMagic, err)
}

func TestPacketCommandTooLong(t *testing.T) {
	p := &Packet{Command: string(make([]byte, MaxCommandLen+1))}
	_, err := p.Marshal()
	assert.Equal(t, ErrCommandTooLong, err)

	raw := append([]byte{}, MagicBytes[:]...)
	raw = append(raw, byte(MaxCommandLen+1))
	_, err = readPacket(bufio.NewReader(bytes.NewReader(raw)))
	assert.Equal(t, ErrCommandTooLong, err)
}

func TestPacketNonMinimalLength(t *testing.T) {
	raw := append([]byte{}, MagicBytes[:]...)
	raw = append(raw, 0xFD, 0x04, 0x00)
	raw = append(raw, []byte("ping")...)

	_, err := readPacket(bufio.NewReader(bytes.NewReader(raw)))
	assert.Equal(t, serial.ErrNonMinimalVarInt, err)
}
