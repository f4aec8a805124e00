package dht

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/mosaicnetworks/streamlet/src/crypto"
	"github.com/mosaicnetworks/streamlet/src/net"
	"github.com/mosaicnetworks/streamlet/src/serial"
)

// Hash identifies requests, nodes and keys.
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Lookup request types.
const (
	LookupInsert uint8 = 0
	LookupRemove uint8 = 1
)

// NewRequestID returns a fresh request identifier: the BLAKE3 hash of a
// serialized random 16-bit nonce. Collisions are possible and ignored.
func NewRequestID() (Hash, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return Hash{}, err
	}
	return requestID(binary.LittleEndian.Uint16(buf[:]))
}

func requestID(nonce uint16) (Hash, error) {
	e := serial.NewEncoder()
	e.WriteU16(nonce)
	if err := e.Err(); err != nil {
		return Hash{}, err
	}
	return crypto.Blake3(e.Bytes()), nil
}

// KeyRequest asks node To for the value of Key.
type KeyRequest struct {
	ID   Hash
	From Hash
	To   Hash
	Key  Hash
}

// NewKeyRequest creates a KeyRequest with a fresh ID.
func NewKeyRequest(from, to, key Hash) (*KeyRequest, error) {
	id, err := NewRequestID()
	if err != nil {
		return nil, err
	}
	return &KeyRequest{ID: id, From: from, To: to, Key: key}, nil
}

// Name implements the net.Message interface.
func (r *KeyRequest) Name() string { return "keyrequest" }

// Encode implements the net.Message interface.
func (r *KeyRequest) Encode(e *serial.Encoder) {
	e.WriteFixed(r.ID[:])
	e.WriteFixed(r.From[:])
	e.WriteFixed(r.To[:])
	e.WriteFixed(r.Key[:])
}

// Decode implements the net.Message interface.
func (r *KeyRequest) Decode(d *serial.Decoder) {
	d.ReadFixedInto(r.ID[:])
	d.ReadFixedInto(r.From[:])
	d.ReadFixedInto(r.To[:])
	d.ReadFixedInto(r.Key[:])
}

// KeyResponse answers a KeyRequest. It carries the ID of the request it
// answers.
type KeyResponse struct {
	ID    Hash
	From  Hash
	To    Hash
	Key   Hash
	Value []byte
}

// Respond builds the response to r sent by the requested node.
func (r *KeyRequest) Respond(value []byte) *KeyResponse {
	return &KeyResponse{
		ID:    r.ID,
		From:  r.To,
		To:    r.From,
		Key:   r.Key,
		Value: value,
	}
}

// Name implements the net.Message interface.
func (r *KeyResponse) Name() string { return "keyresponse" }

// Encode implements the net.Message interface.
func (r *KeyResponse) Encode(e *serial.Encoder) {
	e.WriteFixed(r.ID[:])
	e.WriteFixed(r.From[:])
	e.WriteFixed(r.To[:])
	e.WriteFixed(r.Key[:])
	e.WriteBytes(r.Value)
}

// Decode implements the net.Message interface.
func (r *KeyResponse) Decode(d *serial.Decoder) {
	d.ReadFixedInto(r.ID[:])
	d.ReadFixedInto(r.From[:])
	d.ReadFixedInto(r.To[:])
	d.ReadFixedInto(r.Key[:])
	r.Value = d.ReadBytes()
}

// LookupRequest announces that Daemon inserted or removed Key.
type LookupRequest struct {
	ID      Hash
	Daemon  Hash
	Key     Hash
	ReqType uint8
}

// NewLookupRequest creates a LookupRequest with a fresh ID.
func NewLookupRequest(daemon, key Hash, reqType uint8) (*LookupRequest, error) {
	if reqType != LookupInsert && reqType != LookupRemove {
		return nil, fmt.Errorf("unknown lookup request type %d", reqType)
	}
	id, err := NewRequestID()
	if err != nil {
		return nil, err
	}
	return &LookupRequest{ID: id, Daemon: daemon, Key: key, ReqType: reqType}, nil
}

// Name implements the net.Message interface.
func (r *LookupRequest) Name() string { return "lookuprequest" }

// Encode implements the net.Message interface.
func (r *LookupRequest) Encode(e *serial.Encoder) {
	e.WriteFixed(r.ID[:])
	e.WriteFixed(r.Daemon[:])
	e.WriteFixed(r.Key[:])
	e.WriteU8(r.ReqType)
}

// Decode implements the net.Message interface.
func (r *LookupRequest) Decode(d *serial.Decoder) {
	d.ReadFixedInto(r.ID[:])
	d.ReadFixedInto(r.Daemon[:])
	d.ReadFixedInto(r.Key[:])
	r.ReqType = d.ReadU8()
}

// AddDispatchers installs the dispatchers of the DHT messages on a channel's
// message subsystem.
func AddDispatchers(ms *net.MessageSubsystem) {
	net.AddDispatch[KeyRequest](ms)
	net.AddDispatch[KeyResponse](ms)
	net.AddDispatch[LookupRequest](ms)
}
