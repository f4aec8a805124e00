package consensus

import (
	"crypto/ecdsa"

	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
	"github.com/mosaicnetworks/streamlet/src/serial"
)

// Vote is a participant's signed endorsement of one block at one slot.
type Vote struct {
	Voter     []byte
	Block     BlockID
	Slot      uint64
	Signature []byte

	// Proof shows the voter is eligible for the slot. It is the voter's
	// signature of the slot number.
	Proof []byte
}

// NewVote creates and signs a vote for block at slot.
func NewVote(key *ecdsa.PrivateKey, block BlockID, slot uint64) (*Vote, error) {
	proof, err := keys.Sign(key, slotBytes(slot))
	if err != nil {
		return nil, err
	}

	v := &Vote{
		Voter: keys.FromPublicKey(&key.PublicKey),
		Block: block,
		Slot:  slot,
		Proof: proof,
	}

	sig, err := keys.Sign(key, v.signingBytes())
	if err != nil {
		return nil, err
	}
	v.Signature = sig

	return v, nil
}

// VoterID returns the identity of the voter.
func (v *Vote) VoterID() string {
	return identity(v.Voter)
}

// signingBytes is the encoding of the vote without its signature.
func (v *Vote) signingBytes() []byte {
	e := serial.NewEncoder()
	e.WriteBytes(v.Voter)
	e.WriteFixed(v.Block[:])
	e.WriteU64(v.Slot)
	e.WriteBytes(v.Proof)
	return e.Bytes()
}

// Verify checks the eligibility proof and the signature.
func (v *Vote) Verify() error {
	if err := keys.Verify(v.Voter, slotBytes(v.Slot), v.Proof); err != nil {
		return ErrInvalidSignature
	}
	if err := keys.Verify(v.Voter, v.signingBytes(), v.Signature); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// Name implements the net.Message interface.
func (v *Vote) Name() string { return "vote" }

// Encode implements the net.Message interface.
func (v *Vote) Encode(e *serial.Encoder) {
	e.WriteBytes(v.Voter)
	e.WriteFixed(v.Block[:])
	e.WriteU64(v.Slot)
	e.WriteBytes(v.Signature)
	e.WriteBytes(v.Proof)
}

// Decode implements the net.Message interface.
func (v *Vote) Decode(d *serial.Decoder) {
	v.Voter = d.ReadBytes()
	d.ReadFixedInto(v.Block[:])
	v.Slot = d.ReadU64()
	v.Signature = d.ReadBytes()
	v.Proof = d.ReadBytes()
}

// slotBytes is the little-endian encoding of slot.
func slotBytes(slot uint64) []byte {
	e := serial.NewEncoder()
	e.WriteU64(slot)
	return e.Bytes()
}
