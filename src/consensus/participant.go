package consensus

import (
	"crypto/ecdsa"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
	"github.com/mosaicnetworks/streamlet/src/serial"
)

// Participant is a node eligible to vote from epoch Joined on.
type Participant struct {
	// PublicKey is the uncompressed secp256k1 key of the node. Its hex form
	// is the participant identity.
	PublicKey []byte

	// Address is the network address of the node.
	Address string

	Joined      uint64
	Voted       *uint64
	Quarantined *uint64
}

// NewParticipant creates a Participant in good standing.
func NewParticipant(pub *ecdsa.PublicKey, address string, joined uint64) *Participant {
	return &Participant{
		PublicKey: keys.FromPublicKey(pub),
		Address:   address,
		Joined:    joined,
	}
}

// ID returns the participant identity.
func (p *Participant) ID() string {
	return identity(p.PublicKey)
}

// IsQuarantined reports whether the participant is excluded from voting.
func (p *Participant) IsQuarantined() bool {
	return p.Quarantined != nil
}

// Clone returns a deep copy.
func (p *Participant) Clone() *Participant {
	res := *p
	res.PublicKey = append([]byte(nil), p.PublicKey...)
	if p.Voted != nil {
		v := *p.Voted
		res.Voted = &v
	}
	if p.Quarantined != nil {
		q := *p.Quarantined
		res.Quarantined = &q
	}
	return &res
}

// Name implements the net.Message interface.
func (p *Participant) Name() string { return "participant" }

// Encode implements the net.Message interface.
func (p *Participant) Encode(e *serial.Encoder) {
	e.WriteBytes(p.PublicKey)
	e.WriteString(p.Address)
	e.WriteU64(p.Joined)
	e.WriteOptionU64(p.Voted)
	e.WriteOptionU64(p.Quarantined)
}

// Decode implements the net.Message interface.
func (p *Participant) Decode(d *serial.Decoder) {
	p.PublicKey = d.ReadBytes()
	p.Address = d.ReadString()
	p.Joined = d.ReadU64()
	p.Voted = d.ReadOptionU64()
	p.Quarantined = d.ReadOptionU64()
}

// KeepAlive is broadcast by participants at every epoch to show they are
// alive. It lifts a quarantine.
type KeepAlive struct {
	Address   string
	Signature []byte
}

// NewKeepAlive signs address with key.
func NewKeepAlive(key *ecdsa.PrivateKey, address string) (*KeepAlive, error) {
	sig, err := keys.Sign(key, []byte(address))
	if err != nil {
		return nil, err
	}
	return &KeepAlive{
		Address:   address,
		Signature: sig,
	}, nil
}

// Verify checks the signature against the participant's key.
func (k *KeepAlive) Verify(pub []byte) error {
	if err := keys.Verify(pub, []byte(k.Address), k.Signature); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// Name implements the net.Message interface.
func (k *KeepAlive) Name() string { return "keepalive" }

// Encode implements the net.Message interface.
func (k *KeepAlive) Encode(e *serial.Encoder) {
	e.WriteString(k.Address)
	e.WriteBytes(k.Signature)
}

// Decode implements the net.Message interface.
func (k *KeepAlive) Decode(d *serial.Decoder) {
	k.Address = d.ReadString()
	k.Signature = d.ReadBytes()
}

func identity(pub []byte) string {
	return common.EncodeToString(pub)
}
