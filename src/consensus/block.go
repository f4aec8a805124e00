package consensus

import (
	"bytes"
	"crypto/ecdsa"
	"sort"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/crypto"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
	"github.com/mosaicnetworks/streamlet/src/serial"
)

// BlockID is the BLAKE3 hash of a block.
type BlockID [32]byte

// String returns the hex form of the id.
func (id BlockID) String() string {
	return common.EncodeToString(id[:])
}

// Less orders ids bytewise.
func (id BlockID) Less(other BlockID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (id BlockID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *BlockID) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseBlockID parses the hex form returned by String.
func ParseBlockID(s string) (BlockID, error) {
	var id BlockID
	b, err := common.DecodeFromString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errors.Errorf("block id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Metadata is the proposer's data attached to a block.
type Metadata struct {
	// Proof is the leader's signature of the slot number.
	Proof []byte

	// RandSeed is the BLAKE3 hash of the parent id and the slot.
	RandSeed []byte

	// Signature is the leader's signature of the block id.
	Signature []byte

	// Participants is the roster of the block's epoch when it was proposed.
	Participants []Participant
}

// Encode implements serial.Encodable.
func (m *Metadata) Encode(e *serial.Encoder) {
	e.WriteBytes(m.Proof)
	e.WriteBytes(m.RandSeed)
	e.WriteBytes(m.Signature)
	serial.WriteSeq(e, participantPtrs(m.Participants))
}

// Decode implements serial.Decodable.
func (m *Metadata) Decode(d *serial.Decoder) {
	m.Proof = d.ReadBytes()
	m.RandSeed = d.ReadBytes()
	m.Signature = d.ReadBytes()
	m.Participants = serial.ReadSeq[Participant](d)
}

// StreamletMetadata holds the votes a block collected. The vote list only
// grows and holds at most one vote per voter; the flags never go back to
// false.
type StreamletMetadata struct {
	Votes     []Vote
	Notarized bool
	Finalized bool
}

// HasVoted reports whether voter has a vote in the list.
func (m *StreamletMetadata) HasVoted(voter string) bool {
	for i := range m.Votes {
		if m.Votes[i].VoterID() == voter {
			return true
		}
	}
	return false
}

// AddVote appends v unless its voter already voted. It reports whether the
// vote was added.
func (m *StreamletMetadata) AddVote(v Vote) bool {
	if m.HasVoted(v.VoterID()) {
		return false
	}
	m.Votes = append(m.Votes, v)
	return true
}

// Encode implements serial.Encodable.
func (m *StreamletMetadata) Encode(e *serial.Encoder) {
	serial.WriteSeq(e, votePtrs(m.Votes))
	e.WriteBool(m.Notarized)
	e.WriteBool(m.Finalized)
}

// Decode implements serial.Decodable.
func (m *StreamletMetadata) Decode(d *serial.Decoder) {
	m.Votes = serial.ReadSeq[Vote](d)
	m.Notarized = d.ReadBool()
	m.Finalized = d.ReadBool()
}

// Block is a proposed extension of the chain.
type Block struct {
	Parent    BlockID
	Slot      uint64
	Timestamp int64
	Txs       [][]byte
	Metadata  Metadata
}

// NewBlock creates an unsigned block.
func NewBlock(parent BlockID, slot uint64, timestamp int64, txs [][]byte) *Block {
	return &Block{
		Parent:    parent,
		Slot:      slot,
		Timestamp: timestamp,
		Txs:       txs,
	}
}

// ID returns the BLAKE3 hash of the block without the leader's signature.
func (b *Block) ID() BlockID {
	e := serial.NewEncoder()
	e.WriteFixed(b.Parent[:])
	e.WriteU64(b.Slot)
	e.WriteU64(uint64(b.Timestamp))
	serial.WriteBytesSeq(e, b.Txs)
	e.WriteBytes(b.Metadata.Proof)
	e.WriteBytes(b.Metadata.RandSeed)
	serial.WriteSeq(e, participantPtrs(b.Metadata.Participants))
	return BlockID(crypto.Blake3(e.Bytes()))
}

// Sign fills the eligibility proof, the random seed and the signature.
func (b *Block) Sign(key *ecdsa.PrivateKey) error {
	proof, err := keys.Sign(key, slotBytes(b.Slot))
	if err != nil {
		return err
	}
	b.Metadata.Proof = proof

	seed := crypto.Blake3(append(append([]byte{}, b.Parent[:]...), slotBytes(b.Slot)...))
	b.Metadata.RandSeed = seed[:]

	id := b.ID()
	sig, err := keys.Sign(key, id[:])
	if err != nil {
		return err
	}
	b.Metadata.Signature = sig
	return nil
}

// Verify checks that the block was signed by pub.
func (b *Block) Verify(pub []byte) error {
	if err := keys.Verify(pub, slotBytes(b.Slot), b.Metadata.Proof); err != nil {
		return ErrInvalidSignature
	}
	id := b.ID()
	if err := keys.Verify(pub, id[:], b.Metadata.Signature); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// Encode implements serial.Encodable.
func (b *Block) Encode(e *serial.Encoder) {
	e.WriteFixed(b.Parent[:])
	e.WriteU64(b.Slot)
	e.WriteU64(uint64(b.Timestamp))
	serial.WriteBytesSeq(e, b.Txs)
	e.Write(&b.Metadata)
}

// Decode implements serial.Decodable.
func (b *Block) Decode(d *serial.Decoder) {
	d.ReadFixedInto(b.Parent[:])
	b.Slot = d.ReadU64()
	b.Timestamp = int64(d.ReadU64())
	b.Txs = serial.ReadBytesSeq(d)
	d.Read(&b.Metadata)
}

// BlockInfo is a block with its Streamlet metadata. It is the unit stored in
// the chain view and the finalization announcement of the sync network.
type BlockInfo struct {
	Block     Block
	Streamlet StreamletMetadata
}

// ID returns the block id.
func (i *BlockInfo) ID() BlockID {
	return i.Block.ID()
}

// Clone returns a deep copy.
func (i *BlockInfo) Clone() *BlockInfo {
	res := &BlockInfo{
		Block:     i.Block,
		Streamlet: i.Streamlet,
	}
	res.Block.Txs = append([][]byte(nil), i.Block.Txs...)
	res.Block.Metadata.Participants = append([]Participant(nil), i.Block.Metadata.Participants...)
	res.Streamlet.Votes = append([]Vote(nil), i.Streamlet.Votes...)
	return res
}

// Marshal encodes the BlockInfo with the canonical JSON codec used by the
// stores.
func (i *BlockInfo) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(i); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a BlockInfo encoded by Marshal.
func (i *BlockInfo) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(i)
}

// Name implements the net.Message interface.
func (i *BlockInfo) Name() string { return "blockinfo" }

// Encode implements the net.Message interface.
func (i *BlockInfo) Encode(e *serial.Encoder) {
	e.Write(&i.Block)
	e.Write(&i.Streamlet)
}

// Decode implements the net.Message interface.
func (i *BlockInfo) Decode(d *serial.Decoder) {
	d.Read(&i.Block)
	d.Read(&i.Streamlet)
}

// BlockProposal carries a block proposed by a slot leader.
type BlockProposal struct {
	Block Block
}

// Name implements the net.Message interface.
func (p *BlockProposal) Name() string { return "proposal" }

// Encode implements the net.Message interface.
func (p *BlockProposal) Encode(e *serial.Encoder) { e.Write(&p.Block) }

// Decode implements the net.Message interface.
func (p *BlockProposal) Decode(d *serial.Decoder) { d.Read(&p.Block) }

func participantPtrs(ps []Participant) []*Participant {
	res := make([]*Participant, len(ps))
	for i := range ps {
		res[i] = &ps[i]
	}
	return res
}

func votePtrs(vs []Vote) []*Vote {
	res := make([]*Vote, len(vs))
	for i := range vs {
		res[i] = &vs[i]
	}
	return res
}

// sortBlockInfos orders infos by slot, then id.
func sortBlockInfos(infos []*BlockInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Block.Slot != infos[j].Block.Slot {
			return infos[i].Block.Slot < infos[j].Block.Slot
		}
		return infos[i].ID().Less(infos[j].ID())
	})
}
