package peers

import (
	"strings"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/consensus"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
)

// Peer is a node of the network, identified by its public key.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string
}

// NewPeer creates a Peer. The public key is normalised to the form derived
// from a private key.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	return &Peer{
		NetAddr:   netAddr,
		PubKeyHex: normalisePubKeyHex(pubKeyHex),
		Moniker:   moniker,
	}
}

// PubKeyString returns the upper-case hex representation of the public key.
// It is the participant identity.
func (p *Peer) PubKeyString() string {
	return normalisePubKeyHex(p.PubKeyHex)
}

// PubKeyBytes decodes the public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// Participant returns the consensus participant operated by the peer, joined
// at the given epoch. The public key must be a point on the curve.
func (p *Peer) Participant(joined uint64) (*consensus.Participant, error) {
	pub, err := p.PubKeyBytes()
	if err != nil {
		return nil, err
	}
	key, err := keys.ToPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return consensus.NewParticipant(key, p.NetAddr, joined), nil
}

func normalisePubKeyHex(s string) string {
	return "0X" + strings.TrimPrefix(strings.ToUpper(s), "0X")
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
