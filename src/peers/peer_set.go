package peers

import (
	"sort"

	"github.com/mosaicnetworks/streamlet/src/consensus"
)

// PeerSet is a set of Peers forming a consensus network. Peers are sorted by
// public key and unique.
type PeerSet struct {
	Peers    []*Peer          `json:"peers"`
	ByPubKey map[string]*Peer `json:"-"`
}

// NewPeerSet creates a new PeerSet from a list of Peers. When two peers share
// a public key, the first one wins.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
	}

	for _, peer := range peers {
		if _, ok := peerSet.ByPubKey[peer.PubKeyString()]; ok {
			continue
		}
		peerSet.ByPubKey[peer.PubKeyString()] = peer
		peerSet.Peers = append(peerSet.Peers, peer)
	}

	sort.Slice(peerSet.Peers, func(i, j int) bool {
		return peerSet.Peers[i].PubKeyString() < peerSet.Peers[j].PubKeyString()
	})

	return peerSet
}

// WithNewPeer returns a new PeerSet with a list of peers including the new one.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := append([]*Peer{}, peerSet.Peers...)
	return NewPeerSet(append(peers, peer))
}

// PubKeys returns the PeerSet's slice of public keys
func (peerSet *PeerSet) PubKeys() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.PubKeyString())
	}

	return res
}

// Addresses returns the network addresses of the peers, excluding the
// given public key.
func (peerSet *PeerSet) Addresses(excludePubKey string) []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		if peer.PubKeyString() == normalisePubKeyHex(excludePubKey) {
			continue
		}
		res = append(res, peer.NetAddr)
	}

	return res
}

// Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.Peers)
}

// Participants returns the genesis participants of the network: every peer
// joined at epoch 0.
func (peerSet *PeerSet) Participants() ([]*consensus.Participant, error) {
	res := make([]*consensus.Participant, 0, len(peerSet.Peers))
	for _, peer := range peerSet.Peers {
		p, err := peer.Participant(0)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}
