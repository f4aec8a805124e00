package peers

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
)

func newTestPeers(t *testing.T, n int) ([]*Peer, map[string]*ecdsa.PrivateKey) {
	privs := map[string]*ecdsa.PrivateKey{}
	peers := []*Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		peer := NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("tcp://addr%d:11001", i),
			fmt.Sprintf("peer%d", i),
		)
		peers = append(peers, peer)
		privs[peer.NetAddr] = key
	}
	return peers, privs
}

func TestJSONPeerSet(t *testing.T) {
	dir := t.TempDir()

	// Create the store
	store := NewJSONPeerSet(dir, true)

	// Try a read, should get nothing
	peerSet, err := store.PeerSet()
	if err == nil {
		t.Fatalf("store.PeerSet() should generate an error")
	}
	if peerSet != nil {
		t.Fatalf("peerSet: %v", peerSet)
	}

	peers, privs := newTestPeers(t, 3)
	newPeerSlice := NewPeerSet(peers).Peers

	if err := store.Write(newPeerSlice); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should find 3 peers
	peerSet, err = store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peerSet.Len() != 3 {
		t.Fatalf("peers: %v", peerSet)
	}

	participants, err := peerSet.Participants()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	for i := 0; i < 3; i++ {
		if peerSet.Peers[i].NetAddr != newPeerSlice[i].NetAddr {
			t.Fatalf("peers[%d] NetAddr should be %s, not %s", i,
				newPeerSlice[i].NetAddr, peerSet.Peers[i].NetAddr)
		}
		if peerSet.Peers[i].Moniker != newPeerSlice[i].Moniker {
			t.Fatalf("peers[%d] Moniker should be %s, not %s", i,
				newPeerSlice[i].Moniker, peerSet.Peers[i].Moniker)
		}

		p := participants[i]
		if p.ID() != peerSet.Peers[i].PubKeyString() {
			t.Fatalf("participant[%d] ID should be %s, not %s", i,
				peerSet.Peers[i].PubKeyString(), p.ID())
		}
		if p.Joined != 0 {
			t.Fatalf("participant[%d] should join at genesis", i)
		}
		pub := keys.FromPublicKey(&privs[p.Address].PublicKey)
		if !reflect.DeepEqual(pub, p.PublicKey) {
			t.Fatalf("participant[%d] PublicKey not parsed correctly", i)
		}
	}
}

func TestJSONPeerSetNormalisesKeys(t *testing.T) {
	dir := t.TempDir()

	peers, _ := newTestPeers(t, 1)
	lower := "0x" + strings.ToLower(strings.TrimPrefix(peers[0].PubKeyHex, "0X"))
	data := fmt.Sprintf(`[{"NetAddr":%q,"PubKeyHex":%q}]`, peers[0].NetAddr, lower)
	if err := os.WriteFile(filepath.Join(dir, jsonPeerSetPath), []byte(data), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err := NewJSONPeerSet(dir, true).PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got := peerSet.Peers[0].PubKeyHex; got != peers[0].PubKeyHex {
		t.Fatalf("PubKeyHex should be %s, not %s", peers[0].PubKeyHex, got)
	}
}

func TestGenesisPeerSet(t *testing.T) {
	dir := t.TempDir()

	peers, _ := newTestPeers(t, 3)
	if err := NewJSONPeerSet(dir, true).Write(peers); err != nil {
		t.Fatalf("err: %v", err)
	}

	// without a genesis file, peers.json defines the genesis roster
	genesis, err := GenesisPeerSet(dir)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if genesis.Len() != 3 {
		t.Fatalf("genesis should have 3 peers, not %d", genesis.Len())
	}

	if err := NewJSONPeerSet(dir, false).Write(peers[:1]); err != nil {
		t.Fatalf("err: %v", err)
	}

	genesis, err = GenesisPeerSet(dir)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if genesis.Len() != 1 {
		t.Fatalf("genesis should have 1 peer, not %d", genesis.Len())
	}
}

func TestPeerSetAddresses(t *testing.T) {
	peers, _ := newTestPeers(t, 3)

	// duplicates are dropped
	peerSet := NewPeerSet(append(peers, NewPeer(peers[0].PubKeyHex, "other", "")))
	if peerSet.Len() != 3 {
		t.Fatalf("peerSet should have 3 peers, not %d", peerSet.Len())
	}

	addrs := peerSet.Addresses(strings.ToLower(peers[1].PubKeyHex))
	if len(addrs) != 2 {
		t.Fatalf("addresses: %v", addrs)
	}
	for _, a := range addrs {
		if a == peers[1].NetAddr {
			t.Fatalf("addresses should exclude %s", a)
		}
	}

	index, others := ExcludePeer(peerSet.Peers, peers[2].NetAddr)
	if index < 0 || len(others) != 2 {
		t.Fatalf("ExcludePeer: %d %v", index, others)
	}
}

func TestPeerInvalidKey(t *testing.T) {
	peer := NewPeer("0X0102", "addr", "")
	if _, err := peer.Participant(0); err == nil {
		t.Fatalf("Participant should fail on an invalid public key")
	}
}
