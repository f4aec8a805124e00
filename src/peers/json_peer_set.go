package peers

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const (
	jsonPeerSetPath        = "peers.json"
	jsonGenesisPeerSetPath = "peers.genesis.json"
)

// JSONPeerSet is used to provide peer persistence on disk in the form of a JSON
// file.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONPeerSet creates a new JSONPeerSet with reference to a base directory
// where the JSON files reside.
func NewJSONPeerSet(base string, isCurrent bool) *JSONPeerSet {
	var path string

	if isCurrent {
		path = filepath.Join(base, jsonPeerSetPath)
	} else {
		path = filepath.Join(base, jsonGenesisPeerSetPath)
	}

	store := &JSONPeerSet{
		path: path,
	}
	return store
}

// Path returns the path of the underlying file.
func (j *JSONPeerSet) Path() string {
	return j.path
}

// PeerSet parses the underlying JSON file and returns the corresponding
// PeerSet.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	// Read the file
	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	// Check for no peers
	if len(buf) == 0 {
		return nil, nil
	}

	// Decode the peers
	var peers []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	for _, peer := range peers {
		peer.PubKeyHex = normalisePubKeyHex(peer.PubKeyHex)
	}

	return NewPeerSet(peers), nil
}

// Write persists a PeerSet to a JSON file.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "\t")
	if err := enc.Encode(peers); err != nil {
		return err
	}

	// Write out as JSON
	return os.WriteFile(j.path, buf.Bytes(), 0644)
}

// GenesisPeerSet reads the genesis roster from peers.genesis.json in base,
// falling back to peers.json.
func GenesisPeerSet(base string) (*PeerSet, error) {
	genesis, err := NewJSONPeerSet(base, false).PeerSet()
	if err == nil && genesis != nil {
		return genesis, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return NewJSONPeerSet(base, true).PeerSet()
}
