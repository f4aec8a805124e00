package dummy

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/consensus"
	"github.com/mosaicnetworks/streamlet/src/crypto"
	"github.com/mosaicnetworks/streamlet/src/proxy"
)

// State is the dummy application's state: the committed transactions and a
// hash chained over them.
type State struct {
	mtx                   sync.Mutex
	committedTransactions [][]byte
	stateHash             []byte
	committedBlocks       int
	logger                *logrus.Entry
}

// NewState creates an empty State.
func NewState(logger *logrus.Entry) *State {
	return &State{
		committedTransactions: [][]byte{},
		stateHash:             []byte{},
		logger:                logger,
	}
}

// CommitHandler implements the ProxyHandler interface
func (a *State) CommitHandler(block consensus.Block) (proxy.CommitResponse, error) {
	a.logger.WithFields(logrus.Fields{
		"slot": block.Slot,
		"txs":  len(block.Txs),
	}).Debug("CommitBlock")

	a.mtx.Lock()
	defer a.mtx.Unlock()

	hash := a.stateHash
	for _, tx := range block.Txs {
		hash = crypto.SimpleHashFromTwoHashes(hash, crypto.SHA256(tx))
	}

	a.committedTransactions = append(a.committedTransactions, block.Txs...)
	a.stateHash = hash
	a.committedBlocks++

	return proxy.CommitResponse{StateHash: hash}, nil
}

// GetCommittedTransactions returns the list of committed transactions
func (a *State) GetCommittedTransactions() [][]byte {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	res := make([][]byte, len(a.committedTransactions))
	copy(res, a.committedTransactions)
	return res
}

// GetStateHash returns the current state hash
func (a *State) GetStateHash() []byte {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.stateHash
}

// GetCommittedBlocks returns the number of committed blocks
func (a *State) GetCommittedBlocks() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.committedBlocks
}
