package dummy

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/proxy/inmem"
)

// InmemDummyClient is an in-memory implementation of the dummy app. It actually
// implements the AppProxy interface, and can be passed to the node directly
type InmemDummyClient struct {
	*inmem.InmemProxy
	state  *State
	logger *logrus.Entry
}

//NewInmemDummyClient instantiates an InmemDummyClient
func NewInmemDummyClient(logger *logrus.Entry) *InmemDummyClient {
	state := NewState(logger)

	proxy := inmem.NewInmemProxy(state, logger)

	client := &InmemDummyClient{
		InmemProxy: proxy,
		state:      state,
		logger:     logger,
	}

	return client
}

//SubmitTx sends a transaction to the node via the InmemProxy
func (c *InmemDummyClient) SubmitTx(tx []byte) {
	c.InmemProxy.SubmitTx(tx)
}

//GetCommittedTransactions returns the state's list of transactions
func (c *InmemDummyClient) GetCommittedTransactions() [][]byte {
	return c.state.GetCommittedTransactions()
}

//GetStateHash returns the hash of the state
func (c *InmemDummyClient) GetStateHash() []byte {
	return c.state.GetStateHash()
}

//GetCommittedBlocks returns the number of committed blocks
func (c *InmemDummyClient) GetCommittedBlocks() int {
	return c.state.GetCommittedBlocks()
}
