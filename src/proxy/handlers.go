package proxy

import (
	"github.com/mosaicnetworks/streamlet/src/consensus"
)

// ProxyHandler encapsulates callbacks to be called by the InmemProxy. This is
// the true contact surface between Streamlet and the Application.
type ProxyHandler interface {
	// CommitHandler is called when Streamlet commits a finalized block to
	// the application
	CommitHandler(block consensus.Block) (response CommitResponse, err error)
}
