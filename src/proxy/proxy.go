package proxy

import (
	"github.com/mosaicnetworks/streamlet/src/consensus"
)

// AppProxy is what the node sees of the application.
type AppProxy interface {
	// SubmitCh carries the transactions submitted by the application.
	SubmitCh() chan []byte

	// CommitBlock delivers a finalized block. Blocks are committed once, in
	// chain order.
	CommitBlock(block consensus.Block) (CommitResponse, error)
}
