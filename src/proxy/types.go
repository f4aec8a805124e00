package proxy

// CommitResponse is the application's answer to a committed block.
type CommitResponse struct {
	// StateHash is the hash of the application state after the block.
	StateHash []byte
}
