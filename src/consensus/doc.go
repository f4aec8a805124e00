// Package consensus implements Streamlet finality: votes, notarization and
// finalization of blocks, participant rosters and quarantine, the stores that
// persist the chain view, and the protocols that carry votes, proposals,
// participants, keepalives and finalized blocks over the P2P networks.
package consensus
