// Package node implements the reactive component of a Streamlet node.
//
// This is the part of the node that runs the networks and follows the slot
// clock. The consensus rules themselves live in the consensus package; Node
// feeds them with time.
//
// Networks
//
// A node takes part in two P2P networks. The consensus network carries votes,
// proposals, participant announcements and keepalives between validators. The
// sync network carries finalized blocks to followers, nodes that do not vote
// but keep a copy of the finalized chain.
//
// Slots and epochs
//
// Time is divided in slots of equal duration counted from the genesis, and
// slots are grouped in epochs. At the start of every slot, the leader of the
// slot proposes a block extending the best notarized chain, drawing
// transactions from the node's pool. At the start of every epoch, the node
// quarantines the participants that did not vote in the previous epoch and
// broadcasts a keepalive, which lifts its own quarantine on every node that
// receives it.
//
// Joining
//
// A node whose key is not part of the genesis roster announces itself as a
// participant joining at the next epoch. It is included in the rosters of the
// epochs that follow.
//
// Application
//
// Transactions reach the pool through SubmitTx or the proxy's submit channel.
// Every finalized block, whether finalized locally or received on the sync
// network, is committed to the proxy in chain order.
package node
