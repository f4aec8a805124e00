// Package peers defines the concept of a Streamlet peer and implements
// functions to manage collections of peers.
//
// A peer is an entity that operates a node. Peers are identified by their
// public keys, and optionaly a moniker which is a non-unique user-friendly
// name. A peer also specifies the address where its consensus network can be
// reached by other peers.
//
// Upon starting up, a node expects to find a peers.json file, and optionaly a
// peers.genesis.json file, in its data directory. The peers.json file lists the
// peers that the node should attempt to connect to. The peers.genesis.json
// file defines the participants of epoch 0; if it is not found, peers.json is
// used instead. Participants that join later announce themselves over the
// network.
package peers
