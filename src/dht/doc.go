// Package dht defines the wire messages of the distributed hash table used by
// nodes to locate keys: key requests and responses between two nodes, and
// lookup announcements telling the network which daemon holds a key.
package dht
