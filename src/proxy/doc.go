// Package proxy defines AppProxy: the interface between a Streamlet node and
// an application.
//
// The application submits raw transactions through the proxy, and the node
// commits every finalized block back to it, in chain order. The inmem
// implementation integrates an application as a regular Go dependency, with
// native callback handlers. The dummy application only keeps the committed
// transactions and a running state hash.
package proxy
