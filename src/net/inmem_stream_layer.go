package net

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errInmemAddrInUse  = errors.New("inmem address already in use")
	errInmemNoListener = errors.New("connection refused")
	errInmemClosed     = errors.New("inmem listener closed")
)

// NewInmemAddr returns a new in-memory address with a random UUID as the
// host. The address has the host:port form so that it can be stored in the
// Hosts registry.
func NewInmemAddr() string {
	return fmt.Sprintf("%s:0", uuid.New().String())
}

type inmemAddr string

func (a inmemAddr) Network() string { return "inmem" }
func (a inmemAddr) String() string  { return string(a) }

// inmemConn gives both ends of a pipe distinct addresses.
type inmemConn struct {
	net.Conn
	local  inmemAddr
	remote inmemAddr
}

func (c *inmemConn) LocalAddr() net.Addr  { return c.local }
func (c *inmemConn) RemoteAddr() net.Addr { return c.remote }

// InmemNetwork implements StreamLayer with synchronous in-memory pipes, to
// allow whole P2P networks to be tested in-process without going over a
// network.
type InmemNetwork struct {
	mtx       sync.Mutex
	listeners map[string]*inmemListener
}

// NewInmemNetwork creates an empty InmemNetwork.
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		listeners: make(map[string]*inmemListener),
	}
}

// Listen implements the StreamLayer interface. An empty bindAddr picks a
// random address.
func (n *InmemNetwork) Listen(bindAddr string) (net.Listener, error) {
	if bindAddr == "" {
		bindAddr = NewInmemAddr()
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()

	if _, ok := n.listeners[bindAddr]; ok {
		return nil, errInmemAddrInUse
	}

	l := &inmemListener{
		network: n,
		addr:    inmemAddr(bindAddr),
		conns:   make(chan net.Conn),
		done:    make(chan struct{}),
	}
	n.listeners[bindAddr] = l
	return l, nil
}

// Dial implements the StreamLayer interface.
func (n *InmemNetwork) Dial(address string, timeout time.Duration) (net.Conn, error) {
	n.mtx.Lock()
	l, ok := n.listeners[address]
	n.mtx.Unlock()

	if !ok {
		return nil, errInmemNoListener
	}

	client, server := net.Pipe()
	local := inmemAddr(NewInmemAddr())

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case l.conns <- &inmemConn{Conn: server, local: l.addr, remote: local}:
		return &inmemConn{Conn: client, local: local, remote: l.addr}, nil
	case <-l.done:
		client.Close()
		server.Close()
		return nil, errInmemNoListener
	case <-timer:
		client.Close()
		server.Close()
		return nil, fmt.Errorf("dial %s: timeout", address)
	}
}

func (n *InmemNetwork) remove(addr string) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.listeners, addr)
}

type inmemListener struct {
	network *InmemNetwork
	addr    inmemAddr
	conns   chan net.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// Accept implements the net.Listener interface.
func (l *inmemListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, errInmemClosed
	}
}

// Close implements the net.Listener interface.
func (l *inmemListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.network.remove(string(l.addr))
	})
	return nil
}

// Addr implements the net.Listener interface.
func (l *inmemListener) Addr() net.Addr {
	return l.addr
}
