package net

import (
	"errors"
	"net"
	"time"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// TCPStreamLayer implements StreamLayer interface for plain TCP.
type TCPStreamLayer struct{}

// NewTCPStreamLayer returns a TCPStreamLayer.
func NewTCPStreamLayer() *TCPStreamLayer {
	return &TCPStreamLayer{}
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// Listen implements the StreamLayer interface.
func (t *TCPStreamLayer) Listen(bindAddr string) (net.Listener, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	return &TCPListener{
		listener: list.(*net.TCPListener),
	}, nil
}

// TCPListener wraps a net.TCPListener and closes its file descriptor along
// with it.
type TCPListener struct {
	listener *net.TCPListener
}

// Accept implements the net.Listener interface.
func (t *TCPListener) Accept() (c net.Conn, err error) {
	return t.listener.Accept()
}

// Close implements the net.Listener interface.
func (t *TCPListener) Close() (err error) {
	lnFile, _ := t.listener.File()

	if err := t.listener.Close(); err != nil {
		return err
	}

	if lnFile != nil {
		if err := lnFile.Close(); err != nil {
			return err
		}
	}

	return nil
}

// Addr implements the net.Listener interface.
func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// ValidateAdvertiseAddr checks that addr is a TCP address other nodes can
// dial.
func ValidateAdvertiseAddr(addr string) error {
	resolved, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}
	if resolved.IP == nil {
		return errNotTCP
	}
	if resolved.IP.IsUnspecified() {
		return errNotAdvertisable
	}
	return nil
}
