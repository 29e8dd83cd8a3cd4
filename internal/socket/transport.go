package socket

import "net"

// Transport is the host datagram primitive the engine builds on:
// send/receive/bind/close on a connectionless endpoint with source-address
// reporting. Treated as an external collaborator per spec.md §1 — the
// engine only ever talks to this interface, never to net.UDPConn
// directly, so tests can substitute an in-memory double.
type Transport interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	WriteTo(b []byte, addr net.Addr) (n int, err error)
	LocalAddr() net.Addr
	Close() error
}

// udpTransport adapts *net.UDPConn to Transport.
type udpTransport struct {
	conn *net.UDPConn
}

func newUDPTransport(network, addr string) (*udpTransport, error) {
	resolved, err := net.ResolveUDPAddr(network, addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(network, resolved)
	if err != nil {
		return nil, err
	}
	return &udpTransport{conn: conn}, nil
}

// NewUDPTransport adapts an already-bound *net.UDPConn into a Transport,
// for callers (such as the demo commands) that need to resolve their
// local address before constructing a Config.
func NewUDPTransport(conn *net.UDPConn) Transport {
	return &udpTransport{conn: conn}
}

func (t *udpTransport) ReadFrom(b []byte) (int, net.Addr, error) {
	return t.conn.ReadFromUDP(b)
}

func (t *udpTransport) WriteTo(b []byte, addr net.Addr) (int, error) {
	return t.conn.WriteTo(b, addr)
}

func (t *udpTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}
