// Package transport provides the connection plumbing a blizzard.Session
// runs over: plain TCP helpers, a WebSocket-to-io.ReadWriteCloser adapter,
// and a yamux-based multiplexer for running many sessions over one socket.
// None of it understands the frame protocol; blizzard.New accepts anything
// satisfying io.ReadWriteCloser.
package transport

import (
	"fmt"
	"net"
)

// DialTCP opens an outbound TCP connection to addr. The caller becomes the
// instigator side of the resulting Session.
func DialTCP(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}

// ListenTCP starts listening on addr and returns the listener. Callers
// typically Accept in a loop and hand each connection to blizzard.New with
// instigator=false.
func ListenTCP(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return ln, nil
}
