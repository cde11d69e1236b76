package transport

import (
	"fmt"
	"io"
	"net"

	"github.com/hashicorp/yamux"
)

// Multiplexer wraps a single physical connection in a yamux session so many
// independent Blizzard sessions can share one socket, one per logical
// stream. This is additive: each stream yamux hands back is itself a
// net.Conn suitable for blizzard.New, and the frame protocol on that stream
// is unaware anything is shared underneath it.
type Multiplexer struct {
	session *yamux.Session
}

// NewServerMultiplexer wraps conn as the yamux server side, the side that
// Accepts streams opened by the peer.
func NewServerMultiplexer(conn io.ReadWriteCloser) (*Multiplexer, error) {
	sess, err := yamux.Server(conn, yamux.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: yamux server: %w", err)
	}
	return &Multiplexer{session: sess}, nil
}

// NewClientMultiplexer wraps conn as the yamux client side, the side that
// Opens streams.
func NewClientMultiplexer(conn io.ReadWriteCloser) (*Multiplexer, error) {
	sess, err := yamux.Client(conn, yamux.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: yamux client: %w", err)
	}
	return &Multiplexer{session: sess}, nil
}

// Accept blocks until the peer opens a new logical stream, returning it as
// a net.Conn ready to back one Blizzard Session.
func (m *Multiplexer) Accept() (net.Conn, error) {
	return m.session.Accept()
}

// Open opens a new logical stream to the peer for one Blizzard Session.
func (m *Multiplexer) Open() (net.Conn, error) {
	return m.session.Open()
}

// Close tears down every stream and the underlying connection.
func (m *Multiplexer) Close() error {
	return m.session.Close()
}

// IsClosed reports whether the underlying yamux session has been closed.
func (m *Multiplexer) IsClosed() bool {
	return m.session.IsClosed()
}
