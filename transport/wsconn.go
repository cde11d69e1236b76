package transport

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// WSConn presents a *websocket.Conn as a plain io.ReadWriteCloser so a
// blizzard.Session (or a yamux.Session layered over one) can run across a
// WebSocket. Inbound messages are streamed through NextReader and consumed
// incrementally: a frame header pulled ten bytes at a time never discards
// the rest of the message it arrived in, and a message larger than the
// caller's buffer is never copied whole into memory first.
type WSConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	cur     io.Reader // in-progress inbound message, nil between messages
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

func (c *WSConn) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.cur = r
		}
		n, err := c.cur.Read(p)
		if err == io.EOF {
			// Message exhausted; the next Read starts the next message.
			c.cur = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *WSConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *WSConn) Close() error {
	return c.ws.Close()
}

var _ io.ReadWriteCloser = (*WSConn)(nil)
