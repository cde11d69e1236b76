package transport

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func newEchoWSConn(t *testing.T) *WSConn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	ws := NewWSConn(conn)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWSConnRoundTrip(t *testing.T) {
	ws := newEchoWSConn(t)

	msg := []byte("hello over websocket")
	if _, err := ws.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(ws, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(buf, msg) {
		t.Fatalf("read %q, want %q", buf, msg)
	}
}

// TestWSConnBuffersPartialReads checks that one websocket message survives
// being consumed by several small Read calls — a frame header read may take
// only 10 bytes of a much larger message, and the rest must not be lost.
func TestWSConnBuffersPartialReads(t *testing.T) {
	ws := newEchoWSConn(t)

	msg := []byte("0123456789abcdefghij")
	if _, err := ws.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []byte
	buf := make([]byte, 3)
	for len(got) < len(msg) {
		n, err := ws.Read(buf)
		if err != nil {
			t.Fatalf("Read after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("reassembled %q, want %q", got, msg)
	}
}
