package blizzard

import (
	"encoding/binary"
	"io"
)

// Magic is the constant first byte of every frame on the wire.
const Magic byte = 0x59

// MaxID is the largest representable request/response correlation id;
// the id allocator wraps to 0 after exceeding it.
const MaxID uint32 = 0xFFFFFFFF

// HeaderSize is the fixed size, in bytes, of a frame header.
const HeaderSize = 10

// FrameType identifies the kind of payload a frame carries.
type FrameType uint8

const (
	// Handshake is the zero-length frame exchanged at connection open.
	Handshake FrameType = 0
	// JSON carries a UTF-8 encoded JSON object payload.
	JSON FrameType = 1
	// value 2 is reserved and unused on the wire.
	// BufferResponse carries a chunk of, or terminates, a binary reply.
	BufferResponse FrameType = 3
)

// Frame is a fully decoded header + payload pair.
type Frame struct {
	Type    FrameType
	ID      uint32
	Payload []byte // nil iff this is a zero-length sentinel frame
}

// putHeader writes the 10-byte header for typ/id/length into buf[0:10].
func putHeader(buf []byte, typ FrameType, id uint32, length uint32) {
	buf[0] = Magic
	buf[1] = byte(typ)
	binary.BigEndian.PutUint32(buf[2:6], id)
	binary.BigEndian.PutUint32(buf[6:10], length)
}

// EncodeZero writes a zero-length frame: exactly HeaderSize bytes.
// Used for the handshake, and as the terminator of a binary reply.
func EncodeZero(w io.Writer, typ FrameType, id uint32) error {
	var buf [HeaderSize]byte
	putHeader(buf[:], typ, id, 0)
	if _, err := w.Write(buf[:]); err != nil {
		return &protocolError{op: "write frame", err: ErrTransportClosed}
	}
	return nil
}

// EncodePayload writes a header followed by payload as a single contiguous
// buffer, so the two are never interleaved with another goroutine's frame
// on a shared writer.
func EncodePayload(w io.Writer, typ FrameType, id uint32, payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, typ, id, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return &protocolError{op: "write frame", err: ErrTransportClosed}
	}
	return nil
}
