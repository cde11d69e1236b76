package blizzard

import (
	"encoding/binary"
	"io"
)

// EventKind tags the kind of FrameEvent yielded by the stream parser.
type EventKind uint8

const (
	EventHandshake EventKind = iota
	EventJSON
	EventBufferChunk
	EventBufferEnd
	EventFail
)

// FrameEvent is one decoded unit of work for the dispatcher. Only the
// fields relevant to Kind are populated; the rest are zero.
type FrameEvent struct {
	Kind        EventKind
	ID          uint32
	Data        []byte // JSON payload (EventJSON) or binary chunk (EventBufferChunk)
	FailCode    int
	FailMessage string
}

// Parser incrementally decodes frames from an underlying byte stream. It
// never buffers more than one frame header + payload at a time, so it
// never blocks the dispatcher on a message larger than has arrived.
type Parser struct {
	r   io.Reader
	seq *sequence // optional: kept in sync with every id seen on the wire
	hdr [HeaderSize - 1]byte
}

// NewParser returns a parser reading frames from r. seq may be nil if the
// caller does not need defensive sequence sync.
func NewParser(r io.Reader, seq *sequence) *Parser {
	return &Parser{r: r, seq: seq}
}

// Next blocks until one frame has been read and decoded, or the
// underlying reader returns an error (including io.EOF on close).
//
// On a bad magic byte it does not scan forward for resynchronization — it
// emits one EventFail and returns, leaving the stream positioned exactly
// where the single magic byte was consumed. Calling Next again resumes
// reading as if at a frame boundary; this will typically desynchronize
// further if the stray byte was not itself a true frame boundary, and
// that is the intentional, preserved behavior rather than an omission.
func (p *Parser) Next() (FrameEvent, error) {
	var magicBuf [1]byte
	if _, err := io.ReadFull(p.r, magicBuf[:]); err != nil {
		return FrameEvent{}, err
	}
	if magicBuf[0] != Magic {
		return FrameEvent{Kind: EventFail, ID: 0, FailCode: ErrorInvalid, FailMessage: "Unexpected magic"}, nil
	}

	if _, err := io.ReadFull(p.r, p.hdr[:]); err != nil {
		return FrameEvent{}, err
	}
	typ := FrameType(p.hdr[0])
	id := binary.BigEndian.Uint32(p.hdr[1:5])
	length := binary.BigEndian.Uint32(p.hdr[5:9])

	if p.seq != nil {
		p.seq.sync(id)
	}

	if length == 0 {
		switch typ {
		case BufferResponse:
			return FrameEvent{Kind: EventBufferEnd, ID: id}, nil
		case Handshake:
			return FrameEvent{Kind: EventHandshake, ID: id}, nil
		default:
			return FrameEvent{Kind: EventFail, ID: id, FailCode: ErrorInvalid, FailMessage: "Unexpected 0-length header"}, nil
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(p.r, payload); err != nil {
		return FrameEvent{}, err
	}

	switch typ {
	case JSON:
		return FrameEvent{Kind: EventJSON, ID: id, Data: payload}, nil
	case BufferResponse:
		return FrameEvent{Kind: EventBufferChunk, ID: id, Data: payload}, nil
	default:
		return FrameEvent{Kind: EventFail, ID: id, FailCode: ErrorInvalid, FailMessage: "Unknown packet type"}, nil
	}
}
