package blizzard

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
)

// State is one of the four session lifecycle states: a session opens,
// becomes ready after the handshake, begins closing, and finally closes.
type State uint8

const (
	StateOpening State = iota
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one bidirectional connection running the Blizzard protocol.
// It owns the socket exclusively, one in-flight request table, one
// exposed-method table, and runs a single cooperative dispatch loop (Run)
// that drains parsed frame events. All session state is mutated from that
// one loop; handlers may suspend between receipt and Done, but their
// continuations must resume on the dispatch loop before touching it again.
type Session struct {
	ID         uuid.UUID
	instigator bool
	conn       io.ReadWriteCloser

	writeMu sync.Mutex // serializes frame emission on conn

	seq      *sequence
	requests *requestTable
	streams  *streamBuffer
	methods  *methodTable
	parser   *Parser

	logger  *log.Logger
	metrics Instrumentation
	audit   Recorder

	cancelPendingOnEnd bool

	stateMu  sync.Mutex
	state    State
	fatalErr error

	readyCh  chan struct{}
	readyOne sync.Once

	doneCh chan struct{}

	endMu   sync.Mutex
	onEnd   []func(error)
	ended   bool
	endOnce sync.Once
}

// New constructs a Session over conn. instigator must be true exactly on
// the side that opened the connection: it determines the id step (2 for
// the instigator, 1 otherwise) and who sends the first handshake frame.
func New(conn io.ReadWriteCloser, instigator bool, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	s := &Session{
		ID:                 uuid.New(),
		instigator:         instigator,
		conn:               conn,
		seq:                newSequence(instigator),
		requests:           newRequestTable(),
		methods:            newMethodTable(),
		logger:             cfg.logger,
		metrics:            cfg.metrics,
		audit:              cfg.audit,
		cancelPendingOnEnd: cfg.cancelPendingOnEnd,
		state:              StateOpening,
		readyCh:            make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
	s.streams = newStreamBuffer(cfg.maxBufferSize)
	s.parser = NewParser(conn, s.seq)
	return s
}

// Instigator reports whether this side opened the connection.
func (s *Session) Instigator() bool { return s.instigator }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Ready returns a channel closed once the handshake completes and the
// session transitions to READY.
func (s *Session) Ready() <-chan struct{} { return s.readyCh }

// Done returns a channel closed once the session has fully transitioned
// to CLOSED.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Err returns the error the session ended with, if any: a fatal protocol
// failure, the reason passed to End, or the transport error Run hit
// (io.EOF when the peer closed the connection). A graceful End(nil) leaves
// this nil.
func (s *Session) Err() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.fatalErr
}

// OnEnd registers a callback invoked exactly once, with the end reason
// (possibly nil), when the session transitions to CLOSED. If the session
// is already CLOSED, fn is invoked immediately with the recorded reason.
// The check-and-append is atomic with end()'s check-and-drain under endMu,
// so a callback registered concurrently with teardown is never dropped and
// never invoked twice.
func (s *Session) OnEnd(fn func(reason error)) {
	s.endMu.Lock()
	if s.ended {
		s.endMu.Unlock()
		fn(s.Err())
		return
	}
	s.onEnd = append(s.onEnd, fn)
	s.endMu.Unlock()
}

// Expose registers a locally callable method. Expose is normally called
// during setup, before Run; calling it concurrently with dispatch is
// permitted by the method table's locking but is undefined behavior for
// in-flight calls to the same name.
func (s *Session) Expose(name string, h Handler) {
	s.methods.expose(name, h)
}

// Run drives the session: it performs the handshake (the instigator sends
// one immediately; the other side answers the one it receives, so both
// sides reach READY), then loops reading and dispatching frame events
// until the transport is closed or a fatal protocol failure occurs. Run
// blocks; callers typically invoke it in its own goroutine.
func (s *Session) Run() error {
	if s.instigator {
		if err := EncodeZero(s.lockedWriter(), Handshake, 0); err != nil {
			s.end(err)
			return err
		}
	}

	for {
		ev, err := s.parser.Next()
		if err != nil {
			s.end(err)
			return err
		}

		s.dispatch(ev)

		if ev.Kind == EventHandshake {
			if s.becomeReady() && !s.instigator {
				if err := EncodeZero(s.lockedWriter(), Handshake, 0); err != nil {
					s.end(err)
					return err
				}
			}
		}

		if ferr := s.Err(); ferr != nil {
			s.end(ferr)
			return ferr
		}
	}
}

// becomeReady transitions OPENING → READY, reporting whether this call was
// the one that performed the transition. A peer re-sending a handshake
// mid-session is tolerated but has no further effect.
func (s *Session) becomeReady() bool {
	s.stateMu.Lock()
	if s.state == StateOpening {
		s.state = StateReady
	}
	s.stateMu.Unlock()
	first := false
	s.readyOne.Do(func() {
		first = true
		close(s.readyCh)
		s.instrumentOpened()
	})
	return first
}

// End transitions the session through CLOSING to CLOSED, closes the
// transport, and — if WithCancelPendingOnEnd was set — fails every
// pending request completion with a *RemoteError of code ErrorInternal
// whose message is ErrSessionEnded's text. Safe to call multiple
// times and from any goroutine; only the first call has effect.
func (s *Session) End(reason error) {
	s.end(reason)
}

func (s *Session) end(reason error) {
	s.endOnce.Do(func() {
		s.stateMu.Lock()
		s.state = StateClosing
		if reason != nil && s.fatalErr == nil {
			s.fatalErr = reason
		}
		s.stateMu.Unlock()

		s.conn.Close()

		if s.cancelPendingOnEnd {
			s.requests.cancelAll(&RemoteError{Code: ErrorInternal, Message: ErrSessionEnded.Error()})
		}

		s.stateMu.Lock()
		s.state = StateClosed
		recorded := s.fatalErr
		s.stateMu.Unlock()

		// The active-sessions gauge only counts sessions that reached READY.
		select {
		case <-s.readyCh:
			s.instrumentClosed()
		default:
		}
		close(s.doneCh)

		s.endMu.Lock()
		callbacks := s.onEnd
		s.onEnd = nil
		s.ended = true
		s.endMu.Unlock()
		for _, fn := range callbacks {
			fn(recorded)
		}
	})
}

func (s *Session) lockedWriter() io.Writer {
	return &lockedWriter{conn: s.conn, mu: &s.writeMu}
}

// lockedWriter serializes writes to the underlying transport so a binary
// reply's payload frame and its terminator frame are never interleaved
// with another goroutine's frame, and so headers are never torn across
// concurrent Request/Reply calls.
type lockedWriter struct {
	conn io.Writer
	mu   *sync.Mutex
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Write(p)
}

// Request issues a call to method on the peer. If completion is non-nil,
// an id is allocated and completion is invoked at most once when the
// matching reply arrives. If completion is nil, the call is sent as a
// notification (id=0) and no entry is added to the request table.
func (s *Session) Request(method string, params any, completion Completion) error {
	if completion == nil {
		return s.writeRequest(0, method, params)
	}

	id := s.seq.next()
	s.requests.register(id, completion)
	if err := s.writeRequest(id, method, params); err != nil {
		s.requests.take(id)
		return err
	}
	s.record(method, id, "out", 0)
	return nil
}

type outgoingRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

func (s *Session) writeRequest(id uint32, method string, params any) error {
	data, err := json.Marshal(outgoingRequest{Method: method, Params: params})
	if err != nil {
		return &protocolError{op: "marshal request", err: err}
	}
	return EncodePayload(s.lockedWriter(), JSON, id, data)
}

// Reply sends a result for a previously dispatched request id. This is
// normally driven internally by the dispatcher via a Handler's Done
// callback, not by host code; calling Reply(0, ...) is a programmer error
// and returns a *protocolError.
func (s *Session) Reply(id uint32, payload any) error {
	if id == 0 {
		return &protocolError{op: "reply", err: fmt.Errorf("id 0 never expects a reply")}
	}
	return s.sendReply(id, payload)
}

func (s *Session) sendReply(id uint32, payload any) error {
	// Only a non-empty []byte takes the binary path: a zero-length
	// BUFFER_RESPONSE payload frame is byte-identical to the terminator
	// sentinel, so an empty binary reply is delivered as a JSON result
	// instead.
	if b, ok := payload.([]byte); ok && len(b) > 0 {
		// Hold the write lock across both frames: the terminator must land
		// adjacent to its payload frame on the wire.
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if err := EncodePayload(s.conn, BufferResponse, id, b); err != nil {
			return err
		}
		return EncodeZero(s.conn, BufferResponse, id)
	}

	data, err := json.Marshal(struct {
		Result any `json:"result"`
	}{payload})
	if err != nil {
		return &protocolError{op: "marshal reply", err: err}
	}
	return EncodePayload(s.lockedWriter(), JSON, id, data)
}

func (s *Session) sendError(id uint32, code int, message string) {
	data, err := json.Marshal(struct {
		Error RemoteError `json:"error"`
	}{RemoteError{Code: code, Message: message}})
	if err != nil {
		s.logger.Printf("blizzard: session %s: marshal error reply: %v", s.ID, err)
		return
	}
	if werr := EncodePayload(s.lockedWriter(), JSON, id, data); werr != nil {
		s.logger.Printf("blizzard: session %s: write error reply: %v", s.ID, werr)
	}
	s.instrumentError(code)
}
