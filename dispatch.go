package blizzard

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dispatch classifies one decoded frame event and routes it. It never
// blocks on a Handler — handlers are invoked synchronously in arrival
// order but may themselves suspend and call their Done callback later,
// from any goroutine.
func (s *Session) dispatch(ev FrameEvent) {
	switch ev.Kind {
	case EventHandshake:
		// handled by the caller (Run transitions state); nothing to dispatch.
	case EventFail:
		s.fail(ev.ID, ev.FailCode, ev.FailMessage)
	case EventBufferChunk:
		if err := s.streams.append(ev.ID, ev.Data); err != nil {
			s.fail(ev.ID, ErrorInternal, err.Error())
		}
	case EventBufferEnd:
		data, ok := s.streams.complete(ev.ID)
		if !ok {
			s.fail(ev.ID, ErrorInvalid, "Final packet for unknown stream")
			return
		}
		s.complete(ev.ID, nil, data)
	case EventJSON:
		s.handleJSON(ev.ID, ev.Data)
	}
}

func (s *Session) handleJSON(id uint32, payload []byte) {
	msg, err := parseWireMessage(payload)
	if err != nil {
		if errors.Is(err, errTopLevelArray) {
			s.fail(id, ErrorInvalid, err.Error())
		} else {
			s.fail(id, ErrorParse, err.Error())
		}
		return
	}

	switch {
	case msg.Method != nil:
		s.dispatchMethod(id, *msg.Method, msg.rawParams())
	case id != 0:
		s.record("", id, "in", 0)
		switch {
		case msg.Error != nil:
			s.complete(id, msg.Error, nil)
		case msg.hasResult():
			s.complete(id, nil, json.RawMessage(msg.Result))
		default:
			s.fail(id, ErrorInvalid, "Messages with IDs must contain method, error, or result")
		}
	default:
		s.fail(0, ErrorInvalid, "Messages without IDs must contain method")
	}
}

func (s *Session) dispatchMethod(id uint32, method string, params json.RawMessage) {
	s.record(method, id, "in", 0)

	h, ok := s.methods.lookup(method)
	if !ok {
		s.fail(id, ErrorMethod, fmt.Sprintf("Method %s not found.", method))
		return
	}

	start := time.Now()
	done := s.makeDone(id, method, start)
	h(params, done)
}

// makeDone returns the one-shot completion passed to a Handler: invoking
// it with an error emits an ERROR_USER reply; otherwise, if id != 0, the
// reply is sent, and if id == 0 (notification) it is discarded.
func (s *Session) makeDone(id uint32, method string, start time.Time) Done {
	var once sync.Once
	return func(err error, reply any) {
		once.Do(func() {
			s.instrumentDuration(method, time.Since(start))
			if err != nil {
				s.fail(id, ErrorUser, err.Error())
				s.instrumentDispatch(method, "error")
				return
			}
			s.instrumentDispatch(method, "ok")
			if id == 0 {
				return
			}
			if werr := s.sendReply(id, reply); werr != nil {
				s.logger.Printf("blizzard: session %s: send reply for %s: %v", s.ID, method, werr)
				return
			}
			s.record(method, id, "out", 0)
		})
	}
}

// complete takes the pending completion for id and invokes it exactly
// once; if absent and no error accompanies the reply, that is itself a
// protocol-correctness failure (ERROR_INTERNAL); if absent and an error
// does accompany it, drop it silently to avoid an error-reply loop.
func (s *Session) complete(id uint32, err *RemoteError, result any) {
	c, ok := s.requests.take(id)
	if ok {
		c(err, result)
		return
	}
	if err == nil {
		s.fail(id, ErrorInternal, "No callback for id")
	}
}

// fail funnels every protocol-level failure through one set of rules: an
// id-less internal failure escalates fatally (the peer cannot be told);
// any other id-less failure is swallowed as noise; an id-bearing failure
// is transmitted to the peer as an error reply. Every call is audited
// regardless of which of those three ways it's handled; only the on-wire
// send additionally counts toward the error-emitted metric, via
// sendError, so a swallowed or escalated failure is counted once here and
// a sent one is counted once there.
func (s *Session) fail(id uint32, code int, message string) {
	s.record("", id, "out", code)
	if id == 0 {
		s.instrumentError(code)
		if code == ErrorInternal {
			s.escalateFatal(fmt.Errorf("blizzard: %s", message))
		}
		return
	}
	s.sendError(id, code, message)
}

// escalateFatal records a fatal session error. The Run loop observes it
// via Err() after each dispatch and tears the session down; the error
// cannot be reported to the peer, since by definition it has no id to
// reply to.
func (s *Session) escalateFatal(err error) {
	s.stateMu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.stateMu.Unlock()
}
