package blizzard

import "time"

// Instrumentation is the optional observability hook a Session reports
// through. It is pure observation — nothing in the dispatcher consults an
// Instrumentation value to make a decision; metrics are a host-level
// concern external to the core. The metrics package implements this
// interface on top of prometheus/client_golang.
type Instrumentation interface {
	SessionOpened()
	SessionClosed()
	RequestDispatched(method string, status string)
	ErrorEmitted(code int)
	DispatchDuration(method string, d time.Duration)
}

// Recorder is the optional audit sink a Session reports dispatched
// messages through. Like Instrumentation, it never influences dispatch
// outcomes. The auditlog package implements this on top of database/sql.
type Recorder interface {
	Record(entry RecordEntry)
}

// RecordEntry describes one dispatched message for audit purposes.
type RecordEntry struct {
	Method    string
	ID        uint32
	Direction string // "in" or "out"
	Code      int    // 0 when no error accompanied the message
	At        time.Time
}

func (s *Session) instrumentOpened() {
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
}

func (s *Session) instrumentClosed() {
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
}

func (s *Session) instrumentDispatch(method, status string) {
	if s.metrics != nil {
		s.metrics.RequestDispatched(method, status)
	}
}

func (s *Session) instrumentError(code int) {
	if s.metrics != nil {
		s.metrics.ErrorEmitted(code)
	}
}

func (s *Session) instrumentDuration(method string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.DispatchDuration(method, d)
	}
}

func (s *Session) record(method string, id uint32, direction string, code int) {
	if s.audit == nil {
		return
	}
	s.audit.Record(RecordEntry{Method: method, ID: id, Direction: direction, Code: code, At: time.Now()})
}
