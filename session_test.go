package blizzard

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// fakeInstrumentation is a test double for Instrumentation that counts
// calls instead of exporting Prometheus collectors.
type fakeInstrumentation struct {
	mu         sync.Mutex
	opened     int
	closed     int
	dispatched map[string]int // "method:status" -> count
	errors     map[int]int    // code -> count
	durations  int
}

func newFakeInstrumentation() *fakeInstrumentation {
	return &fakeInstrumentation{
		dispatched: make(map[string]int),
		errors:     make(map[int]int),
	}
}

func (f *fakeInstrumentation) SessionOpened() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
}

func (f *fakeInstrumentation) SessionClosed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeInstrumentation) RequestDispatched(method, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched[method+":"+status]++
}

func (f *fakeInstrumentation) ErrorEmitted(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[code]++
}

func (f *fakeInstrumentation) DispatchDuration(method string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations++
}

func (f *fakeInstrumentation) errorCount(code int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[code]
}

// fakeRecorder is a test double for Recorder that collects every entry.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []RecordEntry
}

func (f *fakeRecorder) Record(e RecordEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeRecorder) snapshot() []RecordEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

func newPipeSessions(t *testing.T) (client, server *Session) {
	t.Helper()
	a, b := net.Pipe()
	client = New(a, true)
	server = New(b, false)
	go client.Run()
	go server.Run()
	t.Cleanup(func() {
		client.End(nil)
		server.End(nil)
	})
	return client, server
}

func waitReady(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session to become ready")
	}
}

// TestSessionHandshake checks that both sides of a fresh session pair reach
// READY.
func TestSessionHandshake(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	client, server := newPipeSessions(t)
	waitReady(t, client)
	waitReady(t, server)
	if client.State() != StateReady {
		t.Fatalf("client state = %v, want ready", client.State())
	}
	if server.State() != StateReady {
		t.Fatalf("server state = %v, want ready", server.State())
	}
}

// TestSessionRequestReply checks a request("add", [1,2], cb) call
// answered with {"result":3}.
func TestSessionRequestReply(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	client, server := newPipeSessions(t)
	waitReady(t, client)
	waitReady(t, server)

	server.Expose("add", func(params json.RawMessage, done Done) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil {
			done(err, nil)
			return
		}
		sum := 0
		for _, n := range args {
			sum += n
		}
		done(nil, sum)
	})

	resultCh := make(chan int, 1)
	errCh := make(chan *RemoteError, 1)
	err := client.Request("add", []int{1, 2}, func(rerr *RemoteError, result any) {
		if rerr != nil {
			errCh <- rerr
			return
		}
		data, _ := json.Marshal(result)
		var n int
		json.Unmarshal(data, &n)
		resultCh <- n
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case n := <-resultCh:
		if n != 3 {
			t.Fatalf("result = %d, want 3", n)
		}
	case rerr := <-errCh:
		t.Fatalf("unexpected error reply: %v", rerr)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

// TestSessionUnknownMethod checks that a request for an unexposed method
// comes back as an ERROR_METHOD reply.
func TestSessionUnknownMethod(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	client, server := newPipeSessions(t)
	waitReady(t, client)
	waitReady(t, server)

	errCh := make(chan *RemoteError, 1)
	err := client.Request("nope", nil, func(rerr *RemoteError, result any) {
		errCh <- rerr
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case rerr := <-errCh:
		if rerr == nil || rerr.Code != ErrorMethod {
			t.Fatalf("got %v, want ErrorMethod", rerr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error reply")
	}
}

// TestSessionBinaryReply checks that a handler answering with a []byte is
// delivered back as a reassembled binary result.
func TestSessionBinaryReply(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	client, server := newPipeSessions(t)
	waitReady(t, client)
	waitReady(t, server)

	server.Expose("blob", func(_ json.RawMessage, done Done) {
		done(nil, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	})

	resultCh := make(chan []byte, 1)
	err := client.Request("blob", nil, func(rerr *RemoteError, result any) {
		if rerr != nil {
			t.Errorf("unexpected error: %v", rerr)
			return
		}
		b, ok := result.([]byte)
		if !ok {
			t.Errorf("result type = %T, want []byte", result)
			return
		}
		resultCh <- b
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case b := <-resultCh:
		if len(b) != 4 || b[0] != 0xDE || b[1] != 0xAD || b[2] != 0xBE || b[3] != 0xEF {
			t.Fatalf("result = % x, want deadbeef", b)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for binary reply")
	}
}

// TestSessionEmptyBinaryReply checks that a handler answering with an
// empty []byte still resolves the caller's completion. A zero-length
// binary payload frame would be byte-identical to the stream terminator,
// so the reply must travel as a JSON result rather than hang the caller
// on a terminator for a stream that never opened.
func TestSessionEmptyBinaryReply(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	client, server := newPipeSessions(t)
	waitReady(t, client)
	waitReady(t, server)

	server.Expose("drain", func(_ json.RawMessage, done Done) {
		done(nil, []byte{})
	})

	resolved := make(chan struct{}, 1)
	err := client.Request("drain", nil, func(rerr *RemoteError, result any) {
		if rerr != nil {
			t.Errorf("unexpected error reply: %v", rerr)
		}
		resolved <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case <-resolved:
	case <-time.After(time.Second):
		t.Fatal("empty binary reply must resolve the completion, not hang")
	}
}

// TestSessionNotificationHasNoReply checks that a request issued with a
// nil Completion is still delivered to the peer's handler.
func TestSessionNotificationHasNoReply(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	client, server := newPipeSessions(t)
	waitReady(t, client)
	waitReady(t, server)

	seen := make(chan struct{}, 1)
	server.Expose("ping", func(_ json.RawMessage, done Done) {
		seen <- struct{}{}
		done(nil, nil)
	})

	if err := client.Request("ping", nil, nil); err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification to dispatch")
	}
}

// TestSessionOnEndAfterClose covers the registered-after-teardown path: a
// callback registered once the session has already ended fires immediately
// with the recorded reason instead of being silently dropped.
func TestSessionOnEndAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	a, b := net.Pipe()
	s := New(a, true)
	go s.Run()
	go func() {
		other := New(b, false)
		other.Run()
	}()

	reason := errors.New("boom")
	s.End(reason)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session to close")
	}

	fired := make(chan error, 1)
	s.OnEnd(func(err error) { fired <- err })

	select {
	case err := <-fired:
		if err != reason {
			t.Fatalf("OnEnd reason = %v, want %v", err, reason)
		}
	case <-time.After(time.Second):
		t.Fatal("OnEnd callback registered after close must fire immediately")
	}
}

// TestSessionCancelPendingOnEnd covers WithCancelPendingOnEnd: a pending
// completion is failed with a non-nil *RemoteError when the session ends instead
// of being silently abandoned.
func TestSessionCancelPendingOnEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	a, b := net.Pipe()
	client := New(a, true, WithCancelPendingOnEnd(true))
	server := New(b, false)
	go client.Run()
	go server.Run()
	t.Cleanup(func() { server.End(nil) })

	waitReady(t, client)
	waitReady(t, server)

	// hang never calls done, so the only way the pending completion
	// resolves is via WithCancelPendingOnEnd on client.End.
	server.Expose("hang", func(_ json.RawMessage, _ Done) {})

	cancelled := make(chan *RemoteError, 1)
	err := client.Request("hang", nil, func(rerr *RemoteError, result any) {
		cancelled <- rerr
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	client.End(nil)

	select {
	case rerr := <-cancelled:
		if rerr == nil {
			t.Fatal("expected a non-nil RemoteError on cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending completion to be cancelled")
	}
}

// TestSessionInstrumentationAndAuditCounts wires a fake Instrumentation and
// Recorder into the server side and drives it through one successful
// request/reply and one error reply, checking that each error is counted
// exactly once (not once in fail and again in sendError) and that the
// audit trail records the error reply's code rather than dropping it.
func TestSessionInstrumentationAndAuditCounts(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	a, b := net.Pipe()

	instr := newFakeInstrumentation()
	rec := &fakeRecorder{}

	client := New(a, true)
	server := New(b, false, WithMetrics(instr), WithAuditLog(rec))
	go client.Run()
	go server.Run()
	t.Cleanup(func() {
		client.End(nil)
		server.End(nil)
	})

	waitReady(t, client)
	waitReady(t, server)

	server.Expose("add", func(params json.RawMessage, done Done) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil {
			done(err, nil)
			return
		}
		sum := 0
		for _, n := range args {
			sum += n
		}
		done(nil, sum)
	})

	okCh := make(chan int, 1)
	if err := client.Request("add", []int{1, 2}, func(rerr *RemoteError, result any) {
		if rerr != nil {
			t.Errorf("unexpected error: %v", rerr)
			return
		}
		data, _ := json.Marshal(result)
		var n int
		json.Unmarshal(data, &n)
		okCh <- n
	}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	select {
	case n := <-okCh:
		if n != 3 {
			t.Fatalf("result = %d, want 3", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for add reply")
	}

	errCh := make(chan *RemoteError, 1)
	if err := client.Request("nope", nil, func(rerr *RemoteError, result any) {
		errCh <- rerr
	}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	select {
	case rerr := <-errCh:
		if rerr == nil || rerr.Code != ErrorMethod {
			t.Fatalf("got %v, want ErrorMethod", rerr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error reply")
	}

	// Give the server side a moment to finish its own instrumentation and
	// audit calls, which happen after the reply is already on the wire.
	time.Sleep(10 * time.Millisecond)

	if got := instr.errorCount(ErrorMethod); got != 1 {
		t.Fatalf("ErrorEmitted(ErrorMethod) called %d times, want 1", got)
	}

	var sawErrorRecord bool
	for _, e := range rec.snapshot() {
		if e.Direction == "out" && e.Code == ErrorMethod {
			sawErrorRecord = true
		}
	}
	if !sawErrorRecord {
		t.Fatal("expected an audit entry for the ErrorMethod reply, found none")
	}
}
