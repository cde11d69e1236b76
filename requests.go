package blizzard

import "sync"

// Completion is invoked at most once when a reply to a prior request
// arrives, or when the session cancels pending requests (see
// WithCancelPendingOnEnd). Exactly one of err/result is meaningful.
//
// result is a json.RawMessage for a JSON reply, or a []byte for a binary
// (reassembled BUFFER_RESPONSE) reply — the two reply shapes the wire
// format distinguishes. Callers type-switch on it.
type Completion func(err *RemoteError, result any)

// requestTable maps outstanding caller ids to pending completions. Entries
// are removed on first use (see take) — there is no "completed" state kept
// around.
type requestTable struct {
	mu      sync.Mutex
	pending map[uint32]Completion
}

func newRequestTable() *requestTable {
	return &requestTable{pending: make(map[uint32]Completion)}
}

// register inserts a pending completion for id. The caller is responsible
// for ensuring id is not already registered (ids are allocated uniquely by
// sequence, so this never collides in practice).
func (t *requestTable) register(id uint32, c Completion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[id] = c
}

// take removes and returns the completion for id, if any. Subsequent calls
// for the same id return ok=false: a "take" operation, not a lookup.
func (t *requestTable) take(id uint32) (Completion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return c, ok
}

// cancelAll takes every remaining pending completion and invokes each with
// err. Used only when WithCancelPendingOnEnd is set — cancellation on end
// is a higher-layer policy choice, not a core default.
func (t *requestTable) cancelAll(err *RemoteError) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uint32]Completion)
	t.mu.Unlock()

	for _, c := range pending {
		c(err, nil)
	}
}
