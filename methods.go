package blizzard

import (
	"encoding/json"
	"sync"
)

// Done is the one-shot completion a Handler invokes when it has an answer.
// err, if non-nil, is delivered to the peer as an ERROR_USER reply; its
// Error() string becomes the on-wire message. reply is ignored when err is
// set. reply may be a []byte, delivered as a binary (BUFFER_RESPONSE)
// reply, or any other JSON-marshalable value, delivered as {"result":
// reply}. A nil reply with id==0 (notification) is simply discarded.
type Done func(err error, reply any)

// Handler is a locally exposed method. params defaults to the JSON array
// "[]" when the caller omitted them. Handlers may suspend and call done
// asynchronously; they must call done at most once.
type Handler func(params json.RawMessage, done Done)

// methodTable maps exposed method names to handlers. Read-only after
// Expose calls complete during setup; mutating it concurrently with
// dispatch is undefined behavior at this layer, tolerated only because the
// map itself is lock-protected against a data race.
type methodTable struct {
	mu      sync.RWMutex
	methods map[string]Handler
}

func newMethodTable() *methodTable {
	return &methodTable{methods: make(map[string]Handler)}
}

func (t *methodTable) expose(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.methods[name] = h
}

func (t *methodTable) lookup(name string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.methods[name]
	return h, ok
}
