package blizzard

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireMessage is the logical decoded shape of a JSON frame payload. Exactly
// one field-set — method(+params), result, or error — is expected to be
// populated; parseWireMessage only decodes, it does not enforce the one-of
// rule — that happens in the dispatcher, where the distinction between a
// request and a reply also depends on whether the frame's id is zero.
type wireMessage struct {
	Method *string         `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// hasResult reports whether the result field was present in the payload,
// including the legitimate case of a literal JSON null result.
func (m *wireMessage) hasResult() bool { return m.Result != nil }

// errTopLevelArray distinguishes the array-rejection case from an ordinary
// JSON syntax error: the former is a schema violation (ERROR_INVALID), the
// latter a parse failure (ERROR_PARSE).
var errTopLevelArray = fmt.Errorf("payload must not be a top-level array")

// parseWireMessage decodes a JSON frame payload into a wireMessage.
//
// The top-level value must be a JSON object; arrays are rejected outright.
// This is a structural check (a leading '[' byte) rather than a check on
// some length-like field, so it never misfires on an object that happens
// to carry a numeric "length" key.
func parseWireMessage(payload []byte) (*wireMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, errTopLevelArray
	}
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// rawParams returns the decoded params, defaulting to an empty array when
// absent.
func (m *wireMessage) rawParams() json.RawMessage {
	if m.Params == nil {
		return json.RawMessage("[]")
	}
	return m.Params
}
