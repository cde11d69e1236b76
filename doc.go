// Package blizzard implements the Blizzard session protocol: a
// bidirectional, framed JSON-RPC-over-TCP session that multiplexes two
// message kinds over one socket — structured JSON calls/replies and
// opaque binary payload replies.
//
// Semantics and design:
//   - Framing: every frame on the wire is a 10-byte header (magic, type,
//     id, length) followed by length payload bytes. See EncodeZero,
//     EncodePayload and Parser.
//   - Correlation: each side allocates its own request ids — the
//     instigator (the side that opened the connection) steps by 2 from 0
//     (even ids), the other side steps by 1 from 0 — and a reply carries
//     the id of the request it answers.
//   - Dispatch: a Session owns exactly one socket, one in-flight request
//     table, one exposed-method table, and runs a single cooperative
//     dispatch loop that drains parsed frame events.
//   - Binary replies: delivered as a sequence of BUFFER_RESPONSE frames
//     terminated by a zero-length frame; the Session reassembles them
//     into a single result before dispatch.
//
// This package is the session core only. TCP acceptance and metrics
// wiring live in sibling packages (transport, metrics) so the core stays
// free of ambient concerns.
package blizzard
