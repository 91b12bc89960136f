// Package ws multiplexes an authorized websocket channel.
//
// A channel is opened at /channel/:token with a token from POST /token. Each
// frame carries one envelope:
//
//	{"action": "...", "id": "...", "payload": {...}}
//
// Client to server:
//   - invoke {method, path, body?}: served by the gateway exactly as a direct
//     request from the channel's origin, already authorized by the channel
//     token; answered with invoke {status, body}
//   - run-tool {args, body?}: starts the tool; at most one run per channel
//
// Server to client:
//   - tool-output {stream, line}: one per output line, in order
//   - tool-status {status: started, pid}, then {status: exit, code, error?}
//   - tool-status {status: rejected, error} when a run is already active
//
// Replies carry the id of the envelope they answer. The subprotocol selects
// the framing: control-bridge.json (text frames, the default) or
// control-bridge.cbor (binary frames). Closing a channel stops delivery; it
// never kills a running tool.
package ws
