package ws

// Inbound actions
const (
	ActionInvoke  = "invoke"
	ActionRunTool = "run-tool"
)

// Outbound actions. Replies to invoke reuse ActionInvoke.
const (
	ActionToolOutput = "tool-output"
	ActionToolStatus = "tool-status"
)

// Tool status values
const (
	StatusStarted  = "started"
	StatusExit     = "exit"
	StatusRejected = "rejected"
)

// Envelope is one framed message on a channel.
type Envelope struct {
	Action  string `json:"action"`
	ID      string `json:"id"`
	Payload any    `json:"payload,omitempty"`
}

// InvokePayload asks the gateway to serve one request.
type InvokePayload struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   any    `json:"body,omitempty"`
}

// InvokeReply carries the gateway's response.
type InvokeReply struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}

// RunToolPayload starts the tool. Args are split on whitespace and appended
// to the configured base arguments. Body, when present, replaces the
// configured standard input.
type RunToolPayload struct {
	Args string  `json:"args"`
	Body *string `json:"body,omitempty"`
}

// ToolOutput is one line of tool output.
type ToolOutput struct {
	Stream string `json:"stream"`
	Line   string `json:"line"`
}

// ToolStatus reports a run's lifecycle.
type ToolStatus struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Code   *int   `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Inbound is a decoded client envelope. Exactly one payload is set for the
// known actions.
type Inbound struct {
	Action  string
	ID      string
	Invoke  *InvokePayload
	RunTool *RunToolPayload
}
