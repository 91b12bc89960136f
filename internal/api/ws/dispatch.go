package ws

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/ControlBridge/internal/api/middleware"
)

// RequestIDHeader carries the id assigned to a tunnelled invoke.
const RequestIDHeader = "X-Request-ID"

// responseBuffer collects a gateway response in memory.
type responseBuffer struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (r *responseBuffer) Header() http.Header { return r.header }

func (r *responseBuffer) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *responseBuffer) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

// Flush satisfies http.Flusher; the buffer is only read once the handler returns.
func (r *responseBuffer) Flush() {}

func (r *responseBuffer) reply() InvokeReply {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return InvokeReply{Status: status, Body: decodeBody(r.body.Bytes())}
}

// decodeBody returns JSON bodies as values and anything else as text.
func decodeBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var v any
	if err := sonic.Unmarshal(data, &v); err == nil {
		return v
	}
	return string(data)
}

func errorReply(status int, message string) InvokeReply {
	return InvokeReply{Status: status, Body: map[string]any{"message": message}}
}

// isChannelPath reports whether p addresses the upgrade route.
func isChannelPath(p string) bool {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	clean := path.Clean("/" + p)
	return clean == "/channel" || strings.HasPrefix(clean, "/channel/")
}

// dispatch replays an invoke against the gateway as an ordinary request from
// the channel's origin. The request is marked as tunnelled so token-gated
// routes accept it without a bearer header.
func dispatch(ctx context.Context, gateway http.Handler, p *InvokePayload, origin, remoteAddr, requestID string) InvokeReply {
	if p.Path == "" || !strings.HasPrefix(p.Path, "/") {
		return errorReply(http.StatusBadRequest, "invoke path must be absolute")
	}

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if p.Body != nil {
		data, err := sonic.Marshal(p.Body)
		if err != nil {
			return errorReply(http.StatusBadRequest, "invoke body is not encodable")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(middleware.WithTunnel(ctx), method, p.Path, body)
	if err != nil {
		return errorReply(http.StatusBadRequest, err.Error())
	}
	// The router matches the decoded path, so check both forms
	if isChannelPath(p.Path) || isChannelPath(req.URL.Path) {
		return errorReply(http.StatusBadRequest, "channels cannot be opened through a channel")
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	req.RemoteAddr = remoteAddr
	req.RequestURI = p.Path

	rw := newResponseBuffer()
	gateway.ServeHTTP(rw, req)
	return rw.reply()
}
