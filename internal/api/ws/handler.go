package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ControlBridge/internal/domain/runner"
	"github.com/GriffinCanCode/ControlBridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/ControlBridge/internal/shared/id"
)

// Authorizer validates channel tokens.
type Authorizer interface {
	IsValid(value string) bool
	ReportUnauthorized(ctx context.Context, origin string)
}

// ToolRunner starts tool processes.
type ToolRunner interface {
	Start(ctx context.Context, spec runner.Spec) (*runner.Run, error)
}

// Metrics receives channel activity.
type Metrics interface {
	RecordUpgrade(outcome string)
	SessionOpened()
	SessionClosed()
	RecordEnvelope(direction, action string)
	RecordToolLine()
	RecordToolRun(outcome string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordUpgrade(string)                {}
func (nopMetrics) SessionOpened()                      {}
func (nopMetrics) SessionClosed()                      {}
func (nopMetrics) RecordEnvelope(string, string)       {}
func (nopMetrics) RecordToolLine()                     {}
func (nopMetrics) RecordToolRun(string, time.Duration) {}

// Deps are the collaborators behind the multiplexer.
type Deps struct {
	Auth   Authorizer
	Runner ToolRunner
	// Gateway serves tunnelled invokes. It is normally the same engine the
	// channel route is mounted on.
	Gateway http.Handler
	Tool    config.ToolConfig
	Metrics Metrics
	Logger  *zap.Logger
}

// Handler upgrades authorized requests into multiplexed channels
type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[id.SessionID]*session
	closed   bool
}

// NewHandler creates a new channel handler
func NewHandler(deps Deps) *Handler {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{SubprotocolJSON, SubprotocolCBOR},
			// Any page may connect; the token is the capability
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[id.SessionID]*session),
	}
}

// HandleConnection validates the path token and runs the channel until it closes
func (h *Handler) HandleConnection(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if !h.deps.Auth.IsValid(c.Param("token")) {
		h.deps.Logger.Warn("Rejected channel with invalid token",
			zap.String("origin", origin),
			zap.String("remote", c.ClientIP()),
		)
		h.deps.Auth.ReportUnauthorized(c.Request.Context(), origin)
		h.deps.Metrics.RecordUpgrade("unauthorized")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written an error response
		h.deps.Logger.Warn("Channel upgrade failed", zap.Error(err))
		h.deps.Metrics.RecordUpgrade("failed")
		return
	}

	s := newSession(h, conn, origin, c.Request.RemoteAddr)
	if !h.add(s) {
		conn.Close()
		return
	}
	h.deps.Metrics.RecordUpgrade("accepted")
	h.deps.Metrics.SessionOpened()
	s.logger.Info("Channel opened", zap.String("codec", s.codec.Name()))

	s.serve()

	h.remove(s)
	h.deps.Metrics.SessionClosed()
	s.logger.Info("Channel closed")
}

// Count returns the number of open channels.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every open channel and refuses new ones. Running tools are
// left to finish.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.close()
	}
}

func (h *Handler) add(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.id] = s
	return true
}

func (h *Handler) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
}
