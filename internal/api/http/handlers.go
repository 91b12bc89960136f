package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ControlBridge/internal/domain/metadata"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/token"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/update"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/window"
)

// Service names this bridge in the root response.
const Service = "control-bridge"

// Version is the bridge version, overridden at link time.
var Version = "0.1.0"

// DeniedMessage is returned when the user refuses a token request.
const DeniedMessage = "Operation cancelled by the user"

// Fixed fields existing clients read from a token grant.
const (
	grantHWND              = 114514
	grantSwapEffectUpgrade = false
	grantWinver            = 11
)

// TokenIssuer mints tokens after user approval.
type TokenIssuer interface {
	RequestToken(ctx context.Context, origin string) (token.Token, error)
	Len() int
}

// Updater drives the update cycle.
type Updater interface {
	State() update.Snapshot
	Start() error
}

// Recorder receives token outcomes.
type Recorder interface {
	RecordToken(outcome string)
}

// Deps are the collaborators behind the gateway.
type Deps struct {
	Tokens       TokenIssuer
	Windows      window.Controller
	Updates      Updater
	MetadataPath string
	// Sessions reports the number of open channels.
	Sessions func() int
	Metrics  Recorder
	Logger   *zap.Logger
}

// Handlers contains the gateway's HTTP handlers
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Sessions == nil {
		deps.Sessions = func() int { return 0 }
	}
	return &Handlers{deps: deps}
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": Service,
		"version": Version,
	})
}

// Health reports liveness and a summary of shared state
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": h.deps.Sessions(),
		"tokens":   h.deps.Tokens.Len(),
		"update":   h.deps.Updates.State().State,
	})
}

// RequestToken asks the local user to approve the calling origin
func (h *Handlers) RequestToken(c *gin.Context) {
	origin := c.GetHeader("Origin")

	tok, err := h.deps.Tokens.RequestToken(c.Request.Context(), origin)
	if err != nil {
		if !errors.Is(err, token.ErrDenied) {
			h.deps.Logger.Error("Token request failed", zap.Error(err))
		}
		h.recordToken("denied")
		c.JSON(http.StatusUnauthorized, gin.H{"message": DeniedMessage})
		return
	}

	h.recordToken("issued")
	c.JSON(http.StatusAccepted, gin.H{
		"token":             tok.Value,
		"origin":            tok.Origin,
		"hwnd":              grantHWND,
		"swapEffectUpgrade": grantSwapEffectUpgrade,
		"winver":            grantWinver,
	})
}

func (h *Handlers) recordToken(outcome string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.RecordToken(outcome)
	}
}

// ListWindows lists activatable top-level windows
func (h *Handlers) ListWindows(c *gin.Context) {
	windows, err := h.deps.Windows.List(c.Request.Context())
	if err != nil {
		h.deps.Logger.Warn("Failed to list windows", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, windows)
}

// ActivateWindow brings a window to the foreground
func (h *Handlers) ActivateWindow(c *gin.Context) {
	handle, err := strconv.ParseUint(c.Param("handle"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid window handle"})
		return
	}

	err = h.deps.Windows.Activate(c.Request.Context(), handle)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{})
	case errors.Is(err, window.ErrUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"message": err.Error()})
	case errors.Is(err, window.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	default:
		h.deps.Logger.Warn("Failed to activate window", zap.Uint64("handle", handle), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
	}
}

type updateResponse struct {
	Msg        string `json:"msg"`
	Downloaded *int64 `json:"downloaded,omitempty"`
	Total      *int64 `json:"total,omitempty"`
	Version    string `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
}

// UpdateState reports the update cycle. 202 while a cycle is running
func (h *Handlers) UpdateState(c *gin.Context) {
	snap := h.deps.Updates.State()

	resp := updateResponse{
		Msg:     string(snap.State),
		Version: snap.Version,
		Error:   snap.Err,
	}
	if snap.State == update.StateDownloading {
		resp.Downloaded = &snap.Downloaded
		resp.Total = &snap.Total
	}

	status := http.StatusOK
	if snap.State.Busy() {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// StartUpdate begins an update cycle unless one is running
func (h *Handlers) StartUpdate(c *gin.Context) {
	if err := h.deps.Updates.Start(); err != nil {
		if errors.Is(err, update.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"msg": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "update started"})
}

// ToolMetadata serves the tool's metadata file, or {} when unavailable
func (h *Handlers) ToolMetadata(c *gin.Context) {
	data, err := metadata.Load(h.deps.MetadataPath)
	if err != nil {
		if !errors.Is(err, metadata.ErrNotFound) {
			h.deps.Logger.Warn("Failed to read tool metadata", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, data)
}

// Register mounts the gateway routes on r. Every route except the root,
// health and token request sits behind requireToken when it is set.
func (h *Handlers) Register(r gin.IRouter, tokenLimit, requireToken gin.HandlerFunc) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	if tokenLimit != nil {
		r.POST("/token", tokenLimit, h.RequestToken)
	} else {
		r.POST("/token", h.RequestToken)
	}

	private := r.Group("")
	if requireToken != nil {
		private.Use(requireToken)
	}

	private.GET("/windows", h.ListWindows)
	private.PATCH("/windows/:handle", h.ActivateWindow)

	private.GET("/update", h.UpdateState)
	private.POST("/update", h.StartUpdate)

	private.GET("/tool-metadata", h.ToolMetadata)
}
