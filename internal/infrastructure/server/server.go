package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gateway "github.com/GriffinCanCode/ControlBridge/internal/api/http"
	"github.com/GriffinCanCode/ControlBridge/internal/api/middleware"
	"github.com/GriffinCanCode/ControlBridge/internal/api/ws"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/confirm"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/runner"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/token"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/update"
	"github.com/GriffinCanCode/ControlBridge/internal/domain/window"
	"github.com/GriffinCanCode/ControlBridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/ControlBridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ControlBridge/internal/infrastructure/monitoring"
)

const shutdownTimeout = 5 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	http      *http.Server
	tokens    *token.Authority
	channels  *ws.Handler
	updates   *update.Coordinator
	confirmer confirm.Confirmer
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// Option customizes a server before its components are built.
type Option func(*options)

type options struct {
	logger    *logging.Logger
	confirmer confirm.Confirmer
	windows   window.Controller
	feed      update.Feed
}

// WithLogger replaces the logger built from configuration.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConfirmer replaces the confirmer selected by the prompt mode.
func WithConfirmer(c confirm.Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithWindows replaces the platform window controller.
func WithWindows(w window.Controller) Option {
	return func(o *options) { o.windows = w }
}

// WithFeed replaces the release feed built from configuration.
func WithFeed(f update.Feed) Option {
	return func(o *options) { o.feed = f }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	}

	logger.Info("Initializing control bridge",
		zap.String("addr", cfg.Addr()),
		zap.String("tool", cfg.Tool.Path),
		zap.String("prompt", cfg.Prompt.Mode),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	confirmer := o.confirmer
	if confirmer == nil {
		confirmer = selectConfirmer(cfg.Prompt, logger)
	}
	tokens := token.NewAuthority(confirmer, logger.Logger,
		token.WithNotifier(token.LogNotifier{Logger: logger.Logger}))

	feed := o.feed
	if feed == nil {
		feed = update.NewGitHubFeed(cfg.Update.FeedURL, cfg.Update.Asset, cfg.Update.FeedRetry, logger.Logger)
	}
	if cfg.Update.FeedURL == "" && o.feed == nil {
		logger.Warn("No release feed configured, update checks will fail")
	}
	updates, err := update.NewCoordinator(
		feed,
		update.NewDownloader(cfg.Update.Timeout, logger.Logger),
		update.NewRecordStore(cfg.Update.RecordPath),
		cfg.Tool.Path,
		logger.Logger,
		update.WithObserver(metrics),
	)
	if err != nil {
		closeConfirmer(confirmer)
		return nil, fmt.Errorf("failed to load release record: %w", err)
	}

	windows := o.windows
	if windows == nil {
		windows = window.New()
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	var tokenLimit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Int("token_per_minute", cfg.RateLimit.TokenPerMinute),
		)
		router.Use(middleware.RateLimit(middleware.PerSecond(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)))
		tokenLimit = middleware.RateLimit(middleware.PerMinute(cfg.RateLimit.TokenPerMinute))
	}

	channels := ws.NewHandler(ws.Deps{
		Auth:    tokens,
		Runner:  runner.New(logger.Logger),
		Gateway: router,
		Tool:    cfg.Tool,
		Metrics: metrics,
		Logger:  logger.Logger,
	})

	handlers := gateway.NewHandlers(gateway.Deps{
		Tokens:       tokens,
		Windows:      windows,
		Updates:      updates,
		MetadataPath: cfg.Tool.MetadataPath,
		Sessions:     channels.Count,
		Metrics:      metrics,
		Logger:       logger.Logger,
	})

	// Register routes
	handlers.Register(router, tokenLimit, middleware.RequireToken(tokens))
	router.GET("/channel/:token", channels.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		http:      &http.Server{Addr: cfg.Addr(), Handler: router, ReadHeaderTimeout: 10 * time.Second},
		tokens:    tokens,
		channels:  channels,
		updates:   updates,
		confirmer: confirmer,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// selectConfirmer maps the prompt mode to a confirmer. Console mode without
// a terminal denies every request rather than hanging them.
func selectConfirmer(cfg config.PromptConfig, logger *logging.Logger) confirm.Confirmer {
	switch cfg.Mode {
	case "approve":
		logger.Warn("Token requests are approved without confirmation")
		return confirm.Static{Approve: true}
	case "deny":
		return confirm.Static{Approve: false}
	}

	if !confirm.Available(os.Stdin) {
		logger.Warn("No terminal attached, token requests will be denied")
		return confirm.Static{Approve: false}
	}
	return confirm.NewConsole(os.Stdin, os.Stdout, cfg.Timeout, logger.Logger)
}

func closeConfirmer(c confirm.Confirmer) {
	if closer, ok := c.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server on the configured address
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server. Open channels are closed first;
// tool processes they started are left to finish.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.channels.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}

	s.updates.Close()
	closeConfirmer(s.confirmer)

	// Sync logger before exit
	s.logger.Sync()

	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
