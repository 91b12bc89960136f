package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ControlBridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/ControlBridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ControlBridge/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Flags override environment
	pflag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	pflag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen address")
	pflag.StringVar(&cfg.Tool.Path, "tool", cfg.Tool.Path, "Path to the tool executable")
	pflag.StringSliceVar(&cfg.Tool.BaseArgs, "tool-arg", cfg.Tool.BaseArgs, "Argument always passed to the tool (repeatable)")
	pflag.BoolVar(&cfg.Tool.PTY, "pty", cfg.Tool.PTY, "Run the tool on a pseudo-terminal")
	pflag.StringVar(&cfg.Update.FeedURL, "feed", cfg.Update.FeedURL, "Release feed URL")
	pflag.StringVar(&cfg.Update.RecordPath, "record", cfg.Update.RecordPath, "Release record path")
	pflag.StringVar(&cfg.Prompt.Mode, "prompt", cfg.Prompt.Mode, "Token confirmation: console, approve or deny")
	pflag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (default info, or debug with --dev)")
	pflag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development mode (console logs, debug level)")
	pflag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)

	srv, err := server.NewServer(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
		if err := srv.Close(); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			srv.Close()
			logger.Fatal("Server error", zap.Error(err))
		}
	}
}
