// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every bridge component receives a *zap.Logger handle from the server
// wiring and adds its own fields (session, run, origin) rather than
// reaching for a global logger.
//
// Example Usage:
//
//	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	logger.Info("Server starting", zap.String("addr", cfg.Addr()))
//	logger.Error("Release check failed", zap.Error(err))
package logging
