// Package logging provides structured logging utilities for gpupv components.
//
// # Overview
//
// This package wraps the standard library slog package with gpupv defaults
// and conventions for consistent logging across the CLI and the daemon. It
// supports environment-based log level configuration, module/version context
// injection, and automatic source location tracking for debug logs.
//
// # Features
//
//   - Structured JSON logging to stderr
//   - Environment-based log level configuration (LOG_LEVEL)
//   - Automatic module and version context
//   - Source location tracking for debug logs
//   - Integration with standard library log package
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("gpupv", version)
//	    slog.Info("configuring vm", "vm", "dev-box", "vramMB", 4096)
//	}
//
// Creating a custom logger:
//
//	logger := logging.NewStructuredLogger("gpupvd", "v1.0.0", "debug")
//	logger.Info("server starting", "port", 8080)
//
// Converting standard library logger (used for http.Server.ErrorLog):
//
//	stdLogger := logging.NewLogLogger(slog.LevelWarn, false)
//
// # Environment Configuration
//
//	LOG_LEVEL=debug gpupv devices
//
// If LOG_LEVEL is not set, defaults to INFO level. An explicit level passed to
// SetDefaultStructuredLoggerWithLevel wins over the environment.
//
// # Output Format
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "adapter added",
//	    "module": "gpupv",
//	    "version": "v1.0.0",
//	    "vm": "dev-box"
//	}
package logging
