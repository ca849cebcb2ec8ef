// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments (development vs production)
// and integrates with the Fiber web framework.
//
// # Context Awareness
//
// The WithRayID helper extracts the ray id assigned by the rayid middleware from a Fiber context
// and attaches it to the log entry, so that all logs of one request can be correlated. Reconciliation
// runs attach their run_id the same way through zap's With.
//
// # Configuration
//
//   - Level: debug, info, warn, error (debug switches to the development config)
//   - Format: json or console
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Server started")
//
//	// In a request handler:
//	l := logger.WithRayID(log, c)
//	l.Error("Handler failed", zap.Error(err))
package logger
