// Package log provides structured protocol logging for Coop.
//
// This package defines the Logger interface and Event types for
// capturing protocol-level events at multiple layers (transport
// frames, connection state changes, session membership). It is
// separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging a session.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("session.clog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files use CBOR encoding with .clog extension. The coop-log CLI
// tool provides viewing, filtering, and export capabilities.
package log
