// Package log provides structured protocol capture for the middleware.
//
// This package defines the Logger interface and Event types for recording
// what crossed each layer of the server (transport, wire, module). It is
// separate from operational logging (slog): protocol capture produces a
// machine-readable trace for debugging drivers and clients.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/fireplace/server.flog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Transport: raw message bytes (FrameEvent)
//   - Wire: decoded requests, responses and forwarded items (MessageEvent)
//   - Module: server, worker, module and unit state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Log files are a stream of CBOR encoded events with the .flog extension.
// The fireplace-log tool views, filters, summarizes and exports them.
package log
