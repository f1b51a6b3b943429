// Package logx configures lapsed's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Runtime reconfiguration (level/sinks swap without restarting services)
package logx
