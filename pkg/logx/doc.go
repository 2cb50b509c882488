// Package logx configures tgrelay's structured logging.
//
// It wraps zerolog in a small value type (logx.Logger) to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, rotated by size through lumberjack
//   - Runtime reconfiguration (Service.Apply) on config reload
package logx
