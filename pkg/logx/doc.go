// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a value-type Logger with fixed fields via With(), and a
// Service that owns the output sinks (console, append-only file, and an
// optional rate-limited alert hook for warn+ events). Loggers created
// from a Service stay live across Apply() calls.
package logx
