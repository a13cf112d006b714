// Package logx provides structured logging for taskd.
//
// It wraps zerolog behind a small Logger type so components can carry
// fixed fields (With) and the root sinks can be swapped at runtime
// (Service.Apply) without invalidating existing loggers.
package logx
