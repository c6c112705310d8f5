// Package logx is a small structured-logging layer over zerolog.
//
// It provides:
//   - a Logger value type with functional Field helpers (String, Int, Err, ...)
//   - a Service that owns sink configuration (console/file, level) and can be
//     re-applied at runtime without invalidating existing Logger values
//   - a safe zero value: a zero Logger never writes and never panics
package logx
