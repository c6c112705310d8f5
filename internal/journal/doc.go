// Package journal provides a minimal persistence layer for run history.
//
// It currently supports:
//   - Append-only task run records (one per scheduler fire)
//   - Recent-run queries for health reporting
//   - Retention-based pruning
package journal
