// Package testutil provides test utilities shared across packages:
//   - Miniredis helpers for queue, cache and election tests (miniredis.go)
//   - A recording ClickHouse fake capturing every statement (recording.go)
//
// None of the helpers require Docker; everything runs in-process.
package testutil
