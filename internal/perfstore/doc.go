// Package perfstore persists autotune evaluation reports in SQLite so later
// runs can reuse a strategy choice for a similar workload without
// benchmarking again. Store implements both autotune.Recorder and
// autotune.History.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary.
package perfstore
