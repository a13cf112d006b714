package storage

// Package storage provides the optional audit trail of task executions.
//
// It currently supports:
//   - append-only execution records (file JSONL driver)
//   - a SQLite driver behind the "sqlite" build tag
