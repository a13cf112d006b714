package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ExecutionEntry records one task firing.
// Keep it compact and schema-stable.
type ExecutionEntry struct {
	At       time.Time
	TaskID   string
	Tool     string
	Status   string // "success" | "error"
	Summary  string
	Error    string
	TookMS   int64
	Disposed string // "renewed" | "deleted"
}
