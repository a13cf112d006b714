package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "taskd/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one append-only JSON
// Lines file of execution records.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
}

type executionRecord struct {
	At       string `json:"at"`
	TaskID   string `json:"task_id"`
	Tool     string `json:"tool"`
	Status   string `json:"status"`
	Summary  string `json:"summary,omitempty"`
	Error    string `json:"error,omitempty"`
	TookMS   int64  `json:"took_ms"`
	Disposed string `json:"disposed,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, file: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendExecution(ctx context.Context, e ExecutionEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	rec := executionRecord{
		At:       e.At.Format(time.RFC3339Nano),
		TaskID:   e.TaskID,
		Tool:     e.Tool,
		Status:   e.Status,
		Summary:  e.Summary,
		Error:    e.Error,
		TookMS:   e.TookMS,
		Disposed: e.Disposed,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("execution log closed")
	}
	return json.NewEncoder(s.file).Encode(rec)
}
