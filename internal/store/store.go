// Package store is the durable task store: a directory holding one JSON
// file per task record. The store is shared with external writers (taskctl
// or anything else that drops files in the directory); there is no locking
// protocol, so writes go through a temp file + rename and readers treat a
// transient parse failure as "skip, re-check on the next notification".
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

const recordExt = ".json"

type Store struct {
	dir string
	log logx.Logger
}

func New(dir string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) Dir() string { return s.dir }

// EnsureDir creates the store directory if it does not exist. An empty
// store is a normal, non-error state.
func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// IsRecordPath reports whether a path names a task record file (by
// extension; content is authoritative and checked at Load time).
func IsRecordPath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), recordExt)
}

// PathFor returns the conventional file path for a task id. The convention
// is stem == taskId, but the id inside the file stays authoritative.
func (s *Store) PathFor(taskID string) string {
	return filepath.Join(s.dir, taskID+recordExt)
}

// List returns the paths of all record files currently in the store,
// sorted by name.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list task store: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsRecordPath(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads and validates the record at path.
func (s *Store) Load(path string) (*task.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := task.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// Exists reports whether the file at path is currently present.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Save writes the record to path atomically (temp file in the same
// directory, then rename) so concurrent readers never observe a partial
// record.
func (s *Store) Save(path string, rec *task.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	b, err := rec.Encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Delete removes the record file at path. A file that is already gone is
// not an error.
func (s *Store) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
