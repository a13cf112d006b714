package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "taskd/pkg/logx"
)

func TestFileStoreAppendsExecutions(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit", "executions.jsonl")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entries := []ExecutionEntry{
		{At: at, TaskID: "t1", Tool: "Echo", Status: "success", Summary: "hi", TookMS: 12, Disposed: "deleted"},
		{At: at.Add(time.Minute), TaskID: "t2", Tool: "run", Status: "error", Error: "boom", Disposed: "renewed"},
	}
	for _, e := range entries {
		if err := st.AppendExecution(context.Background(), e); err != nil {
			t.Fatalf("AppendExecution: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []executionRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r executionRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		lines = append(lines, r)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].TaskID != "t1" || lines[0].Status != "success" {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].Error != "boom" || lines[1].Disposed != "renewed" {
		t.Fatalf("unexpected second line: %+v", lines[1])
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("expected disabled store, got %v/%v", st, err)
	}
	if _, err := Open(Config{Driver: "bolt", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
