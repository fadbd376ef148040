package mcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readAuditEntries(t *testing.T, dir string) []AuditEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parsing audit entry %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditLogger_NilSafety(t *testing.T) {
	t.Run("nil logger Log is no-op", func(t *testing.T) {
		var logger *AuditLogger
		logger.Log(AuditEntry{Tool: "test"})
	})

	t.Run("nil logger Close is no-op", func(t *testing.T) {
		var logger *AuditLogger
		if err := logger.Close(); err != nil {
			t.Errorf("Close() on nil logger returned error: %v", err)
		}
	})
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	now := time.Now()
	logger.Log(AuditEntry{
		Timestamp:  now,
		Tool:       "dtsm_simulate",
		DurationMs: 42,
		Status:     "success",
		Params:     map[string]string{"save": "true"},
	})

	entries := readAuditEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Tool != "dtsm_simulate" {
		t.Errorf("tool = %q, want dtsm_simulate", entry.Tool)
	}
	if entry.DurationMs != 42 {
		t.Errorf("duration_ms = %d, want 42", entry.DurationMs)
	}
	if entry.Params["save"] != "true" {
		t.Errorf("params = %v", entry.Params)
	}
	if !entry.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", entry.Timestamp, now)
	}
}

func TestAuditLogger_ErrorEntry(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	defer logger.Close()

	logger.Log(AuditEntry{Tool: "dtsm_density", Status: "error", Error: "run not found"})

	entries := readAuditEntries(t, dir)
	if len(entries) != 1 || entries[0].Status != "error" || entries[0].Error != "run not found" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	logger.Log(AuditEntry{Tool: "test"})

	info, err := os.Stat(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	const goroutines = 10
	const entriesPerGoroutine = 5

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < entriesPerGoroutine; i++ {
				logger.Log(AuditEntry{Tool: "dtsm_runs", Status: "success"})
			}
		}()
	}
	wg.Wait()

	if got := len(readAuditEntries(t, dir)); got != goroutines*entriesPerGoroutine {
		t.Errorf("got %d entries, want %d", got, goroutines*entriesPerGoroutine)
	}
}

func TestAuditLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	logger.Log(AuditEntry{Tool: "late"})
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestAuditLogger_BadPath(t *testing.T) {
	blockPath := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blockPath, []byte("file"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if logger := NewAuditLogger(blockPath); logger != nil {
		logger.Close()
		t.Error("expected nil logger when the directory cannot be created")
	}
}

func TestSanitizeToolParams(t *testing.T) {
	t.Run("safe values are included", func(t *testing.T) {
		result := sanitizeToolParams(map[string]interface{}{
			"format": "csv",
			"save":   true,
			"limit":  5,
		})
		if result["format"] != "csv" {
			t.Errorf("format = %q, want csv", result["format"])
		}
		if result["save"] != "true" {
			t.Errorf("save = %q, want true", result["save"])
		}
		if result["limit"] != "5" {
			t.Errorf("limit = %q, want 5", result["limit"])
		}
		if result["_param_count"] != "3" {
			t.Errorf("_param_count = %q, want 3", result["_param_count"])
		}
	})

	t.Run("spec is redacted", func(t *testing.T) {
		result := sanitizeToolParams(map[string]interface{}{
			"spec": "name: private\nxmin: -1\n",
		})
		if result["spec"] != "(set)" {
			t.Errorf("spec = %q, want (set)", result["spec"])
		}
	})

	t.Run("unknown params are excluded", func(t *testing.T) {
		result := sanitizeToolParams(map[string]interface{}{
			"malicious_param": "should not appear",
		})
		if _, ok := result["malicious_param"]; ok {
			t.Error("unknown param should not be included")
		}
		if result["_param_count"] != "1" {
			t.Errorf("_param_count = %q, want 1", result["_param_count"])
		}
	})

	t.Run("nil params returns nil", func(t *testing.T) {
		if result := sanitizeToolParams(nil); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

func TestAuditTool(t *testing.T) {
	server, dir := setupTestServer(t)

	start := time.Now()
	time.Sleep(2 * time.Millisecond)
	server.auditTool("dtsm_test", start, nil, map[string]string{"format": "text"})
	server.auditTool("dtsm_test", start, errors.New("boom"), nil)

	entries := readAuditEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Status != "success" || entries[0].DurationMs < 1 {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Errorf("second entry = %+v", entries[1])
	}
}
