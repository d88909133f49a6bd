package staging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestStagingManager(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "staging-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	mgr := NewManager(tmpDir)
	runID := "run-123"

	// Test FinalDir
	if mgr.FinalDir() != tmpDir {
		t.Errorf("expected FinalDir %s, got %s", tmpDir, mgr.FinalDir())
	}

	// Test StagingDir
	expectedStaging := filepath.Join(tmpDir, ".staging", runID)
	if mgr.StagingDir(runID) != expectedStaging {
		t.Errorf("expected StagingDir %s, got %s", expectedStaging, mgr.StagingDir(runID))
	}

	// Test PrepareStaging
	if err := mgr.PrepareStaging(runID); err != nil {
		t.Fatalf("PrepareStaging failed: %v", err)
	}

	if _, err := os.Stat(expectedStaging); os.IsNotExist(err) {
		t.Error("staging directory not created")
	}

	// Test WriteToStaging
	data := []byte("date,market\n2025-01-17,wti\n")
	size, err := mgr.WriteToStaging(runID, "roll_pressure_20250117.csv", func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		t.Fatalf("WriteToStaging failed: %v", err)
	}

	if size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), size)
	}

	stagedPath := filepath.Join(expectedStaging, "roll_pressure_20250117.csv")
	content, err := os.ReadFile(stagedPath)
	if err != nil {
		t.Fatalf("failed to read staged file: %v", err)
	}

	if string(content) != string(data) {
		t.Errorf("content mismatch: expected %s, got %s", string(data), string(content))
	}

	// Verify no .tmp file exists
	if _, err := os.Stat(stagedPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after successful write")
	}

	// Test CommitStaging
	committed, err := mgr.CommitStaging(runID)
	if err != nil {
		t.Fatalf("CommitStaging failed: %v", err)
	}

	finalPath := filepath.Join(tmpDir, "roll_pressure_20250117.csv")
	if len(committed) != 1 || committed[0] != finalPath {
		t.Errorf("expected committed [%s], got %v", finalPath, committed)
	}
	if _, err := os.Stat(finalPath); os.IsNotExist(err) {
		t.Error("file not moved to final directory")
	}

	// Test CleanupStaging
	if err := mgr.CleanupStaging(runID); err != nil {
		t.Fatalf("CleanupStaging failed: %v", err)
	}

	if _, err := os.Stat(mgr.StagingDir(runID)); !os.IsNotExist(err) {
		t.Error("staging directory should be removed after cleanup")
	}
}

func TestWriteToStaging_FailureLeavesNothing(t *testing.T) {
	tmpDir := t.TempDir()
	mgr := NewManager(tmpDir)

	_, err := mgr.WriteToStaging("run-1", "broken.jsonl", func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("encoder failed")
	})
	if err == nil {
		t.Fatal("expected error from failing writer")
	}

	entries, err := os.ReadDir(mgr.StagingDir("run-1"))
	if err != nil {
		t.Fatalf("reading staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty staging dir, found %d entries", len(entries))
	}
}
