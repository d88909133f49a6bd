// Package staging writes run artifacts into a private directory and moves
// them into place only once every artifact of the run has been written.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// WriteFunc renders one artifact.
type WriteFunc func(w io.Writer) error

type Manager struct {
	baseDir     string
	stagingRoot string
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir:     baseDir,
		stagingRoot: filepath.Join(baseDir, ".staging"),
	}
}

func (m *Manager) FinalDir() string {
	return m.baseDir
}

func (m *Manager) StagingRoot() string {
	return m.stagingRoot
}

func (m *Manager) StagingDir(runID string) string {
	return filepath.Join(m.stagingRoot, runID)
}

func (m *Manager) PrepareStaging(runID string) error {
	return os.MkdirAll(m.StagingDir(runID), 0750)
}

// WriteToStaging renders an artifact into the run's staging directory via a
// temp file and an atomic rename. It returns the bytes written.
func (m *Manager) WriteToStaging(runID, name string, write WriteFunc) (int64, error) {
	destPath := filepath.Join(m.StagingDir(runID), name)

	// Create parent directories
	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return 0, fmt.Errorf("creating directories: %w", err)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	cw := &countingWriter{w: f}
	err = write(cw)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("writing %s: %w", name, err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}

	return cw.n, nil
}

// CommitStaging moves every staged file into the final directory and
// returns the final paths, sorted.
func (m *Manager) CommitStaging(runID string) ([]string, error) {
	stagingDir := m.StagingDir(runID)
	var committed []string

	// Walk staging and move files
	err := filepath.Walk(stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(m.baseDir, relPath)
		if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
			return err
		}

		if err := os.Rename(path, destPath); err != nil {
			return err
		}
		committed = append(committed, destPath)
		return nil
	})
	if err != nil {
		return committed, fmt.Errorf("committing staging %s: %w", runID, err)
	}

	sort.Strings(committed)
	return committed, nil
}

func (m *Manager) CleanupStaging(runID string) error {
	return os.RemoveAll(m.StagingDir(runID))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
