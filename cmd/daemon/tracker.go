package main

import (
	"os"
	"path/filepath"
	"strings"
)

// RunTracker persists the date of the last successful pipeline run.
type RunTracker struct {
	stateFile string
}

func NewRunTracker(stateFile string) *RunTracker {
	return &RunTracker{stateFile: stateFile}
}

// LastRunDate returns "" when no run has been recorded.
func (t *RunTracker) LastRunDate() string {
	data, err := os.ReadFile(t.stateFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (t *RunTracker) SetLastRunDate(date string) error {
	if err := os.MkdirAll(filepath.Dir(t.stateFile), 0750); err != nil {
		return err
	}
	return os.WriteFile(t.stateFile, []byte(date+"\n"), 0600)
}

func (t *RunTracker) AlreadyRan(date string) bool {
	return t.LastRunDate() == date
}
