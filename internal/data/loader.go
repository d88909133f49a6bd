package data

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/export"
)

var ErrNotFound = errors.New("data not found")

// LoadFile reads a processed CSV into a new snapshot.
func LoadFile(path, runID string, logger *zap.Logger) (*Snapshot, error) {
	rows, err := export.ReadCSVFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if runID == "" {
		runID = filepath.Base(path)
	}

	logger.Info("loaded snapshot",
		zap.String("path", path),
		zap.String("runID", runID),
		zap.Int("rows", len(rows)),
	)

	return NewSnapshot(runID, path, rows, time.Now()), nil
}

// LoadLatest loads the most recent processed CSV in dir.
func LoadLatest(dir string, logger *zap.Logger) (*Snapshot, error) {
	path, _, err := export.LatestProcessed(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return LoadFile(path, "", logger)
}
