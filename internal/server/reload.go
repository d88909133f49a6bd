package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/data"
	"github.com/dgnsrekt/roll-pressure/internal/export"
)

var ErrReloadInProgress = errors.New("reload already in progress")

// Broadcaster receives every snapshot that replaces the current one.
type Broadcaster interface {
	BroadcastSnapshot(snap *data.Snapshot)
}

// BroadcastFunc adapts a function to Broadcaster.
type BroadcastFunc func(snap *data.Snapshot)

func (f BroadcastFunc) BroadcastSnapshot(snap *data.Snapshot) { f(snap) }

// Broadcasters fans a snapshot out in order.
type Broadcasters []Broadcaster

func (bs Broadcasters) BroadcastSnapshot(snap *data.Snapshot) {
	for _, b := range bs {
		b.BroadcastSnapshot(snap)
	}
}

// ReloadManager coordinates reloading the processed output into the store.
type ReloadManager struct {
	store       *data.Store
	dir         string
	broadcaster Broadcaster
	logger      *zap.Logger

	isReloading atomic.Bool
	reloadMu    sync.Mutex // prevents concurrent reloads

	stateMu    sync.Mutex
	lastSource string
	lastMod    time.Time
}

// NewReloadManager creates a ReloadManager reading from the processed
// directory dir. broadcaster may be nil.
func NewReloadManager(store *data.Store, dir string, broadcaster Broadcaster, logger *zap.Logger) *ReloadManager {
	return &ReloadManager{
		store:       store,
		dir:         dir,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// IsReloading returns true if a reload is currently in progress.
func (rm *ReloadManager) IsReloading() bool {
	return rm.isReloading.Load()
}

// ReloadResult contains the result of a successful reload operation.
type ReloadResult struct {
	PreviousRunID string    `json:"previous_run_id"`
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	LoadedAt      time.Time `json:"loaded_at"`
	Rows          int       `json:"rows"`
}

// Reload loads the latest processed CSV and swaps it into the store.
// On error the current snapshot stays in place.
func (rm *ReloadManager) Reload(ctx context.Context) (*ReloadResult, error) {
	if !rm.reloadMu.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer rm.reloadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rm.isReloading.Store(true)
	defer rm.isReloading.Store(false)

	snap, err := data.LoadLatest(rm.dir, rm.logger)
	if err != nil {
		return nil, err
	}

	previousRunID := ""
	if old := rm.store.Swap(snap); old != nil {
		previousRunID = old.RunID
	}
	rm.remember(snap.Source)

	if rm.broadcaster != nil {
		rm.broadcaster.BroadcastSnapshot(snap)
	}

	rm.logger.Info("reload complete",
		zap.String("previousRunID", previousRunID),
		zap.String("runID", snap.RunID),
		zap.String("source", snap.Source),
		zap.Int("rows", len(snap.Rows)),
	)

	return &ReloadResult{
		PreviousRunID: previousRunID,
		RunID:         snap.RunID,
		Source:        snap.Source,
		LoadedAt:      snap.LoadedAt,
		Rows:          len(snap.Rows),
	}, nil
}

// Changed reports whether the latest processed file differs from the one
// last loaded, by path or modification time.
func (rm *ReloadManager) Changed() (bool, error) {
	path, _, err := export.LatestProcessed(rm.dir)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	rm.stateMu.Lock()
	defer rm.stateMu.Unlock()
	return path != rm.lastSource || !info.ModTime().Equal(rm.lastMod), nil
}

// Run reloads every interval when the processed output changed.
// Returns when context is cancelled.
func (rm *ReloadManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rm.logger.Info("periodic reload started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			rm.logger.Info("periodic reload stopping")
			return
		case <-ticker.C:
			changed, err := rm.Changed()
			if err != nil {
				rm.logger.Debug("reload check failed", zap.Error(err))
				continue
			}
			if !changed {
				continue
			}
			if _, err := rm.Reload(ctx); err != nil && !errors.Is(err, ErrReloadInProgress) {
				rm.logger.Warn("periodic reload failed", zap.Error(err))
			}
		}
	}
}

func (rm *ReloadManager) remember(path string) {
	var mod time.Time
	if info, err := os.Stat(path); err == nil {
		mod = info.ModTime()
	}
	rm.stateMu.Lock()
	rm.lastSource = path
	rm.lastMod = mod
	rm.stateMu.Unlock()
}
