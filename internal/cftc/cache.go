package cftc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// CachedClient stores raw responses on disk as zstd-compressed JSON, one file
// per market and date range, and serves them until they are older than ttl.
type CachedClient struct {
	next    Client
	dir     string
	ttl     time.Duration
	force   bool
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *zap.Logger
}

// NewCachedClient wraps next. With force set, the cache is written but never read.
func NewCachedClient(next Client, dir string, ttl time.Duration, force bool, logger *zap.Logger) (*CachedClient, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &CachedClient{
		next:    next,
		dir:     dir,
		ttl:     ttl,
		force:   force,
		encoder: enc,
		decoder: dec,
		logger:  logger,
	}, nil
}

type forceKey struct{}

// WithForceRefresh marks ctx so a CachedClient skips cached reads for
// requests made with it.
func WithForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, true)
}

// IsForceRefresh reports whether ctx carries WithForceRefresh.
func IsForceRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(forceKey{}).(bool)
	return v
}

// Path returns the cache file for a request.
func (c *CachedClient) Path(mkt string, start, end time.Time) string {
	name := fmt.Sprintf("cftc_%s_%s_%s.json.zst", mkt, start.Format("20060102"), end.Format("20060102"))
	return filepath.Join(c.dir, name)
}

func (c *CachedClient) FetchReports(ctx context.Context, mkt string, start, end time.Time) ([]Report, error) {
	path := c.Path(mkt, start, end)

	if !c.force && !IsForceRefresh(ctx) {
		if reports, ok := c.read(path); ok {
			c.logger.Debug("cache hit", zap.String("market", mkt), zap.String("path", path))
			return reports, nil
		}
	}

	reports, err := c.next.FetchReports(ctx, mkt, start, end)
	if err != nil {
		return nil, err
	}

	if err := c.write(path, reports); err != nil {
		c.logger.Warn("failed to write cache", zap.String("path", path), zap.Error(err))
	}
	return reports, nil
}

func (c *CachedClient) read(path string) ([]Report, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	raw, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		c.logger.Warn("corrupt cache file", zap.String("path", path), zap.Error(err))
		return nil, false
	}

	var reports []Report
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil, false
	}
	return reports, true
}

func (c *CachedClient) write(path string, reports []Report) error {
	raw, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("encoding reports: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, c.encoder.EncodeAll(raw, nil), 0644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

// Close releases encoder resources.
func (c *CachedClient) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
