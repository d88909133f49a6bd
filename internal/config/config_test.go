package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to load, got error: %v", err)
	}

	if cfg.CFTC.BaseURL != "https://publicreporting.cftc.gov" {
		t.Errorf("expected default base URL, got '%s'", cfg.CFTC.BaseURL)
	}
	if cfg.CFTC.Dataset != "72hh-3qpy" {
		t.Errorf("expected default dataset, got '%s'", cfg.CFTC.Dataset)
	}
	if len(cfg.Markets) != 2 {
		t.Errorf("expected 2 default markets, got %v", cfg.Markets)
	}

	p := cfg.Params()
	if p != rollpressure.DefaultParams() {
		t.Errorf("expected default params, got %+v", p)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rp.yaml")
	content := `
markets: [wti]
calculation:
  lookback_percentile: 100
  time_weight_alpha: 0.5
alert:
  days_threshold: 5
server:
  reload_interval: 10m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Markets) != 1 || cfg.Markets[0] != "wti" {
		t.Errorf("expected [wti], got %v", cfg.Markets)
	}
	if cfg.Calculation.LookbackPercentile != 100 {
		t.Errorf("expected lookback 100, got %d", cfg.Calculation.LookbackPercentile)
	}
	if cfg.Alert.DaysThreshold != 5 {
		t.Errorf("expected days threshold 5, got %d", cfg.Alert.DaysThreshold)
	}
	if cfg.Alert.PosScoreThreshold != 0.80 {
		t.Errorf("expected default pos threshold, got %v", cfg.Alert.PosScoreThreshold)
	}
	d, err := cfg.Server.ReloadEvery()
	if err != nil || d != 10*time.Minute {
		t.Errorf("expected 10m reload interval, got %v (%v)", d, err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ROLLPRESSURE_CALCULATION_TIME_WEIGHT_ALPHA", "2.5")
	t.Setenv("CFTC_APP_TOKEN", "token-123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Calculation.TimeWeightAlpha != 2.5 {
		t.Errorf("expected alpha 2.5, got %v", cfg.Calculation.TimeWeightAlpha)
	}
	if cfg.CFTC.AppToken != "token-123" {
		t.Errorf("expected app token from env, got '%s'", cfg.CFTC.AppToken)
	}
}

func TestLoadInvalidAlpha(t *testing.T) {
	t.Setenv("ROLLPRESSURE_CALCULATION_TIME_WEIGHT_ALPHA", "-1")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for alpha = -1")
	}
	if !errors.Is(err, rollpressure.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams in chain, got: %v", err)
	}
	if !strings.Contains(err.Error(), "time_weight_alpha") {
		t.Errorf("error should mention time_weight_alpha, got: %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}
