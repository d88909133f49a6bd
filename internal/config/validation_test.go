package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

func validConfig() *Config {
	d := rollpressure.DefaultParams()
	return &Config{
		Markets: []string{"wti", "brent"},
		Calculation: CalculationConfig{
			LookbackPercentile: d.LookbackPercentile,
			TimeWeightAlpha:    d.TimeWeightAlpha,
			MinValue:           d.MinValue,
			MaxValue:           d.MaxValue,
			MinOpenInterest:    d.MinOpenInterest,
		},
		Alert:  AlertConfig{DaysThreshold: d.DaysThreshold, PosScoreThreshold: d.PosScoreThreshold},
		CFTC:   CFTCConfig{BaseURL: "https://example.test", RatePerSecond: 1},
		Ingest: IngestConfig{Workers: 1, Days: 30},
		Output: OutputConfig{ParquetCompression: "snappy"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected no error for valid config, got: %v", err)
	}
}

func TestValidate_InvalidMarket(t *testing.T) {
	cfg := validConfig()
	cfg.Markets = []string{"wti", "copper"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid market")
	}
	if !strings.Contains(err.Error(), "copper") {
		t.Errorf("error should mention invalid market, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Valid markets: brent, wti") {
		t.Errorf("error should list valid markets, got: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Markets = []string{"gold"}
	cfg.Calculation.MinValue = 2
	cfg.Ingest.Workers = 0

	err := cfg.Validate()
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verrs.InvalidMarkets) != 1 {
		t.Errorf("expected 1 invalid market, got %d", len(verrs.InvalidMarkets))
	}
	if verrs.Params == nil {
		t.Error("expected params error")
	}
	if len(verrs.Problems) != 1 {
		t.Errorf("expected 1 other problem, got %v", verrs.Problems)
	}
	if !errors.Is(err, rollpressure.ErrInvalidParams) {
		t.Error("expected ErrInvalidParams in chain")
	}
}

func TestValidate_StorageRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.S3.Enabled = true
	cfg.Storage.Postgres.Enabled = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for enabled storage without settings")
	}
	if !strings.Contains(err.Error(), "storage.s3.bucket") {
		t.Errorf("error should mention bucket, got: %v", err)
	}
	if !strings.Contains(err.Error(), "storage.postgres.dsn") {
		t.Errorf("error should mention dsn, got: %v", err)
	}
	if errors.Is(err, rollpressure.ErrInvalidParams) {
		t.Error("storage errors should not match ErrInvalidParams")
	}
}

func TestValidate_BadCompressionAndInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Output.ParquetCompression = "lz77"
	cfg.Server.ReloadInterval = "soon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parquet_compression") {
		t.Errorf("error should mention compression, got: %v", err)
	}
	if !strings.Contains(err.Error(), "reload_interval") {
		t.Errorf("error should mention reload interval, got: %v", err)
	}
}

func TestValidateMarkets(t *testing.T) {
	if err := ValidateMarkets([]string{"WTI"}); err != nil {
		t.Errorf("expected case-insensitive match, got: %v", err)
	}
	if err := ValidateMarkets(nil); err == nil {
		t.Error("expected error for empty market list")
	}
}
