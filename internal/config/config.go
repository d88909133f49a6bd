package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

type Config struct {
	Markets     []string          `mapstructure:"markets"`
	Calculation CalculationConfig `mapstructure:"calculation"`
	Alert       AlertConfig       `mapstructure:"alert"`
	CFTC        CFTCConfig        `mapstructure:"cftc"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Output      OutputConfig      `mapstructure:"output"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type CalculationConfig struct {
	LookbackPercentile int     `mapstructure:"lookback_percentile"`
	TimeWeightAlpha    float64 `mapstructure:"time_weight_alpha"`
	MinValue           float64 `mapstructure:"min_value"`
	MaxValue           float64 `mapstructure:"max_value"`
	MinOpenInterest    float64 `mapstructure:"min_open_interest"`
}

type AlertConfig struct {
	DaysThreshold     int     `mapstructure:"days_threshold"`
	PosScoreThreshold float64 `mapstructure:"pos_score_threshold"`
}

type CFTCConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Dataset         string `mapstructure:"dataset"`
	AppToken        string `mapstructure:"app_token"`
	TimeoutSec      int    `mapstructure:"timeout_sec"`
	RetryCount      int    `mapstructure:"retry_count"`
	RetryDelay      int    `mapstructure:"retry_delay_sec"`
	RatePerSecond   int    `mapstructure:"rate_per_second"`
	CacheTTLHours   int    `mapstructure:"cache_ttl_hours"`
	BreakerFailures int    `mapstructure:"breaker_failures"`
	BreakerTimeout  int    `mapstructure:"breaker_timeout_sec"`
}

type IngestConfig struct {
	Workers int `mapstructure:"workers"`
	Days    int `mapstructure:"days"`
}

type PathsConfig struct {
	DataRaw       string `mapstructure:"data_raw"`
	DataProcessed string `mapstructure:"data_processed"`
	CalendarFile  string `mapstructure:"calendar_file"`
	StateFile     string `mapstructure:"state_file"`
}

type OutputConfig struct {
	CSV                bool   `mapstructure:"csv"`
	JSONL              bool   `mapstructure:"jsonl"`
	Parquet            bool   `mapstructure:"parquet"`
	ParquetCompression string `mapstructure:"parquet_compression"`
}

type StorageConfig struct {
	S3       S3Config       `mapstructure:"s3"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type PostgresConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DSN        string `mapstructure:"dsn"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// EnvPrefix prefixes every environment override, e.g. ROLLPRESSURE_CFTC_APP_TOKEN.
const EnvPrefix = "ROLLPRESSURE"

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Secrets have no default, so AutomaticEnv never reaches them via Unmarshal.
	_ = v.BindEnv("cftc.app_token", EnvPrefix+"_CFTC_APP_TOKEN", "CFTC_APP_TOKEN")
	_ = v.BindEnv("storage.postgres.dsn", EnvPrefix+"_STORAGE_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("storage.s3.access_key_id", EnvPrefix+"_STORAGE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.s3.secret_access_key", EnvPrefix+"_STORAGE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := rollpressure.DefaultParams()

	v.SetDefault("markets", []string{"wti", "brent"})

	v.SetDefault("calculation.lookback_percentile", d.LookbackPercentile)
	v.SetDefault("calculation.time_weight_alpha", d.TimeWeightAlpha)
	v.SetDefault("calculation.min_value", d.MinValue)
	v.SetDefault("calculation.max_value", d.MaxValue)
	v.SetDefault("calculation.min_open_interest", d.MinOpenInterest)
	v.SetDefault("alert.days_threshold", d.DaysThreshold)
	v.SetDefault("alert.pos_score_threshold", d.PosScoreThreshold)

	v.SetDefault("cftc.base_url", "https://publicreporting.cftc.gov")
	v.SetDefault("cftc.dataset", "72hh-3qpy")
	v.SetDefault("cftc.timeout_sec", 60)
	v.SetDefault("cftc.retry_count", 3)
	v.SetDefault("cftc.retry_delay_sec", 2)
	v.SetDefault("cftc.rate_per_second", 2)
	v.SetDefault("cftc.cache_ttl_hours", 24)
	v.SetDefault("cftc.breaker_failures", 5)
	v.SetDefault("cftc.breaker_timeout_sec", 60)

	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.days", 730)

	v.SetDefault("paths.data_raw", "data/raw")
	v.SetDefault("paths.data_processed", "data/processed")
	v.SetDefault("paths.calendar_file", "data/expiry_calendar.csv")
	v.SetDefault("paths.state_file", "data/.daemon_state")

	v.SetDefault("output.csv", true)
	v.SetDefault("output.jsonl", true)
	v.SetDefault("output.parquet", true)
	v.SetDefault("output.parquet_compression", "snappy")

	v.SetDefault("storage.s3.enabled", false)
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "roll-pressure")
	v.SetDefault("storage.postgres.enabled", false)
	v.SetDefault("storage.postgres.timeout_sec", 10)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.reload_interval", "0s")
	v.SetDefault("server.ws_enabled", true)

	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
}

// Params builds the engine parameters from the calculation and alert sections.
func (c *Config) Params() rollpressure.Params {
	return rollpressure.Params{
		LookbackPercentile: c.Calculation.LookbackPercentile,
		TimeWeightAlpha:    c.Calculation.TimeWeightAlpha,
		MinValue:           c.Calculation.MinValue,
		MaxValue:           c.Calculation.MaxValue,
		MinOpenInterest:    c.Calculation.MinOpenInterest,
		DaysThreshold:      c.Alert.DaysThreshold,
		PosScoreThreshold:  c.Alert.PosScoreThreshold,
	}
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateMarkets(errs, c.Markets)

	if err := c.Params().Validate(); err != nil {
		var pe *rollpressure.ParamsError
		if errors.As(err, &pe) {
			errs.Params = pe
		}
	}

	if c.Ingest.Workers < 1 {
		errs.add("ingest.workers must be >= 1")
	}
	if c.Ingest.Days < 1 {
		errs.add("ingest.days must be >= 1")
	}
	if c.CFTC.RatePerSecond < 1 {
		errs.add("cftc.rate_per_second must be >= 1")
	}
	if c.CFTC.BaseURL == "" {
		errs.add("cftc.base_url is required")
	}
	if !validCompression[strings.ToLower(c.Output.ParquetCompression)] {
		errs.add(fmt.Sprintf("output.parquet_compression %q must be one of snappy, gzip, none", c.Output.ParquetCompression))
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		errs.add("storage.s3.bucket is required when s3 is enabled")
	}
	if c.Storage.Postgres.Enabled && c.Storage.Postgres.DSN == "" {
		errs.add("storage.postgres.dsn is required when postgres is enabled (set DATABASE_URL)")
	}
	if _, err := c.Server.ReloadEvery(); err != nil {
		errs.add(err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

var validCompression = map[string]bool{"snappy": true, "gzip": true, "none": true, "": true}
