package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"brentcast/internal/forecast"
	"brentcast/pkg/model"
)

// Config represents the application configuration
type Config struct {
	Series  SeriesConfig  `yaml:"series"`
	API     APIConfig     `yaml:"api"`
	Model   ModelConfig   `yaml:"model"`
	Archive ArchiveConfig `yaml:"archive"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Report  ReportConfig  `yaml:"report"`
}

// SeriesConfig selects the instrument and how much history to pull
type SeriesConfig struct {
	Symbol       string `yaml:"symbol"`        // Yahoo ticker
	HistoryStart string `yaml:"history_start"` // YYYY-MM-DD
}

// APIConfig holds API provider configurations
type APIConfig struct {
	Yahoo        ProviderConfig `yaml:"yahoo"`
	AlphaVantage ProviderConfig `yaml:"alphavantage"`
	Timeout      time.Duration  `yaml:"timeout"`
}

// ProviderConfig holds individual provider settings
type ProviderConfig struct {
	Key       string `yaml:"key"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
}

// ModelConfig holds the fitting and forecasting knobs
type ModelConfig struct {
	Cutoff           string  `yaml:"cutoff"` // first training date, YYYY-MM-DD
	IntervalWidth    float64 `yaml:"interval_width"`
	HorizonDays      int     `yaml:"horizon_days"`
	DailySeasonality bool    `yaml:"daily_seasonality"`

	YearlySeasonality string `yaml:"yearly_seasonality"` // auto, on, off
	WeeklySeasonality string `yaml:"weekly_seasonality"`
	YearlyOrder       int    `yaml:"yearly_order"`
	WeeklyOrder       int    `yaml:"weekly_order"`

	Changepoints          int     `yaml:"changepoints"`
	ChangepointRange      float64 `yaml:"changepoint_range"`
	ChangepointPriorScale float64 `yaml:"changepoint_prior_scale"`
	SeasonalityPriorScale float64 `yaml:"seasonality_prior_scale"`

	UncertaintySamples int    `yaml:"uncertainty_samples"`
	Seed               uint64 `yaml:"seed"`
}

// ArchiveConfig controls the local SQLite copy of the price series
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port        int    `yaml:"port"`
	AuthSecret  string `yaml:"auth_secret"`  // HS256 secret; empty disables auth
	RefreshCron string `yaml:"refresh_cron"` // when to re-download the series
	CacheSize   int    `yaml:"cache_size"`   // cached forecast results
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ReportConfig holds presentation switches
type ReportConfig struct {
	// R2PercentSuffix prints R² followed by "%" to match older dashboard output.
	// R² is unitless, so the suffix is off by default.
	R2PercentSuffix bool `yaml:"r2_percent_suffix"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	opts := forecast.DefaultOptions()
	return &Config{
		Series: SeriesConfig{
			Symbol:       "BZ=F",
			HistoryStart: "2000-01-01",
		},
		API: APIConfig{
			Yahoo: ProviderConfig{
				RateLimit: 30,
			},
			AlphaVantage: ProviderConfig{
				Key:       os.Getenv("ALPHAVANTAGE_API_KEY"),
				RateLimit: 5,
			},
			Timeout: 30 * time.Second,
		},
		Model: ModelConfig{
			Cutoff:                "2022-05-01",
			IntervalWidth:         opts.IntervalWidth,
			HorizonDays:           1,
			DailySeasonality:      opts.DailySeasonality,
			YearlySeasonality:     string(opts.YearlySeasonality),
			WeeklySeasonality:     string(opts.WeeklySeasonality),
			YearlyOrder:           opts.YearlyOrder,
			WeeklyOrder:           opts.WeeklyOrder,
			Changepoints:          opts.NumChangepoints,
			ChangepointRange:      opts.ChangepointRange,
			ChangepointPriorScale: opts.ChangepointPriorScale,
			SeasonalityPriorScale: opts.SeasonalityPriorScale,
			UncertaintySamples:    opts.UncertaintySamples,
			Seed:                  opts.Seed,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "data/brentcast.db",
		},
		Server: ServerConfig{
			Port:        8080,
			AuthSecret:  os.Getenv("BRENTCAST_AUTH_SECRET"),
			RefreshCron: "30 22 * * 1-5",
			CacheSize:   64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Override with environment variables if set
	if key := os.Getenv("ALPHAVANTAGE_API_KEY"); key != "" {
		cfg.API.AlphaVantage.Key = key
	}
	if secret := os.Getenv("BRENTCAST_AUTH_SECRET"); secret != "" {
		cfg.Server.AuthSecret = secret
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Series.Symbol == "" {
		return fmt.Errorf("series.symbol is required")
	}
	if _, err := c.HistoryStart(); err != nil {
		return err
	}
	if _, err := c.Cutoff(); err != nil {
		return err
	}
	if c.Model.IntervalWidth <= 0 || c.Model.IntervalWidth >= 1 {
		return fmt.Errorf("model.interval_width must be between 0 and 1 (exclusive)")
	}
	if c.Model.HorizonDays < 1 || c.Model.HorizonDays > forecast.MaxHorizon {
		return fmt.Errorf("model.horizon_days must be between 1 and %d", forecast.MaxHorizon)
	}
	if c.API.Yahoo.RateLimit < 1 {
		return fmt.Errorf("api.yahoo.rate_limit must be at least 1")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when the archive is enabled")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port")
	}
	if c.Server.CacheSize < 0 {
		return fmt.Errorf("server.cache_size must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be one of: json, console")
	}
	return nil
}

// HistoryStart parses series.history_start
func (c *Config) HistoryStart() (time.Time, error) {
	t, err := time.Parse(model.DateLayout, c.Series.HistoryStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("series.history_start: %w", err)
	}
	return t, nil
}

// Cutoff parses model.cutoff
func (c *Config) Cutoff() (time.Time, error) {
	t, err := time.Parse(model.DateLayout, c.Model.Cutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("model.cutoff: %w", err)
	}
	return t, nil
}

// ForecastOptions maps the model section onto fitting options
func (c *Config) ForecastOptions() forecast.Options {
	opts := forecast.DefaultOptions()
	opts.IntervalWidth = c.Model.IntervalWidth
	opts.DailySeasonality = c.Model.DailySeasonality
	opts.YearlySeasonality = forecast.SeasonalityMode(c.Model.YearlySeasonality)
	opts.WeeklySeasonality = forecast.SeasonalityMode(c.Model.WeeklySeasonality)
	opts.YearlyOrder = c.Model.YearlyOrder
	opts.WeeklyOrder = c.Model.WeeklyOrder
	opts.NumChangepoints = c.Model.Changepoints
	opts.ChangepointRange = c.Model.ChangepointRange
	opts.ChangepointPriorScale = c.Model.ChangepointPriorScale
	opts.SeasonalityPriorScale = c.Model.SeasonalityPriorScale
	opts.UncertaintySamples = c.Model.UncertaintySamples
	opts.Seed = c.Model.Seed
	return opts
}
