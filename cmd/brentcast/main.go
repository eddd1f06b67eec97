package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brentcast/internal/archive"
	"brentcast/internal/config"
	"brentcast/internal/logging"
	"brentcast/internal/provider"
	"brentcast/internal/series"
	"brentcast/pkg/model"
)

var (
	cfgFile string
	format  string
	verbose bool
	offline bool
	maxAge  time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "brentcast",
		Short: "Brent crude daily price history and short-horizon forecasts",
		Long: `Brentcast downloads the daily Brent crude series, fits a trend plus
seasonality model and forecasts up to 7 business days ahead with
uncertainty intervals and in-sample accuracy (MAPE, R²).

Examples:
  brentcast forecast --horizon 5
  brentcast history --start 2024-01-01
  brentcast price 2024-05-03 --nearest
  brentcast serve --port 8080`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use only the local archive, never the network")
	rootCmd.PersistentFlags().DurationVar(&maxAge, "max-age", 12*time.Hour, "reuse archived prices younger than this")

	rootCmd.AddCommand(
		newForecastCmd(),
		newHistoryCmd(),
		newPriceCmd(),
		newInsightsCmd(),
		newBacktestCmd(),
		newFetchCmd(),
		newRunsCmd(),
		newServeCmd(),
		newTokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	archive  *archive.Store
	provider provider.Provider
}

func setup() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if format != "table" && format != "json" {
		return nil, fmt.Errorf("unknown format %q (use table or json)", format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if cfg.Archive.Enabled {
		a.archive, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
	}

	a.provider, err = a.buildProvider()
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildProvider() (provider.Provider, error) {
	if offline {
		if a.archive == nil {
			return nil, fmt.Errorf("--offline needs archive.enabled")
		}
		return provider.NewOfflineProvider(a.archive), nil
	}

	fallback := provider.NewFallbackProvider(
		provider.NewYahooProvider(a.cfg.API.Yahoo.RateLimit, a.cfg.API.Timeout),
		provider.NewAlphaVantageProvider(a.cfg.API.AlphaVantage.Key, a.cfg.API.AlphaVantage.RateLimit, a.cfg.API.Timeout),
	)
	names := make([]string, 0, len(fallback.Providers()))
	for _, p := range fallback.Providers() {
		names = append(names, p.Name())
	}
	a.logger.Debug("providers", zap.Strings("order", names))

	if a.archive == nil {
		return fallback, nil
	}
	caching := provider.NewCachingProvider(fallback, a.archive, maxAge)
	caching.SetLogger(a.logger.Named("archive"))
	return caching, nil
}

// loadStore fetches the configured series into a store
func (a *app) loadStore(ctx context.Context) (*series.Store, error) {
	start, err := a.cfg.HistoryStart()
	if err != nil {
		return nil, err
	}
	points, err := a.provider.GetDailySeries(ctx, a.cfg.Series.Symbol, start)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", a.cfg.Series.Symbol, err)
	}
	store, err := series.New(points)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("series loaded", zap.Int("points", store.Len()))
	return store, nil
}

func (a *app) close() {
	if a.archive != nil {
		a.archive.Close()
	}
	a.logger.Sync()
}

// parseDateFlag parses a YYYY-MM-DD flag value, returning fallback when empty
func parseDateFlag(name, value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(header []string, rows [][]string) {
	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader(header))
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}
