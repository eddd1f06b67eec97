package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"brentcast/internal/config"
	"brentcast/internal/provider"
	"brentcast/internal/series"
	"brentcast/pkg/model"
)

// quotetest checks every configured price provider against the live APIs
func main() {
	cfgFile := flag.String("config", "config.yaml", "config file path")
	days := flag.Int("days", 30, "calendar days of history to request")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatal(err)
	}

	providers := []provider.Provider{
		provider.NewYahooProvider(cfg.API.Yahoo.RateLimit, cfg.API.Timeout),
		provider.NewAlphaVantageProvider(cfg.API.AlphaVantage.Key, cfg.API.AlphaVantage.RateLimit, cfg.API.Timeout),
	}

	ctx := context.Background()
	start := time.Now().AddDate(0, 0, -*days)

	fmt.Printf("=== Provider check: %s since %s ===\n", cfg.Series.Symbol, start.Format(model.DateLayout))

	for i, p := range providers {
		fmt.Printf("\n[%d] %s\n", i+1, p.Name())
		if !p.IsAvailable() {
			fmt.Println("    SKIP: not configured")
			continue
		}

		t0 := time.Now()
		points, err := p.GetDailySeries(ctx, cfg.Series.Symbol, start)
		elapsed := time.Since(t0)
		if err != nil {
			fmt.Printf("    ERROR: %v\n", err)
			continue
		}
		fmt.Printf("    OK: %d closes in %s\n", len(points), elapsed)

		store, err := series.New(points)
		if err != nil {
			fmt.Printf("    INVALID: %v\n", err)
			continue
		}
		first, _ := store.First()
		last, _ := store.Last()
		fmt.Printf("    Range: %s .. %s\n", first.Date.Format(model.DateLayout), last.Date.Format(model.DateLayout))
		fmt.Printf("    Last: %.2f\n", last.Price)
	}

	fmt.Println("\n=== Done ===")
}
