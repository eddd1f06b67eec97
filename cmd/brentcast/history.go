package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"brentcast/internal/analyzer"
	"brentcast/internal/report"
	"brentcast/internal/series"
	"brentcast/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show prices with daily change for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.loadStore(context.Background())
			if err != nil {
				return err
			}
			points, err := sliceFlags(store, start, end)
			if err != nil {
				return err
			}

			an := analyzer.NewHistoryAnalyzer()
			sum := an.Summarize(points)
			changes := an.DailyChanges(points)

			if format == "json" {
				return printJSON(map[string]any{"summary": sum, "rows": changes})
			}
			printTable(report.HistoryHeader, report.HistoryRows(changes))
			fmt.Println(report.RangeLine(sum))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date YYYY-MM-DD (default: series start)")
	cmd.Flags().StringVar(&end, "end", "", "last date YYYY-MM-DD (default: latest)")
	return cmd
}

func newPriceCmd() *cobra.Command {
	var nearest bool

	cmd := &cobra.Command{
		Use:   "price DATE",
		Short: "Show the price on a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.Parse(model.DateLayout, args[0])
			if err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.loadStore(context.Background())
			if err != nil {
				return err
			}

			point := model.PricePoint{Date: series.Day(date)}
			point.Price, err = store.PriceOn(date)
			if err != nil {
				if !nearest || !errors.Is(err, series.ErrNotFound) {
					return err
				}
				if point, err = store.Nearest(date); err != nil {
					return err
				}
			}

			if format == "json" {
				return printJSON(point)
			}
			suffix := ""
			if !point.Date.Equal(series.Day(date)) {
				suffix = " (nearest session)"
			}
			fmt.Printf("%s: %s%s\n", point.Date.Format(model.DateLayout), report.Fixed(point.Price, report.PricePlaces), suffix)
			return nil
		},
	}
	cmd.Flags().BoolVar(&nearest, "nearest", false, "fall back to the closest earlier session")
	return cmd
}

func newInsightsCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Show yearly averages and volatility",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.loadStore(context.Background())
			if err != nil {
				return err
			}
			points, err := sliceFlags(store, start, end)
			if err != nil {
				return err
			}

			an := analyzer.NewHistoryAnalyzer()
			years := an.YearlyStats(points)
			vol := an.Volatility(points)

			if format == "json" {
				return printJSON(map[string]any{"years": years, "volatility_pct": vol})
			}
			printTable(report.YearHeader, report.YearRows(years))
			fmt.Printf("Annualized volatility: %s%%\n", report.Fixed(vol, 2))
			if ma, ok := an.MovingAverage(points, 200); ok {
				fmt.Printf("200-day average: %s\n", report.Fixed(ma, report.PricePlaces))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date YYYY-MM-DD (default: series start)")
	cmd.Flags().StringVar(&end, "end", "", "last date YYYY-MM-DD (default: latest)")
	return cmd
}

func sliceFlags(store *series.Store, start, end string) ([]model.PricePoint, error) {
	first, err := store.First()
	if err != nil {
		return nil, err
	}
	last, _ := store.Last()

	from, err := parseDateFlag("start", start, first.Date)
	if err != nil {
		return nil, err
	}
	to, err := parseDateFlag("end", end, last.Date)
	if err != nil {
		return nil, err
	}
	return store.Slice(from, to)
}
