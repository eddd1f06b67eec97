package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"brentcast/internal/provider"
	"brentcast/internal/report"
	"brentcast/internal/web"
	"brentcast/pkg/model"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the series and store it in the local archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if offline {
				return fmt.Errorf("fetch cannot run with --offline")
			}
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			if a.archive == nil {
				return fmt.Errorf("archive is disabled in config")
			}

			start, err := a.cfg.HistoryStart()
			if err != nil {
				return err
			}
			// always hit the network, the caching layer would serve a fresh archive
			fresh := provider.NewCachingProvider(unwrapCaching(a.provider), a.archive, 0)
			fresh.SetRequireSave(true)
			points, err := fresh.GetDailySeries(context.Background(), a.cfg.Series.Symbol, start)
			if err != nil {
				return err
			}
			last := points[len(points)-1]
			fmt.Printf("Archived %d prices for %s, latest %s at %s\n",
				len(points), a.cfg.Series.Symbol, last.Date.Format(model.DateLayout), report.Fixed(last.Price, report.PricePlaces))
			return nil
		},
	}
}

// unwrapCaching returns the network provider behind the archive cache
func unwrapCaching(p provider.Provider) provider.Provider {
	if c, ok := p.(*provider.CachingProvider); ok {
		return c.Inner()
	}
	return p
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent forecast runs from the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			if a.archive == nil {
				return fmt.Errorf("archive is disabled in config")
			}

			runs, err := a.archive.RecentRuns(context.Background(), limit)
			if err != nil {
				return err
			}
			if format == "json" {
				return printJSON(runs)
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				id := r.RunID
				if len(id) > 8 {
					id = id[:8]
				}
				rows[i] = []string{
					r.CreatedAt.Format("2006-01-02 15:04"),
					id,
					r.Cutoff.Format(model.DateLayout),
					fmt.Sprintf("%d", r.HorizonDays),
					report.Fixed(r.MAPE, 2) + "%",
					report.Fixed(r.RSquared, 3),
					report.Fixed(r.Coverage*100, 1) + "%",
				}
			}
			printTable([]string{"When", "Run", "Cutoff", "Horizon", "MAPE", "R²", "Coverage"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API (needs server.auth_secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			token, err := web.IssueToken(a.cfg.Server.AuthSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
