package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"brentcast/internal/backtest"
	"brentcast/internal/report"
	"brentcast/pkg/model"
)

func newBacktestCmd() *cobra.Command {
	cfg := backtest.DefaultConfig()
	var cutoff string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Score out-of-sample forecasts at rolling origins",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, err := a.loadStore(ctx)
			if err != nil {
				return err
			}
			defCutoff, err := a.cfg.Cutoff()
			if err != nil {
				return err
			}
			from, err := parseDateFlag("cutoff", cutoff, defCutoff)
			if err != nil {
				return err
			}
			points, err := store.From(from)
			if err != nil {
				return err
			}

			bt := backtest.NewBacktester(cfg, a.cfg.ForecastOptions())
			if format == "table" {
				bar := progressbar.NewOptions(cfg.Origins,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Refitting"),
					progressbar.OptionClearOnFinish(),
				)
				bt.SetProgressCallback(func(done, total int) {
					bar.ChangeMax(total)
					bar.Set(done)
				})
				defer bar.Finish()
			}

			res, err := bt.Run(ctx, points)
			if err != nil {
				return err
			}

			if format == "json" {
				return printJSON(res)
			}

			rows := make([][]string, 0, len(res.Origins))
			for _, or := range res.Origins {
				if or.Err != "" {
					rows = append(rows, []string{or.Origin.Format(model.DateLayout), "-", "-", or.Err})
					continue
				}
				rows = append(rows, []string{
					or.Origin.Format(model.DateLayout),
					fmt.Sprintf("%d", len(or.Actuals)),
					report.Fixed(or.MAPE, 2) + "%",
					fmt.Sprintf("%d/%d inside", or.Covered, len(or.Actuals)),
				})
			}
			printTable([]string{"Origin", "Scored", "MAPE", "Interval"}, rows)

			fmt.Printf("\nOut-of-sample MAPE %s%% over %d forecasts, coverage %s%% (target %s%%), %d failed, %s\n",
				report.Fixed(res.MAPE, 2), res.Scored, report.Fixed(res.Coverage*100, 1),
				report.Fixed(a.cfg.Model.IntervalWidth*100, 1), res.Failed, res.Elapsed.Round(time.Millisecond))
			for step, mape := range res.StepMAPE {
				fmt.Printf("  day +%d: %s%%\n", step+1, report.Fixed(mape, 2))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cutoff, "cutoff", "", "first training date YYYY-MM-DD (default from config)")
	cmd.Flags().IntVar(&cfg.Origins, "origins", cfg.Origins, "number of forecast origins")
	cmd.Flags().IntVar(&cfg.Step, "step", cfg.Step, "business days between origins")
	cmd.Flags().IntVar(&cfg.HorizonDays, "horizon", cfg.HorizonDays, "business days forecast per origin (1-7)")
	cmd.Flags().IntVar(&cfg.Window, "window", cfg.Window, "training points per origin (0 = expanding)")
	cmd.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel refits")
	return cmd
}
