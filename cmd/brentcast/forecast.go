package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"brentcast/internal/metrics"
	"brentcast/internal/pipeline"
	"brentcast/internal/report"
)

func newForecastCmd() *cobra.Command {
	var (
		cutoff     string
		horizon    int
		width      float64
		daily      bool
		components bool
		evalRows   int
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fit the model and forecast the next business days",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("horizon") {
				a.cfg.Model.HorizonDays = horizon
			}
			if cmd.Flags().Changed("width") {
				a.cfg.Model.IntervalWidth = width
			}
			if cmd.Flags().Changed("daily") {
				a.cfg.Model.DailySeasonality = daily
			}
			defCutoff, err := a.cfg.Cutoff()
			if err != nil {
				return err
			}
			req := pipeline.Request{
				IntervalWidth:    a.cfg.Model.IntervalWidth,
				HorizonDays:      a.cfg.Model.HorizonDays,
				DailySeasonality: a.cfg.Model.DailySeasonality,
			}
			if req.Cutoff, err = parseDateFlag("cutoff", cutoff, defCutoff); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, err := a.loadStore(ctx)
			if err != nil {
				return err
			}

			runner, err := pipeline.NewRunner(store, a.cfg.ForecastOptions(), a.logger, metrics.New(nil), 0)
			if err != nil {
				return err
			}
			if a.archive != nil {
				runner.SetRecorder(a.archive, a.cfg.Series.Symbol)
			}

			var bar *progressbar.ProgressBar
			if !noProgress && format == "table" {
				runner.SetProgressCallback(func(done, total int) {
					if bar == nil {
						bar = progressbar.NewOptions(total,
							progressbar.OptionSetWriter(os.Stderr),
							progressbar.OptionEnableColorCodes(true),
							progressbar.OptionShowCount(),
							progressbar.OptionSetWidth(40),
							progressbar.OptionSetDescription("Sampling intervals"),
							progressbar.OptionClearOnFinish(),
							progressbar.OptionSetTheme(progressbar.Theme{
								Saucer:        "[green]█[reset]",
								SaucerHead:    "[green]█[reset]",
								SaucerPadding: "░",
								BarStart:      "[",
								BarEnd:        "]",
							}),
						)
					}
					bar.Set(done)
					if done == total {
						bar.Finish()
					}
				})
			}

			res, err := runner.Run(ctx, req)
			if err != nil {
				return err
			}

			if format == "json" {
				out := *res
				out.Forecast = report.RoundPredictions(res.Forecast)
				out.Predictions = nil
				return printJSON(out)
			}

			fmt.Printf("Run %s: trained on %d days (%s to %s), seasonality %v\n\n",
				res.RunID, res.Model.TrainingPoints,
				res.Model.TrainingStart.Format("2006-01-02"), res.Model.TrainingEnd.Format("2006-01-02"),
				res.Model.Seasonalities)

			printTable(report.ForecastHeader, report.ForecastRows(res.Forecast))
			if components {
				fmt.Println()
				printTable([]string{"Date", "Trend", "Yearly", "Weekly", "Daily"}, report.ComponentRows(res.Forecast))
			}

			fmt.Printf("\n%s\n", report.SummaryLine(res.Evaluation, a.cfg.Report.R2PercentSuffix))
			fmt.Printf("Interval coverage in sample: %s%% (target %s%%)\n",
				report.Fixed(res.Evaluation.Coverage*100, 1), report.Fixed(req.IntervalWidth*100, 1))

			if evalRows > 0 {
				rows := res.Evaluation.Rows
				if len(rows) > evalRows {
					rows = rows[:evalRows]
				}
				fmt.Println()
				printTable(report.EvaluationHeader, report.EvaluationRows(rows))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cutoff, "cutoff", "", "first training date YYYY-MM-DD (default from config)")
	cmd.Flags().IntVar(&horizon, "horizon", 1, "business days to forecast (1-7)")
	cmd.Flags().Float64Var(&width, "width", 0.95, "uncertainty interval width")
	cmd.Flags().BoolVar(&daily, "daily", false, "enable daily seasonality")
	cmd.Flags().BoolVar(&components, "components", false, "show the trend/seasonal decomposition")
	cmd.Flags().IntVar(&evalRows, "eval-rows", 10, "evaluation rows to show, newest first (0 hides the table)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	return cmd
}
