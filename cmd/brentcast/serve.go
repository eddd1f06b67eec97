package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brentcast/internal/daemon"
	"brentcast/internal/metrics"
	"brentcast/internal/pipeline"
	"brentcast/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		noRefresh bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the forecast API and refresh the series on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			runner, err := pipeline.NewRunner(nil, a.cfg.ForecastOptions(), a.logger, m, a.cfg.Server.CacheSize)
			if err != nil {
				return err
			}
			if a.archive != nil {
				runner.SetRecorder(a.archive, a.cfg.Series.Symbol)
			}

			start, err := a.cfg.HistoryStart()
			if err != nil {
				return err
			}
			refresher := daemon.NewRefresher(a.provider, runner, a.cfg.Series.Symbol, start, m, a.logger)
			if err := refresher.Refresh(ctx); err != nil {
				return fmt.Errorf("initial load: %w", err)
			}
			if !noRefresh && !offline {
				if err := refresher.Start(ctx, a.cfg.Server.RefreshCron); err != nil {
					return err
				}
				defer refresher.Stop()
			}

			srv := web.NewServer(a.cfg, runner, reg, a.logger)
			srv.SetRefreshClock(refresher.LastRefresh)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(a.cfg.Server.Port)
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				a.logger.Info("shutting down")
			}

			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("shutdown", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "load the series once and never refresh")
	return cmd
}
