package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/api"
	"github.com/pysugar/oura-twin-sync/internal/scheduler"
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background token refresh",
	Long: `Start the HTTP server.

Endpoints:
  GET  /auth/{twin}/login              - redirect to the Oura consent page
  GET  /auth/callback                  - authorization redirect target
  GET  /api/twins                      - connection status of both twins
  POST /api/twins/{twin}/refresh       - refresh a twin's token
  POST /api/twins/{twin}/disconnect    - forget a twin's tokens
  GET  /api/twins/{twin}/daily         - normalized daily data
  GET  /api/twins/{twin}/intraday      - recent heart-rate samples
  GET  /api/compare                    - both twins side by side
  PUT  /api/credentials                - save client credentials
  GET  /metrics                        - Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.Server.Port = servePort
	}

	var sched *scheduler.Scheduler
	if a.cfg.Refresh.Enabled {
		sched = scheduler.New(a.log)
		if err := sched.AddJob(scheduler.NewTokenSweep(a.flow, a.cfg.Refresh.Schedule, a.log)); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr: a.cfg.Server.Addr(),
		Handler: api.NewRouter(api.Deps{
			Flow:          a.flow,
			Pipeline:      a.pipeline,
			Limiter:       a.limiter,
			Monitor:       a.monitor,
			IntradayHours: a.cfg.Fetch.IntradayHours,
			AdminPassword: a.cfg.Server.AdminPassword,
			Logger:        a.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("Oura twin sync listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
