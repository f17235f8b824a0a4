package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/clock"
	"github.com/anggasct/junction/pkg/feed"
	"github.com/anggasct/junction/pkg/observers"
	"github.com/anggasct/junction/pkg/trace"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr  string
	Trace string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a live controller behind an HTTP feed",
		Long: `Run a controller on the real clock and expose it over HTTP.

Routes:
  GET  /state          current cycle state, lights and sensors
  POST /sensors/{id}   report a sensor: {"active": true}
  GET  /ws             websocket stream of light states
  GET  /metrics        Prometheus metrics
  GET  /health         liveness

Example:
  junction serve --addr :8080 --config crosswalk.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "append light states to this SQLite trace database")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	settings, err := opts.Settings()
	if err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := junction.NewMetrics(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	clk := clock.NewSystem()
	listeners := []func(junction.LightState){
		observers.NewLightLogger(logger, slog.LevelInfo).Listen,
	}

	if opts.Trace != "" {
		st, err := trace.Open(opts.Trace)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing trace database", "error", closeErr)
			}
		}()
		run, err := st.StartRun(ctx, "serve "+opts.Addr, clk)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start trace run", err)
		}
		listeners = append(listeners, run.Listen)
		defer func() {
			if err := run.Err(); err != nil {
				logger.Error("trace write failed", "run", run.ID(), "error", err)
			}
		}()
	}

	cfg := settings.Apply(junction.DefaultConfig())
	cfg.Clock = clk
	cfg.Logger = logger
	cfg.Metrics = metrics

	ctrl, err := junction.New(settings.Rules, cfg, listeners...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start controller", err)
	}
	defer ctrl.Close()
	if opts.Verbose {
		ctrl.AddCycleObserver(observers.NewCycleLogger(logger))
	}

	srv := feed.New(ctrl, feed.Options{Gatherer: reg, Logger: logger})

	logger.Info("controller started",
		"rules", settings.Source, "sensors", settings.Rules.Len(), "restamp", settings.Restamp)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", opts.Addr)

	if err := srv.ListenAndServe(ctx, opts.Addr); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "feed server error", err)
	}

	logger.Info("controller stopped")
	return nil
}
