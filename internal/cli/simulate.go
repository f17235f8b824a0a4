package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anggasct/junction/pkg/clock"
	"github.com/anggasct/junction/pkg/observers"
	"github.com/anggasct/junction/pkg/scenario"
	"github.com/anggasct/junction/pkg/trace"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Trace string
}

// SimulationView is the JSON output of the simulate command.
type SimulationView struct {
	Name       string   `json:"name"`
	OK         bool     `json:"ok"`
	Timeline   []string `json:"timeline"`
	Phases     int      `json:"phases"`
	Violations []string `json:"violations"`
	Failures   []string `json:"failures"`
	TraceRun   int64    `json:"trace_run,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a scenario on a simulated clock",
		Long: `Replay the timed sensor reports of a scenario file against a controller
running on a simulated clock and print the resulting light timeline.

The scenario's own config block selects the rule table and durations.
The command fails when an expectation is not met or a published light
state is unsafe. With --trace every light state is also appended to an
SQLite trace database.

Example:
  junction simulate testdata/left_turn_batch.yaml
  junction simulate --trace ./trace.db --format json rush_hour.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Trace, "trace", "", "append light states to this SQLite trace database")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	s, err := scenario.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	clk := clock.NewManual()
	runOpts := scenario.Options{
		Clock:  clk,
		Logger: logger,
	}
	if opts.Verbose {
		runOpts.Observers = append(runOpts.Observers, observers.NewCycleLogger(logger))
	}

	var run *trace.Run
	if opts.Trace != "" {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, err := trace.Open(opts.Trace)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing trace database", "error", closeErr)
			}
		}()
		run, err = st.StartRun(ctx, s.Name, clk)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start trace run", err)
		}
		runOpts.Listeners = append(runOpts.Listeners, run.Listen)
		logger.Debug("tracing run", "db", opts.Trace, "run", run.ID())
	}

	result, err := scenario.Run(s, runOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}
	if run != nil {
		if err := run.Err(); err != nil {
			return WrapExitError(ExitCommandError, "failed to write trace", err)
		}
	}

	view := SimulationView{
		Name:       result.Name,
		OK:         result.OK(),
		Timeline:   result.Lines,
		Phases:     result.Stats.Phases(),
		Violations: result.Violations,
		Failures:   result.Failures,
	}
	if run != nil {
		view.TraceRun = run.ID()
	}

	if err := writeOutput(cmd.OutOrStdout(), opts.Format, view, func(w io.Writer) {
		fmt.Fprintf(w, "scenario: %s\n", result.Name)
		if s.Description != "" {
			fmt.Fprintf(w, "%s\n", strings.TrimSpace(s.Description))
		}
		fmt.Fprintln(w)
		io.WriteString(w, result.Text())
		if run != nil {
			fmt.Fprintf(w, "trace run: %d\n", run.ID())
		}
	}); err != nil {
		return err
	}

	if !result.OK() {
		logger.Warn("scenario failed",
			"violations", len(result.Violations), "failures", len(result.Failures))
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %q failed", result.Name))
	}
	return nil
}
