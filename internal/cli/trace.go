package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/anggasct/junction/pkg/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Run int64
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <db>",
		Short: "Inspect a light-state trace database",
		Long: `List the runs recorded in a trace database, or the light states of one
run with --run.

Example:
  junction trace ./trace.db
  junction trace ./trace.db --run 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Run, "run", 0, "show the light states of this run")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	st, err := trace.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.Run == 0 {
		runs, err := st.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return writeOutput(out, opts.Format, runs, func(w io.Writer) {
			if len(runs) == 0 {
				fmt.Fprintln(w, "no runs recorded")
				return
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%4d  %-30s  %s  %d states\n",
					r.ID, r.Name, r.StartedAt.UTC().Format(time.RFC3339), r.States)
			}
		})
	}

	entries, err := st.Entries(ctx, opts.Run)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	if len(entries) == 0 {
		return NewExitError(ExitCommandError, "run "+strconv.FormatInt(opts.Run, 10)+" not found")
	}
	return writeOutput(out, opts.Format, entries, func(w io.Writer) {
		start := entries[0].At
		for _, e := range entries {
			fmt.Fprintf(w, "%4d  +%.3fs  green: %s  yellow: %s\n",
				e.Seq, e.At.Sub(start).Seconds(), formatSet(e.Green), formatSet(e.Yellow))
		}
	})
}
