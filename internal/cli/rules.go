package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/clock"
	"github.com/anggasct/junction/visualization"
)

// RulesOptions holds flags for the rules command.
type RulesOptions struct {
	*RootOptions
	Dot   bool
	Cycle bool
}

// RuleView is the printable form of one rule.
type RuleView struct {
	Sensor       junction.SensorID     `json:"sensor"`
	Pedestrian   bool                  `json:"pedestrian"`
	Default      []junction.SensorID   `json:"default"`
	Alternatives [][]junction.SensorID `json:"alternatives"`
}

// RulesView is the output of the rules command.
type RulesView struct {
	Source   string     `json:"source"`
	Restamp  string     `json:"restamp"`
	GreenMs  int64      `json:"green_ms"`
	YellowMs int64      `json:"yellow_ms"`
	AllRedMs int64      `json:"in_between_ms"`
	WalkMs   int64      `json:"pedestrian_ms"`
	Rules    []RuleView `json:"rules"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate and print the rule table",
		Long: `Load the configured rule table, validate it and print it.

Without --config the standard preset is shown. --dot prints the
compatibility graph in Graphviz DOT format instead; --cycle prints the
phase cycle state machine.

Example:
  junction rules --config crosswalk.yaml
  junction rules --dot | dot -Tsvg > rules.svg`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Dot, "dot", false, "print the compatibility graph as DOT")
	cmd.Flags().BoolVar(&opts.Cycle, "cycle", false, "print the phase cycle as DOT")
	cmd.MarkFlagsMutuallyExclusive("dot", "cycle")

	return cmd
}

func runRules(opts *RulesOptions, cmd *cobra.Command) error {
	settings, err := opts.Settings()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var gen visualization.Generator
	switch {
	case opts.Dot:
		gen = visualization.NewRuleGraphGenerator(settings.Rules)
	case opts.Cycle:
		cfg := settings.Apply(junction.DefaultConfig())
		cfg.Clock = clock.NewManual()
		cfg.Logger = opts.Logger(cmd.ErrOrStderr())
		ctrl, err := junction.New(settings.Rules, cfg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build controller", err)
		}
		defer ctrl.Close()
		gen = visualization.NewDOTGenerator(ctrl.Cycle())
	}
	if gen != nil {
		dot, err := gen.Generate()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to render graph", err)
		}
		_, err = io.WriteString(out, dot)
		return err
	}

	view := RulesView{
		Source:   settings.Source,
		Restamp:  settings.Restamp.String(),
		GreenMs:  settings.Durations.Green.Milliseconds(),
		YellowMs: settings.Durations.Yellow.Milliseconds(),
		AllRedMs: settings.Durations.InBetween.Milliseconds(),
		WalkMs:   settings.Durations.Pedestrian.Milliseconds(),
	}
	for _, r := range settings.Rules.Rules() {
		view.Rules = append(view.Rules, RuleView{
			Sensor:       r.Sensor,
			Pedestrian:   r.Pedestrian,
			Default:      r.Default,
			Alternatives: r.Alternatives,
		})
	}

	return writeOutput(out, opts.Format, view, func(w io.Writer) {
		fmt.Fprintf(w, "rule table: %s (%d sensors)\n", view.Source, len(view.Rules))
		fmt.Fprintf(w, "durations: green %dms, yellow %dms, all red %dms, pedestrian %dms\n",
			view.GreenMs, view.YellowMs, view.AllRedMs, view.WalkMs)
		fmt.Fprintf(w, "restamp: %s\n", view.Restamp)
		for _, r := range view.Rules {
			kind := ""
			if r.Pedestrian {
				kind = " (pedestrian)"
			}
			fmt.Fprintf(w, "  %s%s\n", r.Sensor, kind)
			fmt.Fprintf(w, "    default: %s\n", formatSet(r.Default))
			for _, alt := range r.Alternatives {
				fmt.Fprintf(w, "    alternative: %s\n", formatSet(alt))
			}
		}
	})
}

func formatSet(ids []junction.SensorID) string {
	if len(ids) == 0 {
		return "-"
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, " + ")
}
