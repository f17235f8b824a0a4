package scenario

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/clock"
	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/observers"
)

// Options add collaborators to a run
type Options struct {
	// Clock drives the run; a fresh manual clock at clock.Epoch by default
	Clock *clock.Manual
	// Logger is handed to the controller
	Logger *slog.Logger
	// Metrics is handed to the controller
	Metrics *junction.Metrics
	// Listeners receive every light state after the built-in ones
	Listeners []func(junction.LightState)
	// Observers are attached to the controller's phase cycle
	Observers []fsm.Observer
}

// Result is the outcome of a run
type Result struct {
	Name string
	// Lines is the timeline: sensor reports and light states in order
	Lines []string
	// Violations are safety monitor findings
	Violations []string
	// Failures are unmet expectations
	Failures []string
	Stats    *observers.PhaseStats
}

// OK reports whether the run had no violations and met every expectation
func (r *Result) OK() bool {
	return len(r.Violations) == 0 && len(r.Failures) == 0
}

// Text renders the timeline followed by a summary
func (r *Result) Text() string {
	var b strings.Builder
	for _, l := range r.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "phases: %d\n", r.Stats.Phases())
	fmt.Fprintf(&b, "safety violations: %d\n", len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "  %s\n", v)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "expectation failed: %s\n", f)
	}
	return b.String()
}

type snapshot struct {
	at    int
	green []junction.SensorID
}

// Run replays s
func Run(s *Scenario, opts Options) (*Result, error) {
	settings, err := s.Settings()
	if err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.NewManual()
	}
	start := clk.Now()
	elapsed := func() time.Duration { return clk.Now().Sub(start) }

	res := &Result{
		Name:  s.Name,
		Stats: observers.NewPhaseStats(clk),
	}
	line := func(format string, args ...any) {
		res.Lines = append(res.Lines, fmt.Sprintf("+%.3fs ", elapsed().Seconds())+fmt.Sprintf(format, args...))
	}

	var history []snapshot
	timeline := func(state junction.LightState) {
		line("lights %s", state)
		history = append(history, snapshot{
			at:    int(elapsed() / time.Millisecond),
			green: state.With(junction.Green),
		})
	}

	monitor := observers.NewSafetyMonitor(settings.Rules)
	listeners := append([]func(junction.LightState){timeline, monitor.Listen, res.Stats.Listen}, opts.Listeners...)

	cfg := settings.Apply(junction.DefaultConfig())
	cfg.Clock = clk
	cfg.Logger = opts.Logger
	cfg.Metrics = opts.Metrics

	ctrl, err := junction.New(settings.Rules, cfg, listeners...)
	if err != nil {
		return nil, err
	}
	defer ctrl.Close()

	for _, o := range opts.Observers {
		ctrl.AddCycleObserver(o)
	}

	for _, e := range s.Events {
		clk.Set(start.Add(junction.Duration(e.AtMs)))

		id := junction.ParseSensorID(e.Sensor)
		if err := ctrl.Report(id, e.Active); err != nil {
			line("sensor %s ignored", id)
			continue
		}
		if e.Active {
			line("sensor %s active", id)
		} else {
			line("sensor %s inactive", id)
		}
	}
	clk.Set(start.Add(junction.Duration(s.Until())))

	res.Violations = monitor.Violations()
	res.Failures = check(s.sortedExpectations(), history)
	return res, nil
}

// check compares each expectation with the last light state published at
// or before its time
func check(expect []Expectation, history []snapshot) []string {
	var failures []string
	for _, exp := range expect {
		var got []junction.SensorID
		for _, h := range history {
			if h.at > exp.AtMs {
				break
			}
			got = h.green
		}

		want := make([]junction.SensorID, len(exp.Green))
		for i, g := range exp.Green {
			want[i] = junction.ParseSensorID(g)
		}

		if !sameSet(got, want) {
			failures = append(failures, fmt.Sprintf("at %dms green %v, want %v", exp.AtMs, got, want))
		}
	}
	return failures
}

func sameSet(a, b []junction.SensorID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !slices.Contains(b, id) {
			return false
		}
	}
	return true
}
