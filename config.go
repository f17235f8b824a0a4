package junction

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/anggasct/junction/pkg/clock"
)

// Default phase timings.
const (
	DefaultGreenDuration      = 4000 * time.Millisecond
	DefaultYellowDuration     = 1000 * time.Millisecond
	DefaultInBetweenDuration  = 1000 * time.Millisecond
	DefaultPedestrianDuration = 6000 * time.Millisecond
)

// Durations are the fixed timings of one phase cycle.
type Durations struct {
	// Green is the hold for a vehicle primary.
	Green time.Duration `json:"green" yaml:"green"`
	// Yellow follows every green.
	Yellow time.Duration `json:"yellow" yaml:"yellow"`
	// InBetween is the all-red clearance between phases.
	InBetween time.Duration `json:"in_between" yaml:"in_between"`
	// Pedestrian is the hold for a pedestrian primary.
	Pedestrian time.Duration `json:"pedestrian" yaml:"pedestrian"`
}

// DefaultDurations returns the stock timings.
func DefaultDurations() Durations {
	return Durations{
		Green:      DefaultGreenDuration,
		Yellow:     DefaultYellowDuration,
		InBetween:  DefaultInBetweenDuration,
		Pedestrian: DefaultPedestrianDuration,
	}
}

// Validate checks every duration is positive.
func (d Durations) Validate() error {
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"green", d.Green},
		{"yellow", d.Yellow},
		{"in_between", d.InBetween},
		{"pedestrian", d.Pedestrian},
	} {
		if f.d <= 0 {
			return NewConfigurationError("durations."+f.name, fmt.Sprintf("must be positive, got %s", f.d))
		}
	}
	return nil
}

// RestampPolicy decides when the sensors of a phase get their wait clock
// renewed, so a sensor held down through its own phase is not picked again
// straight away.
type RestampPolicy int

const (
	// RestampDeferred renews the previous phase's sensors at the start of
	// the next selection.
	RestampDeferred RestampPolicy = iota
	// RestampEager renews them as soon as their phase starts.
	RestampEager
)

func (p RestampPolicy) String() string {
	switch p {
	case RestampDeferred:
		return "deferred"
	case RestampEager:
		return "eager"
	}
	return fmt.Sprintf("RestampPolicy(%d)", int(p))
}

// ParseRestampPolicy parses "deferred" or "eager"; empty means deferred.
func ParseRestampPolicy(s string) (RestampPolicy, error) {
	switch s {
	case "", "deferred":
		return RestampDeferred, nil
	case "eager":
		return RestampEager, nil
	}
	return 0, NewConfigurationError("restamp", fmt.Sprintf("unknown policy %q", s))
}

// Config holds controller settings. Zero-valued collaborators fall back to
// the real clock, slog.Default and no metrics.
type Config struct {
	Durations Durations
	Restamp   RestampPolicy

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Durations: DefaultDurations(),
		Restamp:   RestampDeferred,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Durations.Validate(); err != nil {
		return err
	}
	if c.Restamp != RestampDeferred && c.Restamp != RestampEager {
		return NewConfigurationError("restamp", fmt.Sprintf("unknown policy %d", int(c.Restamp)))
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.NewSystem()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
