// Package scenario replays scripted sensor reports against a controller on
// a manual clock and renders the resulting timeline.
//
// A scenario file looks like:
//
//	name: left turn batched with straight
//	description: north_left waits longest and takes north_straight along
//	config:
//	  preset: standard
//	events:
//	  - {at_ms: 0, sensor: east_straight, active: true}
//	  - {at_ms: 50, sensor: north_left, active: true}
//	expect:
//	  - {at_ms: 6000, green: [north_straight, north_left]}
//	until_ms: 20000
//
// The config block uses the layout of package config.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/anggasct/junction/pkg/config"
)

// defaultTail is how long a run continues after the last event when
// until_ms is not set
const defaultTail = 20_000

// Scenario is a scripted run
type Scenario struct {
	// Name identifies the scenario and its golden file
	Name string `yaml:"name"`

	// Description explains what the scenario shows
	Description string `yaml:"description"`

	// Config is an inline controller configuration
	Config yaml.Node `yaml:"config"`

	// Events are sensor reports, applied in at_ms order
	Events []Event `yaml:"events"`

	// Expect lists the greens that must be showing at given times
	Expect []Expectation `yaml:"expect,omitempty"`

	// UntilMs is when the run stops, in milliseconds from the start
	UntilMs int `yaml:"until_ms,omitempty"`
}

// Event is one sensor report
type Event struct {
	AtMs   int    `yaml:"at_ms"`
	Sensor string `yaml:"sensor"`
	Active bool   `yaml:"active"`
}

// Expectation names the sensors that must be green at AtMs. An empty list
// expects no green at all.
type Expectation struct {
	AtMs  int      `yaml:"at_ms"`
	Green []string `yaml:"green"`
}

// Load reads and validates a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scenario, rejecting unknown fields
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].AtMs < s.Events[j].AtMs })
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	for i, e := range s.Events {
		if e.AtMs < 0 {
			return fmt.Errorf("event %d: at_ms must not be negative", i)
		}
		if e.Sensor == "" {
			return fmt.Errorf("event %d: sensor is required", i)
		}
	}
	for i, e := range s.Expect {
		if e.AtMs < 0 {
			return fmt.Errorf("expect %d: at_ms must not be negative", i)
		}
	}
	if s.UntilMs != 0 && s.UntilMs < s.lastEvent() {
		return fmt.Errorf("until_ms %d is before the last event at %d", s.UntilMs, s.lastEvent())
	}
	return nil
}

func (s *Scenario) lastEvent() int {
	last := 0
	for _, e := range s.Events {
		last = max(last, e.AtMs)
	}
	return last
}

// Until returns when the run stops
func (s *Scenario) Until() int {
	if s.UntilMs > 0 {
		return s.UntilMs
	}
	end := s.lastEvent() + defaultTail
	for _, e := range s.Expect {
		end = max(end, e.AtMs)
	}
	return end
}

// Settings decodes the inline config block
func (s *Scenario) Settings() (*config.Settings, error) {
	if s.Config.Kind == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(&s.Config)
	if err != nil {
		return nil, fmt.Errorf("encoding config block: %w", err)
	}
	settings, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return settings, nil
}

// sortedExpectations returns the expectations in time order
func (s *Scenario) sortedExpectations() []Expectation {
	out := slices.Clone(s.Expect)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AtMs < out[j].AtMs })
	return out
}
