// Package config loads controller settings from YAML files.
//
// A file may set the phase durations in milliseconds, the restamp policy,
// and either a built-in preset or an explicit, ordered sensor table:
//
//	durations:
//	  green_ms: 4000
//	restamp: deferred
//	sensors:
//	  - id: north_straight
//	    default: [south_straight]
//	    alternatives: [[north_left]]
//
// Documents are checked against an embedded CUE schema before the rule
// table itself is validated.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/anggasct/junction"
)

//go:embed schema.cue
var schemaSource string

// File is the on-disk layout
type File struct {
	Durations DurationsFile `yaml:"durations"`
	Restamp   string        `yaml:"restamp"`
	Preset    string        `yaml:"preset"`
	Sensors   []SensorFile  `yaml:"sensors"`
}

// DurationsFile holds optional millisecond overrides
type DurationsFile struct {
	GreenMs      *int `yaml:"green_ms"`
	YellowMs     *int `yaml:"yellow_ms"`
	InBetweenMs  *int `yaml:"in_between_ms"`
	PedestrianMs *int `yaml:"pedestrian_ms"`
}

// SensorFile is one rule table entry. A missing pedestrian flag is inferred
// from a "pedestrian" id prefix.
type SensorFile struct {
	ID           string     `yaml:"id"`
	Pedestrian   *bool      `yaml:"pedestrian"`
	Default      []string   `yaml:"default"`
	Alternatives [][]string `yaml:"alternatives"`
}

// Settings is a validated configuration
type Settings struct {
	Rules     *junction.RuleTable
	Durations junction.Durations
	Restamp   junction.RestampPolicy
	// Source names the preset or "custom" for an explicit table
	Source string
}

// Default returns the standard preset with stock durations
func Default() *Settings {
	return &Settings{
		Rules:     junction.StandardRules(),
		Durations: junction.DefaultDurations(),
		Restamp:   junction.RestampDeferred,
		Source:    "standard",
	}
}

// Apply copies the settings into cfg, keeping its collaborators
func (s *Settings) Apply(cfg junction.Config) junction.Config {
	cfg.Durations = s.Durations
	cfg.Restamp = s.Restamp
	return cfg
}

// Load reads and validates the file at path
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse validates a YAML document
func Parse(data []byte) (*Settings, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, junction.NewConfigurationError("yaml", err.Error())
	}
	return f.Settings()
}

// checkSchema unifies the raw document with #Config
func checkSchema(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return junction.NewConfigurationError("yaml", err.Error())
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return junction.NewConfigurationError("schema", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// Settings converts the file into validated settings
func (f *File) Settings() (*Settings, error) {
	s := Default()

	restamp, err := junction.ParseRestampPolicy(f.Restamp)
	if err != nil {
		return nil, err
	}
	s.Restamp = restamp

	setMillis(&s.Durations.Green, f.Durations.GreenMs)
	setMillis(&s.Durations.Yellow, f.Durations.YellowMs)
	setMillis(&s.Durations.InBetween, f.Durations.InBetweenMs)
	setMillis(&s.Durations.Pedestrian, f.Durations.PedestrianMs)
	if err := s.Durations.Validate(); err != nil {
		return nil, err
	}

	switch {
	case f.Preset != "" && len(f.Sensors) > 0:
		return nil, junction.NewConfigurationError("sensors", "cannot be combined with a preset")
	case len(f.Sensors) > 0:
		rules, err := junction.NewRuleTable(f.rules()...)
		if err != nil {
			return nil, fmt.Errorf("sensors: %w", err)
		}
		s.Rules = rules
		s.Source = "custom"
	default:
		rules, ok := junction.Preset(f.Preset)
		if !ok {
			return nil, junction.NewConfigurationError("preset", fmt.Sprintf("unknown preset %q", f.Preset))
		}
		s.Rules = rules
		if f.Preset != "" {
			s.Source = f.Preset
		}
	}
	return s, nil
}

func (f *File) rules() []junction.Rule {
	out := make([]junction.Rule, len(f.Sensors))
	for i, sf := range f.Sensors {
		id := junction.ParseSensorID(sf.ID)
		pedestrian := strings.HasPrefix(string(id), "pedestrian")
		if sf.Pedestrian != nil {
			pedestrian = *sf.Pedestrian
		}

		r := junction.Rule{
			Sensor:     id,
			Pedestrian: pedestrian,
			Default:    toIDs(sf.Default),
		}
		for _, alt := range sf.Alternatives {
			r.Alternatives = append(r.Alternatives, toIDs(alt))
		}
		out[i] = r
	}
	return out
}

func toIDs(names []string) []junction.SensorID {
	ids := make([]junction.SensorID, len(names))
	for i, n := range names {
		ids[i] = junction.ParseSensorID(n)
	}
	return ids
}

func setMillis(dst *time.Duration, ms *int) {
	if ms != nil {
		*dst = junction.Duration(*ms)
	}
}
