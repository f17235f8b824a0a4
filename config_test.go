package junction

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 4*time.Second, cfg.Durations.Green)
	assert.Equal(t, time.Second, cfg.Durations.Yellow)
	assert.Equal(t, time.Second, cfg.Durations.InBetween)
	assert.Equal(t, 6*time.Second, cfg.Durations.Pedestrian)
	assert.Equal(t, RestampDeferred, cfg.Restamp)
}

func TestDurations_Validate(t *testing.T) {
	d := DefaultDurations()
	d.InBetween = 0

	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "durations.in_between", cfgErr.Field)
}

func TestParseRestampPolicy(t *testing.T) {
	p, err := ParseRestampPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RestampDeferred, p)

	p, err = ParseRestampPolicy("eager")
	require.NoError(t, err)
	assert.Equal(t, RestampEager, p)
	assert.Equal(t, "eager", p.String())

	_, err = ParseRestampPolicy("lazy")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	assert.Equal(t, "RestampPolicy(7)", RestampPolicy(7).String())
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	cfg := DefaultConfig()
	cfg.Durations.Yellow = -time.Second
	_, err = New(StandardRules(), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	cfg = DefaultConfig()
	cfg.Restamp = RestampPolicy(9)
	_, err = New(StandardRules(), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	ec.Add(nil)
	assert.False(t, ec.HasErrors())
	assert.NoError(t, ec.Err())

	ec.Add(NewRuleError("a", "first"))
	ec.Add(NewConfigurationError("x", "second"))

	assert.True(t, ec.HasErrors())
	assert.Len(t, ec.Errors(), 2)
	assert.ErrorIs(t, ec.Err(), ErrInvalidRule)
	assert.ErrorIs(t, ec.Err(), ErrInvalidConfiguration)
	assert.Equal(t, "rule error [a]: first; configuration error [x]: second", ec.Error())
}
