package junction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction/pkg/clock"
)

func TestRegistry_InitialState(t *testing.T) {
	clk := clock.NewManual()
	r := NewRegistry(ids(NorthStraight, NorthLeft), clk)

	assert.Equal(t, ids(NorthStraight, NorthLeft), r.IDs())
	assert.False(t, r.AnyActive())
	_, ok := r.Oldest()
	assert.False(t, ok)

	s, ok := r.State(NorthLeft)
	require.True(t, ok)
	assert.False(t, s.Active)
	assert.Equal(t, clk.Now().UnixMilli(), s.Timestamp)
}

func TestRegistry_TimestampsStrictlyIncreaseOnStalledClock(t *testing.T) {
	clk := clock.NewManual()
	r := NewRegistry(ids(NorthStraight, NorthLeft, SouthLeft), clk)

	t1, err := r.SetActive(NorthStraight, true)
	require.NoError(t, err)
	t2, err := r.SetActive(NorthLeft, true)
	require.NoError(t, err)
	t3, err := r.SetActive(NorthStraight, false)
	require.NoError(t, err)

	assert.Equal(t, clk.Now().UnixMilli(), t1)
	assert.Equal(t, t1+1, t2)
	assert.Equal(t, t2+1, t3)
	assert.Equal(t, t3, r.LastAssigned())
}

func TestRegistry_TimestampsSurviveClockGoingBackwards(t *testing.T) {
	clk := clock.NewManual()
	r := NewRegistry(ids(NorthStraight, NorthLeft), clk)

	clk.Advance(10 * time.Second)
	t1, _ := r.SetActive(NorthStraight, true)

	clk.Set(clock.Epoch)
	t2, _ := r.SetActive(NorthLeft, true)

	assert.Greater(t, t2, t1)
	assert.Equal(t, t1+1, t2)
}

func TestRegistry_UsesClockWhenItMovesForward(t *testing.T) {
	clk := clock.NewManual()
	r := NewRegistry(ids(NorthStraight), clk)

	clk.Advance(250 * time.Millisecond)
	ts, _ := r.SetActive(NorthStraight, true)

	assert.Equal(t, clock.Epoch.Add(250*time.Millisecond).UnixMilli(), ts)
}

func TestRegistry_UnknownSensorIsRejected(t *testing.T) {
	clk := clock.NewManual()
	r := NewRegistry(ids(NorthStraight), clk)
	before := r.Snapshot()

	ts, err := r.SetActive("bogus", true)

	assert.Zero(t, ts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSensor)

	var sensorErr *SensorError
	require.ErrorAs(t, err, &sensorErr)
	assert.Equal(t, ErrCodeUnknownSensor, sensorErr.Code)
	assert.Equal(t, SensorID("bogus"), sensorErr.Sensor)

	assert.Equal(t, before, r.Snapshot())
	assert.Zero(t, r.LastAssigned(), "rejected updates consume no timestamp")
}

func TestRegistry_OldestPicksSmallestTimestamp(t *testing.T) {
	clk := clock.NewManual()
	r := NewRegistry(ids(NorthStraight, NorthLeft, SouthLeft), clk)

	_, _ = r.SetActive(SouthLeft, true)
	clk.Advance(time.Millisecond)
	_, _ = r.SetActive(NorthStraight, true)

	oldest, ok := r.Oldest()
	require.True(t, ok)
	assert.Equal(t, SouthLeft, oldest)

	_, _ = r.SetActive(SouthLeft, false)
	oldest, _ = r.Oldest()
	assert.Equal(t, NorthStraight, oldest)
}

func TestRegistry_StampSharesOneFreshTimestamp(t *testing.T) {
	clk := clock.NewManual()
	r := NewRegistry(ids(NorthStraight, NorthLeft, SouthLeft), clk)

	_, _ = r.SetActive(NorthLeft, true)
	_, _ = r.SetActive(NorthStraight, true)
	ts := r.Stamp(NorthStraight, NorthLeft, "bogus")

	assert.Equal(t, ts, r.Timestamp(NorthStraight))
	assert.Equal(t, ts, r.Timestamp(NorthLeft))
	assert.True(t, r.Active(NorthLeft), "stamping keeps the activation flag")

	oldest, _ := r.Oldest()
	assert.Equal(t, NorthStraight, oldest, "equal timestamps go to the sensor listed first")
}

func TestRegistry_ActiveCount(t *testing.T) {
	r := NewRegistry(ids(NorthStraight, NorthLeft), clock.NewManual())
	_, _ = r.SetActive(NorthStraight, true)
	_, _ = r.SetActive(NorthLeft, true)
	_, _ = r.SetActive(NorthLeft, false)

	assert.Equal(t, 1, r.ActiveCount())
	assert.True(t, r.Has(NorthLeft))
	assert.False(t, r.Has("bogus"))
	assert.False(t, r.Active("bogus"))
	assert.Zero(t, r.Timestamp("bogus"))
}

func TestParseSensorID(t *testing.T) {
	tests := []struct {
		in   string
		want SensorID
	}{
		{"north_left", NorthLeft},
		{"  North_Left\n", NorthLeft},
		{"PEDESTRIAN", Pedestrian},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSensorID(tt.in), tt.in)
	}
}

func TestSensorID_Valid(t *testing.T) {
	assert.True(t, NorthLeft.Valid())
	assert.True(t, SensorID("lane2").Valid())
	assert.False(t, SensorID("").Valid())
	assert.False(t, SensorID("2lane").Valid())
	assert.False(t, SensorID("North").Valid())
	assert.False(t, SensorID("a-b").Valid())
}
