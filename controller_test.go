package junction

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	at    int
	state string
}

func timeline(items []emission) []step {
	out := make([]step, len(items))
	for i, e := range items {
		out[i] = step{at: int(e.At / time.Millisecond), state: e.State.String()}
	}
	return out
}

// checkLights returns a non-empty reason when s is not a complete, permitted
// light state for rules.
func checkLights(rules *RuleTable, s LightState) string {
	switch {
	case s.Len() != rules.Len():
		return "state does not cover every sensor"
	case !rules.Permits(s.With(Green)):
		return "conflicting greens: " + s.String()
	case !rules.Permits(s.With(Yellow)):
		return "conflicting yellows: " + s.String()
	case len(s.With(Green)) > 0 && len(s.With(Yellow)) > 0:
		return "green and yellow at once: " + s.String()
	}
	return ""
}

func TestController_PublishesAllRedOnStart(t *testing.T) {
	h := newHarness(t, StandardRules())

	require.Equal(t, 1, h.rec.count())
	first := h.rec.last()
	assert.True(t, first.State.IsAllRed())
	assert.Equal(t, 9, first.State.Len())
	assert.Equal(t, StateIdle, h.ctrl.State())

	_, inFlight := h.ctrl.Phase()
	assert.False(t, inFlight)
	assert.Zero(t, h.clock.Pending())
}

func TestController_ServesImmediatelyWhenIdle(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(NorthStraight, true)

	assert.Equal(t, ids(NorthStraight, SouthStraight), h.greens())
	assert.Equal(t, StateGreen, h.ctrl.State())
	assert.Equal(t, time.Duration(0), h.rec.last().At)

	phase, ok := h.ctrl.Phase()
	require.True(t, ok)
	assert.Equal(t, NorthStraight, phase.Primary)
	assert.Equal(t, ids(SouthStraight), phase.Companions)
}

func TestController_CycleTimingIsExact(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(NorthStraight, true)
	h.advance(100)
	h.ctrl.ReportSensor(NorthStraight, false)

	h.advance(3899)
	assert.Equal(t, StateGreen, h.ctrl.State())
	h.advance(1)
	assert.Equal(t, StateYellow, h.ctrl.State())
	h.advance(999)
	assert.Equal(t, StateYellow, h.ctrl.State())
	h.advance(1)
	assert.Equal(t, StateAllRed, h.ctrl.State())
	h.advance(999)
	assert.Equal(t, StateAllRed, h.ctrl.State())
	h.advance(1)
	assert.Equal(t, StateIdle, h.ctrl.State())

	assert.Equal(t, []step{
		{0, "all red"},
		{0, "green: north_straight south_straight"},
		{4000, "yellow: north_straight south_straight"},
		{5000, "all red"},
	}, timeline(h.rec.all()), "settling to idle publishes nothing")
	assert.Zero(t, h.clock.Pending())
}

func TestController_IdleIsQuiet(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(NorthLeft, true)
	h.ctrl.ReportSensor(NorthLeft, false)
	h.advance(6000)
	require.Equal(t, StateIdle, h.ctrl.State())
	before := h.rec.count()

	h.advance(60_000)

	assert.Equal(t, before, h.rec.count())
	assert.Zero(t, h.clock.Pending())
}

func TestController_IdleReportWithNothingActiveRepublishesAllRed(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(EastLeft, false)

	assert.Equal(t, 2, h.rec.count())
	assert.True(t, h.rec.last().State.IsAllRed())
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Zero(t, h.clock.Pending())
}

func TestController_ReportsDuringPhaseWaitForSelection(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(NorthStraight, true)
	h.advance(100)
	h.ctrl.ReportSensor(EastLeft, true)
	h.ctrl.ReportSensor(NorthStraight, false)

	assert.Equal(t, 2, h.rec.count())
	assert.Equal(t, ids(NorthStraight, SouthStraight), h.greens(),
		"a phase runs its full hold even after its sensor clears")

	h.advance(5900)
	assert.Equal(t, ids(EastLeft, WestLeft), h.greens())
	assert.Equal(t, 6000*time.Millisecond, h.rec.last().At)
}

func TestController_EligibleExactlyAfterClearance(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(SouthLeft, true)
	h.advance(10)
	h.ctrl.ReportSensor(SouthLeft, false)
	h.advance(5989)
	h.ctrl.ReportSensor(WestStraight, true)
	require.Equal(t, StateAllRed, h.ctrl.State())

	h.advance(1)

	assert.Equal(t, ids(EastStraight, WestStraight), h.greens())
	assert.Equal(t, 6000*time.Millisecond, h.rec.last().At)
}

func TestController_OldestRequestWins(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(EastStraight, true)
	h.advance(50)
	h.ctrl.ReportSensor(NorthLeft, true)
	h.advance(50)
	h.ctrl.ReportSensor(NorthStraight, true)
	h.advance(100)
	h.ctrl.ReportSensor(EastStraight, false)

	h.advance(5800)

	phase, ok := h.ctrl.Phase()
	require.True(t, ok)
	assert.Equal(t, NorthLeft, phase.Primary)
	assert.Equal(t, ids(NorthStraight, NorthLeft), h.greens())
}

func TestController_DeferredRestampRotatesHeldSensors(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(NorthStraight, true)
	h.advance(1000)
	h.ctrl.ReportSensor(EastStraight, true)

	h.advance(5000)
	assert.Equal(t, ids(EastStraight, WestStraight), h.greens(), "t=6000")

	h.advance(6000)
	assert.Equal(t, ids(NorthStraight, SouthStraight), h.greens(), "t=12000")

	h.advance(6000)
	assert.Equal(t, ids(EastStraight, WestStraight), h.greens(), "t=18000")
}

func TestController_EagerRestampStampsAtPhaseStart(t *testing.T) {
	h := newHarness(t, StandardRules(), func(c *Config) { c.Restamp = RestampEager })

	h.ctrl.ReportSensor(NorthStraight, true)
	start := h.ctrl.Sensors()[0]
	assert.Equal(t, NorthStraight, start.ID)
	assert.Equal(t, h.clock.Now().UnixMilli()+1, start.Timestamp,
		"eager restamp renews the primary as its phase starts")

	h.advance(1000)
	h.ctrl.ReportSensor(EastStraight, true)

	h.advance(5000)
	assert.Equal(t, ids(NorthStraight, SouthStraight), h.greens(), "t=6000")

	h.advance(6000)
	assert.Equal(t, ids(EastStraight, WestStraight), h.greens(), "t=12000")
}

func TestController_PedestrianHold(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(Pedestrian, true)
	h.advance(100)
	h.ctrl.ReportSensor(Pedestrian, false)
	h.advance(7900)

	assert.Equal(t, []step{
		{0, "all red"},
		{0, "green: pedestrian"},
		{6000, "yellow: pedestrian"},
		{7000, "all red"},
	}, timeline(h.rec.all()))
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_HoldFollowsPrimaryOnly(t *testing.T) {
	t.Run("vehicle primary with crosswalk companion", func(t *testing.T) {
		h := newHarness(t, CrosswalkRules())

		h.ctrl.ReportSensor(SouthLeft, true)
		h.advance(10)
		h.ctrl.ReportSensor(NorthStraight, true)
		h.advance(10)
		h.ctrl.ReportSensor(PedestrianEast, true)
		h.advance(10)
		h.ctrl.ReportSensor(SouthLeft, false)

		h.advance(5970)
		assert.Equal(t, ids(NorthStraight, PedestrianEast), h.greens())

		h.advance(3999)
		assert.Equal(t, StateGreen, h.ctrl.State())
		h.advance(1)
		assert.Equal(t, StateYellow, h.ctrl.State(), "green hold ends at t=10000")
	})

	t.Run("crosswalk primary with vehicle companion", func(t *testing.T) {
		h := newHarness(t, CrosswalkRules())

		h.ctrl.ReportSensor(SouthLeft, true)
		h.advance(10)
		h.ctrl.ReportSensor(PedestrianEast, true)
		h.advance(10)
		h.ctrl.ReportSensor(NorthStraight, true)
		h.advance(10)
		h.ctrl.ReportSensor(SouthLeft, false)

		h.advance(5970)
		phase, ok := h.ctrl.Phase()
		require.True(t, ok)
		assert.Equal(t, PedestrianEast, phase.Primary)
		assert.Equal(t, ids(NorthStraight, PedestrianEast), h.greens())

		h.advance(5999)
		assert.Equal(t, StateGreen, h.ctrl.State())
		h.advance(1)
		assert.Equal(t, StateYellow, h.ctrl.State(), "pedestrian hold ends at t=12000")
	})
}

func TestController_EveryActiveSensorIsEventuallyServed(t *testing.T) {
	rules := StandardRules()
	h := newHarness(t, rules)

	served := map[SensorID]bool{}
	h.ctrl.Subscribe(func(s LightState) {
		for _, id := range s.With(Green) {
			served[id] = true
		}
	})

	for _, id := range rules.Sensors() {
		h.ctrl.ReportSensor(id, true)
	}
	h.advance(80_000)

	for _, id := range rules.Sensors() {
		assert.True(t, served[id], "%s never turned green", id)
	}
}

func TestController_LightsAreAlwaysCompleteAndPermitted(t *testing.T) {
	for _, tc := range []struct {
		name  string
		rules *RuleTable
	}{
		{"standard", StandardRules()},
		{"crosswalk", CrosswalkRules()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.rules)

			var violations []string
			h.ctrl.Subscribe(func(s LightState) {
				if reason := checkLights(tc.rules, s); reason != "" {
					violations = append(violations, reason)
				}
			})

			rng := rand.New(rand.NewSource(42))
			sensors := tc.rules.Sensors()
			for i := 0; i < 2000; i++ {
				if rng.Intn(3) == 0 {
					h.advance(rng.Intn(2500))
					continue
				}
				h.ctrl.ReportSensor(sensors[rng.Intn(len(sensors))], rng.Intn(2) == 0)
			}
			h.advance(60_000)

			assert.Empty(t, violations)
			assert.Greater(t, h.rec.count(), 100)
		})
	}
}

func TestController_UnknownSensorIsIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	h := newHarness(t, StandardRules(), func(c *Config) { c.Metrics = metrics })
	before := h.ctrl.Sensors()

	err = h.ctrl.Report("north_center", true)

	assert.ErrorIs(t, err, ErrUnknownSensor)
	assert.Equal(t, before, h.ctrl.Sensors())
	assert.Equal(t, 1, h.rec.count())
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SensorReports.WithLabelValues("unknown")))
}

func TestController_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	h := newHarness(t, StandardRules(), func(c *Config) { c.Metrics = metrics })
	h.ctrl.ReportSensor(NorthStraight, true)
	h.ctrl.ReportSensor(EastLeft, true)
	h.advance(6000)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SensorReports.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveSensors))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PhasesStarted.WithLabelValues("north_straight")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PhasesStarted.WithLabelValues("east_left")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues(StateIdle, StateGreen)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions.WithLabelValues(StateAllRed, StateGreen)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.WaitSeconds))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestController_Close(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(NorthStraight, true)
	require.Equal(t, 1, h.clock.Pending())

	require.NoError(t, h.ctrl.Close())
	assert.Zero(t, h.clock.Pending())

	before := h.rec.count()
	h.advance(30_000)
	assert.ErrorIs(t, h.ctrl.Report(EastLeft, true), ErrClosed)
	assert.Equal(t, before, h.rec.count())

	assert.NoError(t, h.ctrl.Close(), "close is idempotent")
	_, inFlight := h.ctrl.Phase()
	assert.False(t, inFlight)
}

func TestController_StaleTimerIsDropped(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.ReportSensor(NorthStraight, true)
	count := h.rec.count()

	h.ctrl.expire(h.ctrl.gen - 1)

	assert.Equal(t, StateGreen, h.ctrl.State())
	assert.Equal(t, count, h.rec.count())
}

func TestController_SubscribeAndUnsubscribe(t *testing.T) {
	h := newHarness(t, StandardRules())

	var got []LightState
	sub := h.ctrl.Subscribe(func(s LightState) { got = append(got, s) })
	assert.Empty(t, got, "subscribing does not replay the current state")

	h.ctrl.ReportSensor(WestLeft, true)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(h.ctrl.Current()))

	assert.True(t, h.ctrl.Unsubscribe(sub))
	assert.False(t, h.ctrl.Unsubscribe(sub))
	h.advance(4000)
	assert.Len(t, got, 1)
}

func TestController_PanickingListenerDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.ctrl.Subscribe(func(LightState) { panic("boom") })
	var got int
	h.ctrl.Subscribe(func(LightState) { got++ })

	h.ctrl.ReportSensor(NorthLeft, true)
	h.advance(6000)

	assert.Equal(t, 4, got)
	assert.Equal(t, StateGreen, h.ctrl.State())
}

func TestController_SensorsSnapshot(t *testing.T) {
	h := newHarness(t, StandardRules())

	h.advance(500)
	h.ctrl.ReportSensor(SouthLeft, true)

	for _, s := range h.ctrl.Sensors() {
		if s.ID == SouthLeft {
			assert.True(t, s.Active)
			assert.Equal(t, h.clock.Now().UnixMilli(), s.Timestamp)
			continue
		}
		assert.False(t, s.Active)
	}
	assert.Same(t, h.ctrl.Rules(), h.ctrl.Rules())
}

func TestController_Cycle(t *testing.T) {
	h := newHarness(t, StandardRules())

	def := h.ctrl.Cycle()
	assert.Equal(t, StateIdle, def.Initial())
	assert.ElementsMatch(t, []string{StateIdle, StateGreen, StateYellow, StateAllRed}, def.States())
	assert.Len(t, def.Transitions(StateAllRed), 2)
}

func TestController_ConcurrentReports(t *testing.T) {
	rules := StandardRules()
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	cfg.Durations = Durations{
		Green:      2 * time.Millisecond,
		Yellow:     time.Millisecond,
		InBetween:  time.Millisecond,
		Pedestrian: 3 * time.Millisecond,
	}

	var violations atomic.Int32
	ctrl, err := New(rules, cfg, func(s LightState) {
		if checkLights(rules, s) != "" {
			violations.Add(1)
		}
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	sensors := rules.Sensors()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				ctrl.ReportSensor(sensors[rng.Intn(len(sensors))], rng.Intn(2) == 0)
				_ = ctrl.Current()
				if i%20 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	require.NoError(t, ctrl.Close())
	assert.Zero(t, violations.Load())
}
