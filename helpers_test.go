package junction

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction/pkg/clock"
)

// emission is one published light state and when it was published
type emission struct {
	At    time.Duration
	State LightState
}

// testRecorder captures published light states relative to the clock epoch
type testRecorder struct {
	mutex sync.Mutex
	clock clock.Clock
	start time.Time
	items []emission
}

func newTestRecorder(clk clock.Clock) *testRecorder {
	return &testRecorder{clock: clk, start: clk.Now()}
}

func (r *testRecorder) listen(s LightState) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.items = append(r.items, emission{At: r.clock.Now().Sub(r.start), State: s})
}

func (r *testRecorder) all() []emission {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]emission(nil), r.items...)
}

func (r *testRecorder) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.items)
}

func (r *testRecorder) last() emission {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.items[len(r.items)-1]
}

func (r *testRecorder) reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.items = nil
}

type testHarness struct {
	ctrl  *Controller
	clock *clock.Manual
	rec   *testRecorder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, rules *RuleTable, mutate ...func(*Config)) *testHarness {
	t.Helper()

	clk := clock.NewManual()
	rec := newTestRecorder(clk)

	cfg := DefaultConfig()
	cfg.Clock = clk
	cfg.Logger = quietLogger()
	for _, m := range mutate {
		m(&cfg)
	}

	ctrl, err := New(rules, cfg, rec.listen)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	return &testHarness{ctrl: ctrl, clock: clk, rec: rec}
}

func (h *testHarness) advance(ms int) {
	h.clock.Advance(Duration(ms))
}

func (h *testHarness) greens() []SensorID {
	return h.ctrl.Current().With(Green)
}

// fakeView is a SensorView backed by maps
type fakeView struct {
	active map[SensorID]bool
	stamps map[SensorID]int64
}

func newFakeView() *fakeView {
	return &fakeView{active: map[SensorID]bool{}, stamps: map[SensorID]int64{}}
}

func (v *fakeView) set(id SensorID, ts int64) *fakeView {
	v.active[id] = true
	v.stamps[id] = ts
	return v
}

func (v *fakeView) Active(id SensorID) bool { return v.active[id] }

func (v *fakeView) Timestamp(id SensorID) int64 { return v.stamps[id] }

func ids(s ...SensorID) []SensorID { return s }
