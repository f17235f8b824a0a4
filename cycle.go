package junction

import (
	"log/slog"

	"github.com/anggasct/junction/pkg/fsm"
)

// Cycle states.
const (
	StateIdle   = "idle"
	StateGreen  = "green"
	StateYellow = "yellow"
	StateAllRed = "all_red"
)

// Cycle events.
const (
	EventSensor = "sensor_changed"
	EventTimer  = "timer_expired"
)

// buildCycle wires the phase cycle to the controller's actions. Guards and
// actions run with c.mu held.
func (c *Controller) buildCycle() (*fsm.Definition, error) {
	b := fsm.NewBuilder()

	b.State(StateIdle).Initial().
		To(StateGreen).On(EventSensor).When(c.anyActive).Do(c.startPhase).Describe("serve oldest request").
		ToSelf().On(EventSensor).Do(c.holdAllRed).Describe("nothing active")

	b.State(StateGreen).
		To(StateYellow).On(EventTimer).Do(c.showYellow).Describe("green hold elapsed")

	b.State(StateYellow).
		To(StateAllRed).On(EventTimer).Do(c.beginClearance).Describe("yellow elapsed")

	b.State(StateAllRed).
		To(StateGreen).On(EventTimer).When(c.anyActive).Do(c.startPhase).Describe("serve oldest request").
		To(StateIdle).On(EventTimer).Do(c.settle).Describe("nothing active")

	return b.Build()
}

// cycleObserver logs and counts cycle transitions.
type cycleObserver struct {
	fsm.BaseObserver
	logger  *slog.Logger
	metrics *Metrics
}

func (o *cycleObserver) OnTransition(from, to string, event fsm.Event) {
	o.metrics.transition(from, to)
	o.logger.Debug("cycle transition", "from", from, "to", to, "event", event.Name)
}

func (o *cycleObserver) OnError(err error) {
	o.logger.Error("cycle error", "error", err)
}
