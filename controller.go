package junction

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anggasct/junction/pkg/clock"
	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/notify"
)

// Controller schedules the phases of one intersection.
//
// Sensor reports and timer expirations are serialized behind a single
// mutex, so every phase transition is atomic with respect to concurrent
// reports. Listeners are called synchronously while that mutex is held;
// they must not call back into the controller on the same goroutine.
type Controller struct {
	mu sync.Mutex

	rules    *RuleTable
	registry *Registry
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics

	channel *notify.Channel[LightState]
	machine *fsm.Machine

	lights  LightState
	phase   *Phase
	restamp []SensorID
	timer   clock.Timer
	gen     uint64
	closed  bool
}

// New creates a controller for rules. Listeners given here are subscribed
// before the initial all-red state is published, so they observe it.
func New(rules *RuleTable, cfg Config, listeners ...func(LightState)) (*Controller, error) {
	if rules == nil || rules.Len() == 0 {
		return nil, NewConfigurationError("rules", "rule table is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Controller{
		rules:    rules,
		registry: NewRegistry(rules.Sensors(), cfg.Clock),
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "controller"),
		metrics:  cfg.Metrics,
		channel:  notify.New[LightState](),
	}
	c.channel.OnPanic(func(sub notify.Subscription, r any) {
		c.logger.Error("light listener panicked", "subscription", sub.ID(), "panic", r)
	})

	def, err := c.buildCycle()
	if err != nil {
		return nil, fmt.Errorf("building phase cycle: %w", err)
	}
	c.machine = def.NewMachine()
	c.machine.AddObserver(&cycleObserver{logger: c.logger, metrics: c.metrics})
	if err := c.machine.Start(); err != nil {
		return nil, fmt.Errorf("starting phase cycle: %w", err)
	}

	for _, fn := range listeners {
		c.channel.Subscribe(fn)
	}

	c.mu.Lock()
	c.emit(AllRed(c.registry.IDs()))
	c.mu.Unlock()

	return c, nil
}

// ReportSensor records a sensor change. When no phase is in flight the next
// phase is selected immediately; otherwise the change is picked up by the
// next selection. Unknown sensors are logged and ignored.
func (c *Controller) ReportSensor(id SensorID, active bool) {
	_ = c.Report(id, active)
}

// Report is ReportSensor returning why a report was dropped: a *SensorError
// for unknown sensors or ErrClosed after Close.
func (c *Controller) Report(id SensorID, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.metrics.sensorReport("closed")
		c.logger.Debug("sensor report after close ignored", "sensor", id)
		return ErrClosed
	}

	ts, err := c.registry.SetActive(id, active)
	if err != nil {
		c.metrics.sensorReport("unknown")
		c.logger.Warn("sensor report ignored", "sensor", id, "error", err)
		return err
	}
	c.metrics.sensorReport("accepted")
	c.metrics.activeSensors(c.registry.ActiveCount())
	c.logger.Debug("sensor changed", "sensor", id, "active", active, "timestamp", ts)

	if c.phase == nil {
		c.machine.HandleEvent(EventSensor, id)
	}
	return nil
}

// Subscribe registers fn for every light state published from now on.
func (c *Controller) Subscribe(fn func(LightState)) notify.Subscription {
	return c.channel.Subscribe(fn)
}

// Unsubscribe removes a listener.
func (c *Controller) Unsubscribe(sub notify.Subscription) bool {
	return c.channel.Unsubscribe(sub)
}

// Current returns the last published light state.
func (c *Controller) Current() LightState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lights
}

// State returns the cycle state: idle, green, yellow or all_red.
func (c *Controller) State() string {
	return c.machine.Current()
}

// Phase returns the phase in flight, if any.
func (c *Controller) Phase() (Phase, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == nil {
		return Phase{}, false
	}
	return *c.phase, true
}

// Sensors returns a snapshot of every sensor.
func (c *Controller) Sensors() []SensorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Snapshot()
}

// Rules returns the controller's rule table.
func (c *Controller) Rules() *RuleTable {
	return c.rules
}

// Cycle returns the phase cycle definition.
func (c *Controller) Cycle() *fsm.Definition {
	return c.machine.Definition()
}

// AddCycleObserver attaches o to the phase cycle. Observers run with the
// controller locked.
func (c *Controller) AddCycleObserver(o fsm.Observer) {
	c.machine.AddObserver(o)
}

// Close cancels the pending timer and drops every listener. Later reports
// are ignored. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimer()
	c.phase = nil
	c.restamp = nil
	c.channel.Clear()
	if err := c.machine.Stop(); err != nil {
		return fmt.Errorf("stopping phase cycle: %w", err)
	}
	return nil
}

func (c *Controller) anyActive(*fsm.Context) bool {
	return c.registry.AnyActive()
}

func (c *Controller) startPhase(*fsm.Context) error {
	if c.cfg.Restamp == RestampDeferred && len(c.restamp) > 0 {
		c.registry.Stamp(c.restamp...)
		c.restamp = nil
	}

	primary, ok := c.registry.Oldest()
	if !ok {
		return fmt.Errorf("no active sensor to serve")
	}
	waited := c.clock.Now().UnixMilli() - c.registry.Timestamp(primary)

	phase := c.rules.BuildPhase(primary, c.registry)
	members := phase.Members()
	if c.cfg.Restamp == RestampEager {
		c.registry.Stamp(members...)
	} else {
		c.restamp = members
	}

	hold := c.cfg.Durations.Green
	if c.rules.IsPedestrian(primary) {
		hold = c.cfg.Durations.Pedestrian
	}

	c.phase = &phase
	c.metrics.phaseStarted(primary, waited)
	c.logger.Info("phase started", "primary", primary, "phase", phase.String(), "hold", hold)

	c.emit(PhaseLights(c.registry.IDs(), phase))
	c.schedule(hold)
	return nil
}

func (c *Controller) holdAllRed(*fsm.Context) error {
	c.emit(AllRed(c.registry.IDs()))
	return nil
}

func (c *Controller) showYellow(*fsm.Context) error {
	c.emit(c.lights.Recolor(Green, Yellow))
	c.schedule(c.cfg.Durations.Yellow)
	return nil
}

func (c *Controller) beginClearance(*fsm.Context) error {
	c.emit(AllRed(c.registry.IDs()))
	c.schedule(c.cfg.Durations.InBetween)
	return nil
}

func (c *Controller) settle(*fsm.Context) error {
	c.phase = nil
	c.restamp = nil
	c.timer = nil
	c.logger.Debug("controller idle")
	return nil
}

func (c *Controller) emit(s LightState) {
	c.lights = s
	c.channel.Publish(s)
}

func (c *Controller) schedule(d time.Duration) {
	c.stopTimer()
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(d, func() { c.expire(gen) })
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expire runs on the timer's goroutine. Callbacks from a superseded timer
// or after Close are dropped.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen || c.phase == nil {
		return
	}
	c.timer = nil
	c.machine.HandleEvent(EventTimer, nil)
}
