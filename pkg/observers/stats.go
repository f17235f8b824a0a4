package observers

import (
	"sync"
	"time"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/clock"
)

// PhaseStats collects per-sensor green statistics from published light
// states
type PhaseStats struct {
	clock clock.Clock

	mutex      sync.RWMutex
	greens     map[junction.SensorID]int
	greenTime  map[junction.SensorID]time.Duration
	greenSince map[junction.SensorID]time.Time
	phases     int
	clearances int
}

// NewPhaseStats creates a stats collector timed by clk
func NewPhaseStats(clk clock.Clock) *PhaseStats {
	return &PhaseStats{
		clock:      clk,
		greens:     make(map[junction.SensorID]int),
		greenTime:  make(map[junction.SensorID]time.Duration),
		greenSince: make(map[junction.SensorID]time.Time),
	}
}

// Listen records s
func (o *PhaseStats) Listen(s junction.LightState) {
	now := o.clock.Now()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	green := s.With(junction.Green)
	if len(green) > 0 {
		o.phases++
	}
	if s.IsAllRed() {
		o.clearances++
	}

	// green time runs from the green state to the next state
	for id, since := range o.greenSince {
		o.greenTime[id] += now.Sub(since)
		delete(o.greenSince, id)
	}
	for _, id := range green {
		o.greens[id]++
		o.greenSince[id] = now
	}
}

// GreenCounts returns how many phases each sensor was green in
func (o *PhaseStats) GreenCounts() map[junction.SensorID]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[junction.SensorID]int, len(o.greens))
	for id, n := range o.greens {
		result[id] = n
	}
	return result
}

// GreenTime returns the total green time per sensor, counting a green that
// is still showing up to now
func (o *PhaseStats) GreenTime() map[junction.SensorID]time.Duration {
	now := o.clock.Now()

	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[junction.SensorID]time.Duration, len(o.greenTime))
	for id, d := range o.greenTime {
		result[id] = d
	}
	for id, since := range o.greenSince {
		result[id] += now.Sub(since)
	}
	return result
}

// Phases returns the number of green states seen
func (o *PhaseStats) Phases() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.phases
}

// Clearances returns the number of all-red states seen
func (o *PhaseStats) Clearances() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.clearances
}

// Reset clears all statistics
func (o *PhaseStats) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.greens = make(map[junction.SensorID]int)
	o.greenTime = make(map[junction.SensorID]time.Duration)
	o.greenSince = make(map[junction.SensorID]time.Time)
	o.phases = 0
	o.clearances = 0
}
