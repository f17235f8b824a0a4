package junction

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/anggasct/junction/pkg/clock"
)

// SensorID names a lane movement or pedestrian request, e.g. north_straight.
type SensorID string

// Sensors shipped with the built-in rule tables.
const (
	NorthStraight SensorID = "north_straight"
	NorthLeft     SensorID = "north_left"
	SouthStraight SensorID = "south_straight"
	SouthLeft     SensorID = "south_left"
	EastStraight  SensorID = "east_straight"
	EastLeft      SensorID = "east_left"
	WestStraight  SensorID = "west_straight"
	WestLeft      SensorID = "west_left"

	Pedestrian     SensorID = "pedestrian"
	PedestrianEast SensorID = "pedestrian_east"
	PedestrianWest SensorID = "pedestrian_west"
)

var sensorIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ParseSensorID normalizes external input (NFC, trimmed, lower case) into a
// SensorID. It does not check membership in any rule table.
func ParseSensorID(s string) SensorID {
	return SensorID(strings.ToLower(strings.TrimSpace(norm.NFC.String(s))))
}

// Valid reports whether the id is well formed.
func (id SensorID) Valid() bool {
	return sensorIDPattern.MatchString(string(id))
}

func (id SensorID) String() string {
	return string(id)
}

// SensorState is the registry's view of one sensor.
type SensorState struct {
	ID     SensorID `json:"id"`
	Active bool     `json:"active"`
	// Timestamp is the last change in monotonic milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// SensorView is the read side of a registry, used for phase construction.
type SensorView interface {
	Active(id SensorID) bool
	Timestamp(id SensorID) int64
}

// Registry holds the activation flag and last-change timestamp of a fixed
// set of sensors.
//
// Timestamps handed out by SetActive and Stamp are strictly increasing even
// when the clock stalls or steps backwards; they are the tie-breaker for
// "longest waiting wins".
//
// Registry is not safe for concurrent use; the Controller serializes access.
type Registry struct {
	clock  clock.Clock
	ids    []SensorID
	index  map[SensorID]int
	states []SensorState
	last   int64
}

// NewRegistry creates a registry for ids, all inactive and stamped with the
// current time. Order of ids is the tie-break order for Oldest.
func NewRegistry(ids []SensorID, clk clock.Clock) *Registry {
	now := clk.Now().UnixMilli()

	r := &Registry{
		clock:  clk,
		ids:    append([]SensorID(nil), ids...),
		index:  make(map[SensorID]int, len(ids)),
		states: make([]SensorState, len(ids)),
	}
	for i, id := range r.ids {
		r.index[id] = i
		r.states[i] = SensorState{ID: id, Timestamp: now}
	}
	return r
}

// IDs returns the sensor ids in registry order.
func (r *Registry) IDs() []SensorID {
	return append([]SensorID(nil), r.ids...)
}

// Has reports whether id belongs to the registry.
func (r *Registry) Has(id SensorID) bool {
	_, ok := r.index[id]
	return ok
}

// SetActive records a sensor change and returns the timestamp assigned to it.
// Unknown ids are rejected without touching any state.
func (r *Registry) SetActive(id SensorID, active bool) (int64, error) {
	i, ok := r.index[id]
	if !ok {
		return 0, NewUnknownSensorError(id)
	}

	ts := r.next()
	r.states[i] = SensorState{ID: id, Active: active, Timestamp: ts}
	return ts, nil
}

// Stamp renews the wait clock of ids with one fresh timestamp, leaving their
// activation flags alone. Unknown ids are skipped.
func (r *Registry) Stamp(ids ...SensorID) int64 {
	ts := r.next()
	for _, id := range ids {
		if i, ok := r.index[id]; ok {
			r.states[i].Timestamp = ts
		}
	}
	return ts
}

// LastAssigned returns the most recent timestamp handed out.
func (r *Registry) LastAssigned() int64 {
	return r.last
}

func (r *Registry) next() int64 {
	ts := r.clock.Now().UnixMilli()
	if ts <= r.last {
		ts = r.last + 1
	}
	r.last = ts
	return ts
}

// State returns the state of one sensor.
func (r *Registry) State(id SensorID) (SensorState, bool) {
	i, ok := r.index[id]
	if !ok {
		return SensorState{}, false
	}
	return r.states[i], true
}

// Active implements SensorView. Unknown ids are inactive.
func (r *Registry) Active(id SensorID) bool {
	s, ok := r.State(id)
	return ok && s.Active
}

// Timestamp implements SensorView. Unknown ids report zero.
func (r *Registry) Timestamp(id SensorID) int64 {
	s, _ := r.State(id)
	return s.Timestamp
}

// Oldest returns the active sensor with the smallest timestamp; ties go to
// the sensor listed first.
func (r *Registry) Oldest() (SensorID, bool) {
	found := false
	var oldest SensorState
	for _, s := range r.states {
		if !s.Active {
			continue
		}
		if !found || s.Timestamp < oldest.Timestamp {
			oldest = s
			found = true
		}
	}
	return oldest.ID, found
}

// AnyActive reports whether at least one sensor is active.
func (r *Registry) AnyActive() bool {
	return r.ActiveCount() > 0
}

// ActiveCount returns the number of active sensors.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, s := range r.states {
		if s.Active {
			n++
		}
	}
	return n
}

// Snapshot copies every sensor state in registry order.
func (r *Registry) Snapshot() []SensorState {
	return append([]SensorState(nil), r.states...)
}
