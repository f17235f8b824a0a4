package junction

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LightColor is the signal shown for one sensor's movement.
type LightColor string

const (
	Red    LightColor = "red"
	Yellow LightColor = "yellow"
	Green  LightColor = "green"
)

// Phase is the set of sensors granted green together.
type Phase struct {
	Primary    SensorID   `json:"primary"`
	Companions []SensorID `json:"companions"`
}

// Members returns the primary followed by its companions.
func (p Phase) Members() []SensorID {
	out := make([]SensorID, 0, len(p.Companions)+1)
	out = append(out, p.Primary)
	return append(out, p.Companions...)
}

// Contains reports whether id is part of the phase.
func (p Phase) Contains(id SensorID) bool {
	if id == p.Primary {
		return true
	}
	for _, c := range p.Companions {
		if c == id {
			return true
		}
	}
	return false
}

// Covers reports whether every id is part of the phase.
func (p Phase) Covers(ids []SensorID) bool {
	for _, id := range ids {
		if !p.Contains(id) {
			return false
		}
	}
	return true
}

func (p Phase) String() string {
	parts := make([]string, 0, len(p.Companions)+1)
	for _, id := range p.Members() {
		parts = append(parts, string(id))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// LightState assigns exactly one color to every sensor of an intersection.
// Values are immutable; the zero value covers no sensors.
type LightState struct {
	ids    []SensorID
	colors []LightColor
}

// AllRed returns the clearance state for ids.
func AllRed(ids []SensorID) LightState {
	s := LightState{ids: ids, colors: make([]LightColor, len(ids))}
	for i := range s.colors {
		s.colors[i] = Red
	}
	return s
}

// PhaseLights shows green for the members of phase and red elsewhere.
func PhaseLights(ids []SensorID, phase Phase) LightState {
	s := AllRed(ids)
	for i, id := range ids {
		if phase.Contains(id) {
			s.colors[i] = Green
		}
	}
	return s
}

// Recolor returns a copy with every from light changed to to.
func (s LightState) Recolor(from, to LightColor) LightState {
	out := LightState{ids: s.ids, colors: make([]LightColor, len(s.colors))}
	for i, c := range s.colors {
		if c == from {
			c = to
		}
		out.colors[i] = c
	}
	return out
}

// Color returns the color shown for id.
func (s LightState) Color(id SensorID) (LightColor, bool) {
	for i, known := range s.ids {
		if known == id {
			return s.colors[i], true
		}
	}
	return "", false
}

// Sensors returns the covered sensors in order.
func (s LightState) Sensors() []SensorID {
	return append([]SensorID(nil), s.ids...)
}

// Len returns the number of covered sensors.
func (s LightState) Len() int {
	return len(s.ids)
}

// With returns the sensors currently showing color, in order.
func (s LightState) With(color LightColor) []SensorID {
	var out []SensorID
	for i, c := range s.colors {
		if c == color {
			out = append(out, s.ids[i])
		}
	}
	return out
}

// IsAllRed reports whether every light is red.
func (s LightState) IsAllRed() bool {
	for _, c := range s.colors {
		if c != Red {
			return false
		}
	}
	return true
}

// Map copies the state into a map.
func (s LightState) Map() map[SensorID]LightColor {
	m := make(map[SensorID]LightColor, len(s.ids))
	for i, id := range s.ids {
		m[id] = s.colors[i]
	}
	return m
}

// Equal reports whether both states cover the same sensors with the same
// colors.
func (s LightState) Equal(o LightState) bool {
	if len(s.ids) != len(o.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != o.ids[i] || s.colors[i] != o.colors[i] {
			return false
		}
	}
	return true
}

// String renders the non-red lights, or "all red".
func (s LightState) String() string {
	if s.IsAllRed() {
		return "all red"
	}
	var parts []string
	for _, color := range []LightColor{Green, Yellow} {
		ids := s.With(color)
		if len(ids) == 0 {
			continue
		}
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = string(id)
		}
		parts = append(parts, string(color)+": "+strings.Join(names, " "))
	}
	return strings.Join(parts, "; ")
}

// MarshalJSON encodes the state as an object keyed by sensor, in sensor
// order.
func (s LightState) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(id))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(`"` + string(s.colors[i]) + `"`)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
