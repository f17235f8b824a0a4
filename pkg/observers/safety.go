package observers

import (
	"fmt"
	"slices"
	"sync"

	"github.com/anggasct/junction"
)

// SafetyMonitor checks every published light state against a rule table:
// each state covers every sensor, greens and yellows are permitted
// together, and colors only move green to yellow to red.
type SafetyMonitor struct {
	rules *junction.RuleTable

	mutex      sync.RWMutex
	previous   *junction.LightState
	checked    int
	violations []string
}

// NewSafetyMonitor creates a monitor for rules
func NewSafetyMonitor(rules *junction.RuleTable) *SafetyMonitor {
	return &SafetyMonitor{
		rules:      rules,
		violations: make([]string, 0),
	}
}

// Listen validates s
func (o *SafetyMonitor) Listen(s junction.LightState) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.checked++
	n := o.checked

	if s.Len() != o.rules.Len() || !slices.Equal(s.Sensors(), o.rules.Sensors()) {
		o.addViolation(n, "state does not cover every sensor")
	}

	green := s.With(junction.Green)
	yellow := s.With(junction.Yellow)
	if !o.rules.Permits(green) {
		o.addViolation(n, fmt.Sprintf("conflicting greens %v", green))
	}
	if !o.rules.Permits(yellow) {
		o.addViolation(n, fmt.Sprintf("conflicting yellows %v", yellow))
	}
	if len(green) > 0 && len(yellow) > 0 {
		o.addViolation(n, "green and yellow shown together")
	}

	if o.previous != nil {
		o.checkSequence(n, *o.previous, s)
	}
	o.previous = &s
}

// checkSequence validates the color change of every sensor between two
// consecutive states
func (o *SafetyMonitor) checkSequence(n int, prev, next junction.LightState) {
	for _, id := range next.Sensors() {
		from, ok := prev.Color(id)
		if !ok {
			continue
		}
		to, _ := next.Color(id)
		if !allowedChange(from, to) {
			o.addViolation(n, fmt.Sprintf("%s changed %s to %s", id, from, to))
		}
	}
}

func allowedChange(from, to junction.LightColor) bool {
	switch from {
	case junction.Green:
		return to == junction.Yellow
	case junction.Yellow:
		return to == junction.Red
	case junction.Red:
		return to == junction.Red || to == junction.Green
	}
	return false
}

func (o *SafetyMonitor) addViolation(n int, message string) {
	o.violations = append(o.violations, fmt.Sprintf("state %d: %s", n, message))
}

// Violations returns every violation found so far
func (o *SafetyMonitor) Violations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// OK reports whether no violation has been found
func (o *SafetyMonitor) OK() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) == 0
}

// Checked returns the number of states validated
func (o *SafetyMonitor) Checked() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.checked
}
