package junction

// Rule lists which sensors may share a phase with Sensor when Sensor is
// the primary.
type Rule struct {
	Sensor SensorID
	// Pedestrian selects the pedestrian hold duration when Sensor is primary.
	Pedestrian bool
	// Default is served with Sensor when no alternative is fully active,
	// whether or not its members are active.
	Default []SensorID
	// Alternatives are candidate companion sets. Ties on mean waiting time
	// go to the one listed first.
	Alternatives [][]SensorID
}

// RuleTable is the immutable compatibility table for one intersection. Its
// sensor order is the order rules were given in.
type RuleTable struct {
	rules []Rule
	index map[SensorID]int
}

// NewRuleTable validates rules and builds a table. Every companion must be a
// sensor of the table, distinct from the primary and not repeated within its
// set; alternative sets must not be empty.
func NewRuleTable(rules ...Rule) (*RuleTable, error) {
	errs := NewErrorCollector()
	if len(rules) == 0 {
		errs.Add(NewRuleError("", "rule table has no sensors"))
	}

	t := &RuleTable{
		rules: make([]Rule, 0, len(rules)),
		index: make(map[SensorID]int, len(rules)),
	}
	for _, r := range rules {
		if !r.Sensor.Valid() {
			errs.Add(NewRuleError(r.Sensor, "malformed sensor id"))
			continue
		}
		if _, dup := t.index[r.Sensor]; dup {
			errs.Add(NewRuleError(r.Sensor, "sensor listed more than once"))
			continue
		}
		t.index[r.Sensor] = len(t.rules)
		t.rules = append(t.rules, cloneRule(r))
	}

	for _, r := range t.rules {
		errs.Add(t.checkSet(r.Sensor, "default", r.Default))
		for i, alt := range r.Alternatives {
			if len(alt) == 0 {
				errs.Add(NewRuleError(r.Sensor, "alternative %d is empty", i))
				continue
			}
			errs.Add(t.checkSet(r.Sensor, "alternative", alt))
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *RuleTable) checkSet(primary SensorID, what string, set []SensorID) error {
	seen := make(map[SensorID]bool, len(set))
	for _, id := range set {
		switch {
		case id == primary:
			return NewRuleError(primary, "%s set %v contains the sensor itself", what, set)
		case seen[id]:
			return NewRuleError(primary, "%s set %v repeats %s", what, set, id)
		case !t.Has(id):
			return NewRuleError(primary, "%s set %v references unknown sensor %s", what, set, id)
		}
		seen[id] = true
	}
	return nil
}

func cloneRule(r Rule) Rule {
	out := Rule{
		Sensor:       r.Sensor,
		Pedestrian:   r.Pedestrian,
		Default:      append([]SensorID{}, r.Default...),
		Alternatives: make([][]SensorID, len(r.Alternatives)),
	}
	for i, alt := range r.Alternatives {
		out.Alternatives[i] = append([]SensorID{}, alt...)
	}
	return out
}

// Sensors returns the table's sensors in declaration order.
func (t *RuleTable) Sensors() []SensorID {
	ids := make([]SensorID, len(t.rules))
	for i, r := range t.rules {
		ids[i] = r.Sensor
	}
	return ids
}

// Rules returns a copy of every rule in declaration order.
func (t *RuleTable) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = cloneRule(r)
	}
	return out
}

// Len returns the number of sensors.
func (t *RuleTable) Len() int {
	return len(t.rules)
}

// Has reports whether id is a sensor of the table.
func (t *RuleTable) Has(id SensorID) bool {
	_, ok := t.index[id]
	return ok
}

// Rule returns a copy of the rule for id.
func (t *RuleTable) Rule(id SensorID) (Rule, bool) {
	i, ok := t.index[id]
	if !ok {
		return Rule{}, false
	}
	return cloneRule(t.rules[i]), true
}

// IsPedestrian reports whether id is a pedestrian request.
func (t *RuleTable) IsPedestrian(id SensorID) bool {
	i, ok := t.index[id]
	return ok && t.rules[i].Pedestrian
}

// BuildPhase picks the companions for primary: among the alternatives whose
// members are all active, the one with the lowest mean timestamp; with none
// fully active, the default set. Unknown primaries yield a phase of their
// own.
func (t *RuleTable) BuildPhase(primary SensorID, view SensorView) Phase {
	i, ok := t.index[primary]
	if !ok {
		return Phase{Primary: primary}
	}
	rule := t.rules[i]

	var best []SensorID
	bestMean := 0.0
	for _, alt := range rule.Alternatives {
		if !allActive(alt, view) {
			continue
		}
		mean := meanTimestamp(alt, view)
		if best == nil || mean < bestMean {
			best, bestMean = alt, mean
		}
	}

	if best == nil {
		return Phase{Primary: primary, Companions: append([]SensorID{}, rule.Default...)}
	}
	return Phase{Primary: primary, Companions: append([]SensorID{}, best...)}
}

func allActive(set []SensorID, view SensorView) bool {
	for _, id := range set {
		if !view.Active(id) {
			return false
		}
	}
	return true
}

func meanTimestamp(set []SensorID, view SensorView) float64 {
	var sum float64
	for _, id := range set {
		sum += float64(view.Timestamp(id))
	}
	return sum / float64(len(set))
}

// Combinations returns every phase the table can produce with primary.
func (t *RuleTable) Combinations(primary SensorID) []Phase {
	i, ok := t.index[primary]
	if !ok {
		return nil
	}
	rule := t.rules[i]

	out := make([]Phase, 0, len(rule.Alternatives)+1)
	out = append(out, Phase{Primary: primary, Companions: append([]SensorID{}, rule.Default...)})
	for _, alt := range rule.Alternatives {
		out = append(out, Phase{Primary: primary, Companions: append([]SensorID{}, alt...)})
	}
	return out
}

// Permits reports whether the sensors may all be green at once, i.e. they
// fit inside some combination the table can produce. The empty set is
// always permitted.
func (t *RuleTable) Permits(ids []SensorID) bool {
	if len(ids) == 0 {
		return true
	}
	for _, primary := range ids {
		for _, p := range t.Combinations(primary) {
			if p.Covers(ids) {
				return true
			}
		}
	}
	return false
}

// Compatible reports whether a and b can ever be green together.
func (t *RuleTable) Compatible(a, b SensorID) bool {
	return t.Permits([]SensorID{a, b})
}

// StandardRules is the four-approach table: straight and left lanes on every
// approach plus a single pedestrian request served on its own.
func StandardRules() *RuleTable {
	return mustRuleTable(
		Rule{Sensor: NorthStraight, Default: []SensorID{SouthStraight}, Alternatives: [][]SensorID{{NorthLeft}}},
		Rule{Sensor: NorthLeft, Default: []SensorID{SouthLeft}, Alternatives: [][]SensorID{{NorthStraight}}},
		Rule{Sensor: SouthStraight, Default: []SensorID{NorthStraight}, Alternatives: [][]SensorID{{SouthLeft}}},
		Rule{Sensor: SouthLeft, Default: []SensorID{NorthLeft}, Alternatives: [][]SensorID{{SouthStraight}}},
		Rule{Sensor: EastStraight, Default: []SensorID{WestStraight}, Alternatives: [][]SensorID{{EastLeft}}},
		Rule{Sensor: EastLeft, Default: []SensorID{WestLeft}, Alternatives: [][]SensorID{{EastStraight}}},
		Rule{Sensor: WestStraight, Default: []SensorID{EastStraight}, Alternatives: [][]SensorID{{WestLeft}}},
		Rule{Sensor: WestLeft, Default: []SensorID{EastLeft}, Alternatives: [][]SensorID{{WestStraight}}},
		Rule{Sensor: Pedestrian, Pedestrian: true},
	)
}

// CrosswalkRules is the north/south table with east and west crosswalks that
// can run alongside the movements that do not cross them.
func CrosswalkRules() *RuleTable {
	return mustRuleTable(
		Rule{
			Sensor:  NorthStraight,
			Default: []SensorID{SouthStraight},
			Alternatives: [][]SensorID{
				{NorthLeft},
				{PedestrianEast, NorthLeft},
				{PedestrianEast},
				{PedestrianWest},
				{PedestrianEast, PedestrianWest},
			},
		},
		Rule{
			Sensor:  NorthLeft,
			Default: []SensorID{SouthLeft},
			Alternatives: [][]SensorID{
				{NorthStraight},
				{PedestrianEast},
				{NorthStraight, PedestrianEast},
			},
		},
		Rule{
			Sensor:  SouthStraight,
			Default: []SensorID{NorthStraight},
			Alternatives: [][]SensorID{
				{SouthLeft},
				{PedestrianWest},
				{PedestrianWest, SouthLeft},
			},
		},
		Rule{
			Sensor:  SouthLeft,
			Default: []SensorID{NorthLeft},
			Alternatives: [][]SensorID{
				{SouthStraight},
				{PedestrianWest},
				{SouthStraight, PedestrianWest},
			},
		},
		Rule{
			Sensor:     PedestrianEast,
			Pedestrian: true,
			Default:    []SensorID{PedestrianWest},
			Alternatives: [][]SensorID{
				{NorthLeft},
				{NorthStraight, NorthLeft},
				{NorthStraight, SouthStraight},
				{NorthStraight},
				{SouthStraight},
			},
		},
		Rule{
			Sensor:     PedestrianWest,
			Pedestrian: true,
			Default:    []SensorID{PedestrianEast},
			Alternatives: [][]SensorID{
				{SouthLeft},
				{SouthStraight, SouthLeft},
				{SouthStraight, NorthStraight},
				{SouthStraight},
				{NorthStraight},
			},
		},
	)
}

// Preset returns a built-in table by name: "standard" or "crosswalk".
func Preset(name string) (*RuleTable, bool) {
	switch name {
	case "standard", "":
		return StandardRules(), true
	case "crosswalk":
		return CrosswalkRules(), true
	}
	return nil, false
}

func mustRuleTable(rules ...Rule) *RuleTable {
	t, err := NewRuleTable(rules...)
	if err != nil {
		panic(err)
	}
	return t
}
