package fsm

import (
	"fmt"
	"strings"
)

// Transition represents a state transition
type Transition struct {
	Source      string
	Target      string
	Event       string
	Guard       GuardFunc
	Action      ActionFunc
	Description string
}

// Builder provides the entry point for defining a machine:
//
//	b := fsm.NewBuilder()
//	b.State("idle").Initial().
//		To("busy").On("start").When(ready).Do(begin)
//	b.State("busy").
//		To("idle").On("done")
//	def, err := b.Build()
type Builder struct {
	initial     string
	states      []string
	declared    map[string]bool
	transitions []*Transition
	errs        []string
}

// NewBuilder creates an empty machine builder
func NewBuilder() *Builder {
	return &Builder{
		declared: make(map[string]bool),
	}
}

// State declares a state, or returns to an already declared one
func (b *Builder) State(id string) *StateBuilder {
	if strings.TrimSpace(id) == "" {
		b.errs = append(b.errs, "state id cannot be empty")
	} else if !b.declared[id] {
		b.declared[id] = true
		b.states = append(b.states, id)
	}
	return &StateBuilder{builder: b, id: id}
}

// Build validates the definition and freezes it
func (b *Builder) Build() (*Definition, error) {
	errs := append([]string(nil), b.errs...)

	if b.initial == "" {
		errs = append(errs, ErrNoInitialState.Error())
	}

	for _, t := range b.transitions {
		if t.Event == "" {
			errs = append(errs, fmt.Sprintf("transition %s->%s has no event", t.Source, t.Target))
		}
		if !b.declared[t.Target] {
			errs = append(errs, fmt.Sprintf("transition %s->%s targets an undeclared state", t.Source, t.Target))
		}
	}

	if len(errs) > 0 {
		return nil, NewConfigurationError("Builder", strings.Join(errs, "; "))
	}

	def := &Definition{
		initial:     b.initial,
		states:      append([]string(nil), b.states...),
		transitions: make(map[string][]Transition, len(b.states)),
	}
	for _, t := range b.transitions {
		def.transitions[t.Source] = append(def.transitions[t.Source], *t)
	}
	return def, nil
}

// StateBuilder configures one state
type StateBuilder struct {
	builder *Builder
	id      string
}

// Initial marks the state as the machine's starting state
func (sb *StateBuilder) Initial() *StateBuilder {
	if sb.builder.initial != "" && sb.builder.initial != sb.id {
		sb.builder.errs = append(sb.builder.errs,
			fmt.Sprintf("initial state already set to %q, cannot set %q", sb.builder.initial, sb.id))
		return sb
	}
	sb.builder.initial = sb.id
	return sb
}

// To starts a transition from this state to target
func (sb *StateBuilder) To(target string) *TransitionBuilder {
	t := &Transition{Source: sb.id, Target: target}
	sb.builder.transitions = append(sb.builder.transitions, t)
	return &TransitionBuilder{state: sb, transition: t}
}

// ToSelf starts a self transition
func (sb *StateBuilder) ToSelf() *TransitionBuilder {
	return sb.To(sb.id)
}

// State moves on to another state
func (sb *StateBuilder) State(id string) *StateBuilder {
	return sb.builder.State(id)
}

// Build finishes the definition
func (sb *StateBuilder) Build() (*Definition, error) {
	return sb.builder.Build()
}

// TransitionBuilder configures one transition
type TransitionBuilder struct {
	state      *StateBuilder
	transition *Transition
}

// On binds the transition to an event name
func (tb *TransitionBuilder) On(event string) *TransitionBuilder {
	tb.transition.Event = event
	return tb
}

// When sets the guard condition
func (tb *TransitionBuilder) When(guard GuardFunc) *TransitionBuilder {
	tb.transition.Guard = guard
	return tb
}

// Unless sets a negated guard condition
func (tb *TransitionBuilder) Unless(guard GuardFunc) *TransitionBuilder {
	tb.transition.Guard = func(ctx *Context) bool {
		return !guard(ctx)
	}
	return tb
}

// Do sets the transition action
func (tb *TransitionBuilder) Do(action ActionFunc) *TransitionBuilder {
	tb.transition.Action = action
	return tb
}

// Describe attaches a human readable label, used by diagram generators
func (tb *TransitionBuilder) Describe(text string) *TransitionBuilder {
	tb.transition.Description = text
	return tb
}

// To starts another transition from the same source state
func (tb *TransitionBuilder) To(target string) *TransitionBuilder {
	return tb.state.To(target)
}

// ToSelf starts another self transition from the same source state
func (tb *TransitionBuilder) ToSelf() *TransitionBuilder {
	return tb.state.ToSelf()
}

// State moves on to another state
func (tb *TransitionBuilder) State(id string) *StateBuilder {
	return tb.state.builder.State(id)
}

// Build finishes the definition
func (tb *TransitionBuilder) Build() (*Definition, error) {
	return tb.state.builder.Build()
}

// Definition is an immutable machine description
type Definition struct {
	initial     string
	states      []string
	transitions map[string][]Transition
}

// Initial returns the starting state
func (d *Definition) Initial() string {
	return d.initial
}

// States returns every state in declaration order
func (d *Definition) States() []string {
	return append([]string(nil), d.states...)
}

// Transitions returns the transitions leaving state, in declaration order
func (d *Definition) Transitions(state string) []Transition {
	return append([]Transition(nil), d.transitions[state]...)
}

// HasState reports whether the state is declared
func (d *Definition) HasState(state string) bool {
	for _, s := range d.states {
		if s == state {
			return true
		}
	}
	return false
}

// NewMachine creates a stopped machine instance for this definition
func (d *Definition) NewMachine() *Machine {
	return newMachine(d)
}
