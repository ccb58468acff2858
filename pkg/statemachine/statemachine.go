package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition.
type Event interface {
	Name() string
}

// Action runs before the machine moves to the new state. Returning an error
// leaves the machine in its current state.
type Action func(ctx context.Context, from, to State, event Event) error

// Transition defines a state change triggered by an event.
type Transition struct {
	From  State
	To    State
	Event Event
}

// StringState provides a simple string-based state implementation.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent provides a simple string-based event implementation.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }

// Definition is an immutable transition table shared by any number of machines.
// Lookups are keyed by [fromState][event].
type Definition struct {
	initial     State
	transitions map[string]map[string]State
	actions     []Action
}

// NewDefinition validates the transitions and builds a Definition.
func NewDefinition(initial State, transitions []Transition, actions ...Action) (*Definition, error) {
	if initial == nil {
		return nil, ErrInvalidTransition
	}

	d := &Definition{
		initial:     initial,
		transitions: make(map[string]map[string]State, len(transitions)),
	}

	for _, t := range transitions {
		if t.From == nil || t.To == nil || t.Event == nil {
			return nil, ErrInvalidTransition
		}
		byEvent, ok := d.transitions[t.From.Name()]
		if !ok {
			byEvent = make(map[string]State)
			d.transitions[t.From.Name()] = byEvent
		}
		if _, dup := byEvent[t.Event.Name()]; dup {
			return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateTransition, t.From.Name(), t.Event.Name())
		}
		byEvent[t.Event.Name()] = t.To
	}

	for _, a := range actions {
		if a != nil {
			d.actions = append(d.actions, a)
		}
	}

	return d, nil
}

// MustDefinition is NewDefinition that panics on invalid input.
func MustDefinition(initial State, transitions []Transition, actions ...Action) *Definition {
	d, err := NewDefinition(initial, transitions, actions...)
	if err != nil {
		panic(fmt.Sprintf("failed to build state machine definition: %v", err))
	}
	return d
}

// New starts a machine in the definition's initial state.
func (d *Definition) New() *Machine {
	return &Machine{def: d, current: d.initial}
}

// Machine is a thread-safe instance of a Definition.
type Machine struct {
	def     *Definition
	current State
	mu      sync.Mutex
}

func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Fire moves the machine along the transition registered for event.
func (m *Machine) Fire(ctx context.Context, event Event) error {
	if event == nil {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	to, ok := m.def.transitions[m.current.Name()][event.Name()]
	if !ok {
		return NewErrNoTransitionAvailable(m.current.Name(), event.Name())
	}

	for _, action := range m.def.actions {
		if err := action(ctx, m.current, to, event); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = to
	return nil
}

// Can reports whether event has a transition from the current state.
func (m *Machine) Can(event Event) bool {
	if event == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.def.transitions[m.current.Name()][event.Name()]
	return ok
}
