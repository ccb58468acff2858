// Package statemachine implements small finite state machines.
//
// A Definition is an immutable transition table, built once and shared. Each
// call to Definition.New returns an independent Machine positioned at the
// initial state, which makes per-item lifecycles (for example one machine per
// queue job) cheap.
//
// Actions registered on the Definition run before every state change; an
// action error aborts the transition. Firing an event that has no transition
// from the current state returns *ErrNoTransitionAvailable.
//
// # Usage
//
//	const (
//		Draft     = statemachine.StringState("draft")
//		Published = statemachine.StringState("published")
//		Publish   = statemachine.StringEvent("publish")
//	)
//
//	def := statemachine.MustDefinition(Draft, []statemachine.Transition{
//		{From: Draft, To: Published, Event: Publish},
//	})
//
//	m := def.New()
//	if err := m.Fire(ctx, Publish); err != nil {
//		// handle error
//	}
package statemachine
