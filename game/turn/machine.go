// Package turn drives a character's turn from idle through the dice roll to
// consequence resolution and completion. The transition table is closed: any
// move it does not list is an invalid-transition error.
package turn

import (
	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/core"
)

// stateTransitions lists, per state, the states a turn may move to next.
// STIMS_LOCKED is reachable only through STIMS_ROLLING, never directly from
// the consequence state.
var stateTransitions = map[core.State][]core.State{
	core.StateIdleWaiting:      {core.StateDecisionPhase},
	core.StateDecisionPhase:    {core.StateRolling},
	core.StateRolling:          {core.StateSuccessComplete, core.StateResolvingOutcome},
	core.StateResolvingOutcome: {core.StateStimsRolling, core.StateApplyingEffects},
	core.StateStimsRolling:     {core.StateStimsLocked, core.StateRolling},
	core.StateStimsLocked:      {core.StateResolvingOutcome},
	core.StateApplyingEffects:  {core.StateIdleWaiting},
	core.StateSuccessComplete:  {core.StateTurnComplete},
	core.StateTurnComplete:     {core.StateIdleWaiting},
}

// AllowedTransitions returns the legal successor states of from.
func AllowedTransitions(from core.State) []core.State {
	return append([]core.State(nil), stateTransitions[from]...)
}

// CanTransition reports whether the table lists to as a successor of from.
func CanTransition(from, to core.State) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the round record to the next state, recording it in the
// turn history, or returns a Validation error for an illegal move.
func transition(rs *core.RoundState, to core.State) error {
	if !CanTransition(rs.State, to) {
		return errs.Validation("illegal transition %s -> %s", rs.State, to)
	}
	rs.State = to
	rs.History = append(rs.History, to)
	return nil
}
