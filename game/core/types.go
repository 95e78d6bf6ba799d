// Package core holds the shared play vocabulary: positions, effects, dice
// outcomes, the round-state record and the per-crew action lock. It has no
// behavior beyond validation helpers so every other game package can depend
// on it without cycles.
package core

import "time"

// Position is the risk tier of an action. It selects the dice read rule and
// the consequence severity.
type Position string

const (
	PositionControlled Position = "controlled"
	PositionRisky      Position = "risky"
	PositionDesperate  Position = "desperate"
	PositionImpossible Position = "impossible"
)

// Valid reports whether p is one of the four known positions.
func (p Position) Valid() bool {
	switch p {
	case PositionControlled, PositionRisky, PositionDesperate, PositionImpossible:
		return true
	}
	return false
}

// Effect is the quality tier of a successful outcome.
type Effect string

const (
	EffectLimited     Effect = "limited"
	EffectStandard    Effect = "standard"
	EffectGreat       Effect = "great"
	EffectSpectacular Effect = "spectacular"
)

// Valid reports whether e is one of the four known effects.
func (e Effect) Valid() bool {
	switch e {
	case EffectLimited, EffectStandard, EffectGreat, EffectSpectacular:
		return true
	}
	return false
}

// Outcome is the four-way result of a resolved roll.
type Outcome string

const (
	OutcomeCritical Outcome = "critical"
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeFailure  Outcome = "failure"
)

// Succeeded reports whether the outcome routes to the success branch of the
// turn state machine.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCritical || o == OutcomeSuccess
}

// State is one node of the per-character turn state machine.
type State string

const (
	StateIdleWaiting      State = "IDLE_WAITING"
	StateDecisionPhase    State = "DECISION_PHASE"
	StateRolling          State = "ROLLING"
	StateSuccessComplete  State = "SUCCESS_COMPLETE"
	StateResolvingOutcome State = "GM_RESOLVING_CONSEQUENCE"
	StateStimsRolling     State = "STIMS_ROLLING"
	StateStimsLocked      State = "STIMS_LOCKED"
	StateApplyingEffects  State = "APPLYING_EFFECTS"
	StateTurnComplete     State = "TURN_COMPLETE"
)

// PushType distinguishes what the pushed momentum buys.
type PushType string

const (
	PushExtraDie       PushType = "extra-die"
	PushImprovedEffect PushType = "improved-effect"
)

// TraitTx is a staged trait activation for the current turn. MomentumCost is
// 0 or 1; it is charged at commit time, not when staged.
type TraitTx struct {
	TraitID      int64 `json:"traitId"`
	MomentumCost int   `json:"momentumCost"`
}

// ConsequenceTx is the staged consequence the authority selected (at most one
// suggestion is ever applied per turn).
type ConsequenceTx struct {
	ClockID   int64  `json:"clockId"`
	Advance   bool   `json:"advance"`
	Amount    int    `json:"amount"`
	Reasoning string `json:"reasoning"`
}

// RoundState is the transient per-character turn record. It is created lazily
// on a character's first turn, reset to idle after every turn and never
// persisted beyond the session's command-log replay.
type RoundState struct {
	CharacterID int64    `json:"characterId"`
	State       State    `json:"state"`
	Approach    string   `json:"approach,omitempty"`
	Position    Position `json:"position,omitempty"`
	Effect      Effect   `json:"effect,omitempty"`

	PushActive bool     `json:"pushActive"`
	PushType   PushType `json:"pushType,omitempty"`

	// RallyInvoked marks the character's one-shot rally spent on this turn
	// for an extra die.
	RallyInvoked bool `json:"rallyInvoked,omitempty"`

	TraitTx       *TraitTx       `json:"traitTx,omitempty"`
	ConsequenceTx *ConsequenceTx `json:"consequenceTx,omitempty"`

	EquippedForAction []int64 `json:"equippedForAction,omitempty"`
	ApprovedPassiveID int64   `json:"approvedPassiveId,omitempty"`

	Dice    []int   `json:"dice,omitempty"`
	Result  int     `json:"result,omitempty"`
	Outcome Outcome `json:"outcome,omitempty"`

	// History records every state the machine visited this turn, in order.
	// Cleared together with the rest of the record when the turn ends.
	History []State `json:"history,omitempty"`
}

// NewRoundState returns an idle round record for the given character.
func NewRoundState(characterID int64) *RoundState {
	return &RoundState{
		CharacterID: characterID,
		State:       StateIdleWaiting,
		History:     []State{StateIdleWaiting},
	}
}

// Reset returns the record to its idle shape, keeping only the character id.
func (rs *RoundState) Reset() {
	*rs = *NewRoundState(rs.CharacterID)
}

// Clone returns a deep copy, used for command payloads and query snapshots so
// callers never alias live state.
func (rs *RoundState) Clone() *RoundState {
	cp := *rs
	if rs.TraitTx != nil {
		tx := *rs.TraitTx
		cp.TraitTx = &tx
	}
	if rs.ConsequenceTx != nil {
		tx := *rs.ConsequenceTx
		cp.ConsequenceTx = &tx
	}
	cp.EquippedForAction = append([]int64(nil), rs.EquippedForAction...)
	cp.Dice = append([]int(nil), rs.Dice...)
	cp.History = append([]State(nil), rs.History...)
	return &cp
}

// ActivePlayerAction is the per-crew action lock. At most one exists per crew.
// Once CommittedToRoll is true only the authority may clear it.
type ActivePlayerAction struct {
	CharacterID     int64     `json:"characterId"`
	PlayerID        int64     `json:"playerId"`
	CrewID          int64     `json:"crewId"`
	CommittedToRoll bool      `json:"committedToRoll"`
	StartedAt       time.Time `json:"startedAt"`
}
