package clock

import (
	"fmt"

	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/model"
)

// Direction of a suggested clock interaction.
type Direction string

const (
	DirectionAdvance Direction = "advance"
	DirectionReduce  Direction = "reduce"
)

// Suggestion is one candidate clock interaction. The authority picks at most
// one to apply; selection is always manual.
type Suggestion struct {
	Clock     *model.Clock `json:"clock"`
	Direction Direction    `json:"direction"`
	Amount    int          `json:"amount"`
	Reasoning string       `json:"reasoning"`
}

// SuggestionContext carries the actor and roll context the filter runs on.
type SuggestionContext struct {
	Outcome     core.Outcome
	Position    core.Position
	Effect      core.Effect
	CharacterID int64
	CrewID      int64
}

// Suggest filters the candidate clocks by category and owner and emits the
// interactions that fit the outcome: consequences advance harm (character
// owned) and threat (crew or scene owned) clocks; successes advance progress
// clocks (character or crew owned).
func Suggest(ctx SuggestionContext, candidates []*model.Clock) []Suggestion {
	var out []Suggestion
	for _, c := range candidates {
		if c.Frozen {
			continue
		}
		if ctx.Outcome.Succeeded() {
			if c.Category != model.ClockProgress {
				continue
			}
			if !ownedBy(c, model.OwnerCharacter, ctx.CharacterID) && !ownedBy(c, model.OwnerCrew, ctx.CrewID) {
				continue
			}
			amount := ProgressSegments(ctx.Position, ctx.Effect)
			if amount == 0 {
				continue
			}
			out = append(out, Suggestion{
				Clock:     c,
				Direction: DirectionAdvance,
				Amount:    amount,
				Reasoning: fmt.Sprintf("%s outcome at %s position with %s effect advances progress", ctx.Outcome, ctx.Position, ctx.Effect),
			})
			continue
		}

		// Failure or partial: consequences.
		switch c.Category {
		case model.ClockHarm:
			if !ownedBy(c, model.OwnerCharacter, ctx.CharacterID) {
				continue
			}
		case model.ClockThreat:
			if !ownedBy(c, model.OwnerCrew, ctx.CrewID) && c.OwnerKind != model.OwnerScene {
				continue
			}
		default:
			continue
		}
		out = append(out, Suggestion{
			Clock:     c,
			Direction: DirectionAdvance,
			Amount:    ConsequenceSegments(ctx.Position),
			Reasoning: fmt.Sprintf("%s outcome at %s position inflicts a consequence", ctx.Outcome, ctx.Position),
		})
	}
	return out
}

// SuggestMitigation emits reduce interactions for an explicit mitigating
// action: harm clocks of the actor and threat clocks of the crew or scene,
// sized by the action's effect.
func SuggestMitigation(ctx SuggestionContext, candidates []*model.Clock) []Suggestion {
	amount := ReductionSegments(ctx.Effect)
	var out []Suggestion
	for _, c := range candidates {
		switch c.Category {
		case model.ClockHarm:
			if !ownedBy(c, model.OwnerCharacter, ctx.CharacterID) {
				continue
			}
		case model.ClockThreat:
			if !ownedBy(c, model.OwnerCrew, ctx.CrewID) && c.OwnerKind != model.OwnerScene {
				continue
			}
		default:
			continue
		}
		out = append(out, Suggestion{
			Clock:     c,
			Direction: DirectionReduce,
			Amount:    amount,
			Reasoning: fmt.Sprintf("mitigating action with %s effect reduces %s", ctx.Effect, c.Category),
		})
	}
	return out
}

func ownedBy(c *model.Clock, kind string, id int64) bool {
	return c.OwnerKind == kind && c.OwnerID == id
}
