package clock

import (
	"context"

	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/plugin/hook"
	"github.com/mevsgame/fitgd-sub006/replication"
	"go.uber.org/zap"
)

// CharacterResetReport is the per-member slice of a reset report.
type CharacterResetReport struct {
	CharacterID         int64 `json:"characterId"`
	RallyReset          bool  `json:"rallyReset"`
	TraitsReEnabled     int   `json:"traitsReEnabled"`
	HarmClocksRecovered int   `json:"harmClocksRecovered"`
}

// ResetReport describes everything a crew reset changed.
type ResetReport struct {
	NewMomentum      int                    `json:"newMomentum"`
	AddictionReduced *int                   `json:"addictionReduced"` // nil when the crew has no addiction clock
	CharactersReset  []CharacterResetReport `json:"charactersReset"`
}

// PerformReset applies the between-mission crew reset: momentum back to its
// reset value, every member's rally restored and disabled traits re-enabled,
// the crew addiction clock reduced by 2, and every harm clock sitting exactly
// at capacity reduced by 1. A crew with no members and no addiction clock
// resets without error.
func (s *Service) PerformReset(ctx context.Context, crewID int64) (*ResetReport, error) {
	crew, err := s.store.Crew(crewID)
	if err != nil {
		return nil, err
	}

	crew.CurrentMomentum = model.MomentumReset
	s.store.MarkCrewDirty(crew.ID)
	s.log.Append(replication.NewMomentumCommand(crew.ID, crew.CurrentMomentum))

	report := &ResetReport{NewMomentum: crew.CurrentMomentum}

	for _, member := range s.store.CrewMembers(crewID) {
		mr := CharacterResetReport{CharacterID: member.ID}

		if !member.RallyAvailable {
			member.RallyAvailable = true
			mr.RallyReset = true
			s.store.MarkCharacterDirty(member.ID)
			s.log.Append(replication.NewRallyCommand(replication.TypeRallyReset, member.ID, true))
		}

		for _, trait := range s.store.CharacterTraits(member.ID) {
			if trait.Disabled {
				trait.Disabled = false
				mr.TraitsReEnabled++
				s.store.MarkTraitDirty(trait.ID)
				s.log.Append(replication.NewTraitCommand(replication.TypeTraitEnabled, trait.ID, member.ID))
			}
		}

		// Only harm clocks exactly at capacity recover; anything below stays.
		for _, c := range s.store.ClocksForOwner(model.OwnerCharacter, member.ID) {
			if c.Category == model.ClockHarm && c.Full() {
				if _, err := s.Reduce(ctx, c.ID, 1); err != nil {
					return nil, err
				}
				mr.HarmClocksRecovered++
			}
		}

		report.CharactersReset = append(report.CharactersReset, mr)
	}

	if addiction := s.store.CrewClockByCategory(crewID, model.ClockAddiction); addiction != nil {
		before := addiction.Segments
		if _, err := s.Reduce(ctx, addiction.ID, 2); err != nil {
			return nil, err
		}
		reduced := before
		if before > 2 {
			reduced = 2
		}
		report.AddictionReduced = &reduced
	}

	if s.hooks != nil {
		_, _ = s.hooks.Trigger(ctx, hook.OnCrewReset, report)
	}
	s.logger.Info("crew reset performed",
		zap.Int64("crew_id", crewID),
		zap.Int("members", len(report.CharactersReset)))
	return report, nil
}
