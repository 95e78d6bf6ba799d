// Package crew owns the shared momentum pool and the per-crew action lock
// that serializes turn widgets across participants.
package crew

import (
	"time"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/replication"
	"go.uber.org/zap"
)

// Service mutates crews on behalf of the authority.
type Service struct {
	store  *state.Store
	log    *replication.Log
	logger *zap.Logger
}

// NewService creates a crew Service.
func NewService(store *state.Store, log *replication.Log, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, log: log, logger: logger}
}

// Spend debits amount from the crew pool, rejecting overdrafts. It appends
// the resulting absolute value to the command log.
func (s *Service) Spend(crewID int64, amount int) (*model.Crew, error) {
	crew, err := s.store.Crew(crewID)
	if err != nil {
		return nil, err
	}
	if amount > crew.CurrentMomentum {
		return nil, errs.Validation("insufficient momentum: need %d, have %d", amount, crew.CurrentMomentum)
	}
	if amount == 0 {
		return crew, nil
	}
	crew.CurrentMomentum = model.ClampMomentum(crew.CurrentMomentum - amount)
	s.store.MarkCrewDirty(crew.ID)
	s.log.Append(replication.NewMomentumCommand(crew.ID, crew.CurrentMomentum))
	return crew, nil
}

// Gain credits amount to the crew pool, clamping at the cap.
func (s *Service) Gain(crewID int64, amount int) (*model.Crew, error) {
	crew, err := s.store.Crew(crewID)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return crew, nil
	}
	crew.CurrentMomentum = model.ClampMomentum(crew.CurrentMomentum + amount)
	s.store.MarkCrewDirty(crew.ID)
	s.log.Append(replication.NewMomentumCommand(crew.ID, crew.CurrentMomentum))
	return crew, nil
}

// StartAction installs the crew's action lock for a character. Restarting
// for the same character is an idempotent success; a different character's
// in-progress action is a conflict.
func (s *Service) StartAction(crewID, characterID, playerID int64) (*core.ActivePlayerAction, error) {
	if _, err := s.store.Crew(crewID); err != nil {
		return nil, err
	}
	if existing := s.store.Action(crewID); existing != nil {
		if existing.CharacterID == characterID {
			return existing, nil
		}
		return nil, errs.Concurrency("action already in progress for character %d", existing.CharacterID)
	}
	action := &core.ActivePlayerAction{
		CharacterID: characterID,
		PlayerID:    playerID,
		CrewID:      crewID,
		StartedAt:   time.Now(),
	}
	s.store.SetAction(action)
	s.log.Append(replication.NewActionCommand(replication.TypeActionStarted, crewID, action))
	s.logger.Info("action started",
		zap.Int64("crew_id", crewID),
		zap.Int64("character_id", characterID))
	return action, nil
}

// CommitAction marks the in-progress action as committed to the roll. From
// here on only the authority may clear it.
func (s *Service) CommitAction(crewID int64) (*core.ActivePlayerAction, error) {
	action := s.store.Action(crewID)
	if action == nil {
		return nil, errs.Concurrency("no action in progress for crew %d", crewID)
	}
	action.CommittedToRoll = true
	s.log.Append(replication.NewActionCommand(replication.TypeActionCommitted, crewID, action))
	return action, nil
}

// ClearAction removes the action lock. asAuthority bypasses the
// committed-to-roll protection; the owning participant may only clear before
// commit. Clearing an absent action as the authority is a no-op success.
func (s *Service) ClearAction(crewID int64, asAuthority bool) error {
	action := s.store.Action(crewID)
	if action == nil {
		if asAuthority {
			return nil
		}
		return errs.Concurrency("no action in progress for crew %d", crewID)
	}
	if action.CommittedToRoll && !asAuthority {
		return errs.Concurrency("action is committed to the roll; only the arbiter may clear it")
	}
	s.store.ClearAction(crewID)
	s.log.Append(replication.NewActionCommand(replication.TypeActionCleared, crewID, nil))
	s.logger.Info("action cleared",
		zap.Int64("crew_id", crewID),
		zap.Bool("as_authority", asAuthority))
	return nil
}
