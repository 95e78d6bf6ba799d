// Package clock implements the clock resource model: segment arithmetic over
// position/effect/outcome, the interaction suggestion engine, consumable
// freeze propagation and the crew reset.
package clock

import (
	"context"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/plugin/hook"
	"github.com/mevsgame/fitgd-sub006/replication"
	"go.uber.org/zap"
)

// consequenceByPosition maps position to the segments a consequence advances
// on a failure or partial.
var consequenceByPosition = map[core.Position]int{
	core.PositionControlled: 1,
	core.PositionRisky:      3,
	core.PositionDesperate:  5,
	core.PositionImpossible: 6,
}

// effectModifier adjusts progress segments on success.
var effectModifier = map[core.Effect]int{
	core.EffectLimited:     -1,
	core.EffectStandard:    0,
	core.EffectGreat:       1,
	core.EffectSpectacular: 2,
}

// reductionByEffect maps effect to the segments an explicit mitigating action
// removes.
var reductionByEffect = map[core.Effect]int{
	core.EffectLimited:     1,
	core.EffectStandard:    2,
	core.EffectGreat:       4,
	core.EffectSpectacular: 6,
}

// ConsequenceSegments returns the advance amount a consequence inflicts at
// the given position.
func ConsequenceSegments(p core.Position) int {
	return consequenceByPosition[p]
}

// ProgressSegments returns the advance amount a success earns: the position
// base adjusted by the effect modifier, floored at 0.
func ProgressSegments(p core.Position, e core.Effect) int {
	n := consequenceByPosition[p] + effectModifier[e]
	if n < 0 {
		return 0
	}
	return n
}

// ReductionSegments returns the reduce amount of a mitigating action.
func ReductionSegments(e core.Effect) int {
	return reductionByEffect[e]
}

// Service performs clock mutations against the session store, appending one
// command per logical sub-mutation.
type Service struct {
	store  *state.Store
	log    *replication.Log
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewService creates a clock Service. hooks may be nil when nothing listens.
func NewService(store *state.Store, log *replication.Log, hooks *hook.HookCenter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, log: log, hooks: hooks, logger: logger}
}

// Create registers a new clock. Clocks are created on demand by game actions;
// creating one at 0 segments never triggers the deletion rule.
func (s *Service) Create(c *model.Clock) (*model.Clock, error) {
	if c.MaxSegments <= 0 {
		return nil, errs.Validation("clock needs a positive capacity, got %d", c.MaxSegments)
	}
	if c.Segments < 0 || c.Segments > c.MaxSegments {
		return nil, errs.Validation("clock segments %d outside [0,%d]", c.Segments, c.MaxSegments)
	}
	c.ID = s.store.NextClockID()
	s.store.PutClock(c)
	s.store.MarkClockDirty(c.ID)
	s.log.Append(replication.NewClockCommand(replication.TypeClockCreated, replication.ClockPayload{
		ClockID:     c.ID,
		OwnerID:     c.OwnerID,
		OwnerKind:   c.OwnerKind,
		Category:    c.Category,
		Subtype:     c.Subtype,
		Tier:        c.Tier,
		Name:        c.Name,
		Segments:    c.Segments,
		MaxSegments: c.MaxSegments,
		Frozen:      c.Frozen,
	}))
	s.logger.Info("clock created",
		zap.Int64("clock_id", c.ID),
		zap.String("category", c.Category),
		zap.Int("max_segments", c.MaxSegments))
	return c, nil
}

// Advance fills amount segments, clamping at capacity (no deletion, no
// carry-over). A consumable clock that reaches capacity freezes itself,
// downgrades its tier and propagates the freeze to every clock of the same
// subtype owned by the same crew. An addiction clock that reaches capacity
// fires the OnAddictionFilled hook and nothing else.
func (s *Service) Advance(ctx context.Context, clockID int64, amount int) (*model.Clock, error) {
	if amount < 0 {
		return nil, errs.Validation("advance amount must be non-negative, got %d", amount)
	}
	c, err := s.store.Clock(clockID)
	if err != nil {
		return nil, err
	}
	wasFull := c.Full()
	c.Segments += amount
	if c.Segments > c.MaxSegments {
		c.Segments = c.MaxSegments
	}
	s.store.MarkClockDirty(c.ID)
	s.log.Append(replication.NewClockCommand(replication.TypeClockAdvanced, replication.ClockPayload{
		ClockID:  c.ID,
		Segments: c.Segments,
	}))

	if c.Full() && !wasFull {
		switch c.Category {
		case model.ClockConsumable:
			s.freezeFilledConsumable(c)
		case model.ClockAddiction:
			if s.hooks != nil {
				_, _ = s.hooks.Trigger(ctx, hook.OnAddictionFilled, c)
			}
		}
	}
	return c, nil
}

// Reduce removes amount segments, clamping at 0. Reaching exactly 0 deletes
// the clock.
func (s *Service) Reduce(ctx context.Context, clockID int64, amount int) (*model.Clock, error) {
	if amount < 0 {
		return nil, errs.Validation("reduce amount must be non-negative, got %d", amount)
	}
	c, err := s.store.Clock(clockID)
	if err != nil {
		return nil, err
	}
	c.Segments -= amount
	if c.Segments < 0 {
		c.Segments = 0
	}
	deleted := c.Segments == 0
	s.log.Append(replication.NewClockCommand(replication.TypeClockReduced, replication.ClockPayload{
		ClockID:  c.ID,
		Segments: c.Segments,
		Deleted:  deleted,
	}))
	if deleted {
		s.store.DeleteClock(c.ID)
		if s.hooks != nil {
			_, _ = s.hooks.Trigger(ctx, hook.OnClockDeleted, c)
		}
		s.logger.Info("clock emptied and deleted", zap.Int64("clock_id", c.ID))
	} else {
		s.store.MarkClockDirty(c.ID)
	}
	return c, nil
}

// Freeze marks the clock frozen without touching its fill.
func (s *Service) Freeze(clockID int64) (*model.Clock, error) {
	c, err := s.store.Clock(clockID)
	if err != nil {
		return nil, err
	}
	s.freeze(c)
	return c, nil
}

func (s *Service) freeze(c *model.Clock) {
	if c.Frozen {
		return
	}
	c.Frozen = true
	s.store.MarkClockDirty(c.ID)
	s.log.Append(replication.NewClockCommand(replication.TypeClockFrozen, replication.ClockPayload{
		ClockID: c.ID,
		Frozen:  true,
	}))
}

// freezeFilledConsumable handles a consumable clock hitting capacity: the
// filled clock freezes and downgrades its tier, then the freeze spreads to
// every other clock sharing its subtype and owning crew regardless of fill.
func (s *Service) freezeFilledConsumable(filled *model.Clock) {
	s.freeze(filled)
	filled.Tier = model.DowngradeTier(filled.Tier)
	s.store.MarkClockDirty(filled.ID)
	s.log.Append(replication.NewClockCommand(replication.TypeClockTierChanged, replication.ClockPayload{
		ClockID: filled.ID,
		Tier:    filled.Tier,
	}))

	crewID := s.owningCrew(filled)
	for _, other := range s.store.AllClocks() {
		if other.ID == filled.ID {
			continue
		}
		if other.Subtype == filled.Subtype && s.owningCrew(other) == crewID {
			s.freeze(other)
		}
	}
	s.logger.Info("consumable depleted, team-wide freeze",
		zap.Int64("clock_id", filled.ID),
		zap.String("subtype", filled.Subtype))
}

// owningCrew resolves the crew a clock ultimately belongs to. Character
// clocks belong to the character's crew; scene clocks belong to no crew.
func (s *Service) owningCrew(c *model.Clock) int64 {
	switch c.OwnerKind {
	case model.OwnerCrew:
		return c.OwnerID
	case model.OwnerCharacter:
		if char, err := s.store.Character(c.OwnerID); err == nil {
			return char.CrewID
		}
	}
	return 0
}
