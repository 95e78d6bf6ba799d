package turn

import (
	"context"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/clock"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/game/crew"
	"github.com/mevsgame/fitgd-sub006/game/dice"
	"github.com/mevsgame/fitgd-sub006/game/gear"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/plugin/hook"
	"github.com/mevsgame/fitgd-sub006/replication"
	"go.uber.org/zap"
)

// Defaults for on-demand addiction clocks and the stims die.
const (
	addictionClockSegments = 8
	stimsSuccessFace       = 4
)

// Service executes turn operations on the authority. Every operation either
// applies as one batch or leaves no trace; partial application is never
// observable.
type Service struct {
	store  *state.Store
	log    *replication.Log
	crews  *crew.Service
	clocks *clock.Service
	roller dice.Roller
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewService creates a turn Service. roller is the injected dice source.
func NewService(store *state.Store, log *replication.Log, crews *crew.Service, clocks *clock.Service, roller dice.Roller, hooks *hook.HookCenter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if roller == nil {
		roller = dice.NewRandRoller(nil)
	}
	return &Service{store: store, log: log, crews: crews, clocks: clocks, roller: roller, hooks: hooks, logger: logger}
}

// emitRound appends a round-state snapshot command.
func (s *Service) emitRound(rs *core.RoundState) {
	s.log.Append(replication.NewRoundStateCommand(rs))
}

// StartTurn installs the crew action lock for the character and moves the
// round record into the decision phase. Restarting for the same character is
// an idempotent success.
func (s *Service) StartTurn(crewID, characterID, playerID int64) (*core.RoundState, error) {
	if _, err := s.store.Character(characterID); err != nil {
		return nil, err
	}
	if _, err := s.crews.StartAction(crewID, characterID, playerID); err != nil {
		return nil, err
	}
	rs := s.store.Round(characterID)
	if rs.State != core.StateIdleWaiting {
		// Idempotent restart: the turn is already underway.
		return rs, nil
	}
	if err := transition(rs, core.StateDecisionPhase); err != nil {
		return nil, err
	}
	s.emitRound(rs)
	return rs, nil
}

// decisionRound fetches the round record and checks it is still accepting
// selections.
func (s *Service) decisionRound(characterID int64) (*core.RoundState, error) {
	rs := s.store.Round(characterID)
	if rs.State != core.StateDecisionPhase {
		return nil, errs.Validation("selections are only accepted in %s, current state is %s", core.StateDecisionPhase, rs.State)
	}
	return rs, nil
}

// SetApproach selects the approach driving the action.
func (s *Service) SetApproach(characterID int64, approach string) (*core.RoundState, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	if _, ok := char.ApproachRating(approach); !ok {
		return nil, errs.Validation("unknown approach %q", approach)
	}
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	rs.Approach = approach
	s.emitRound(rs)
	return rs, nil
}

// SetPosition selects the action's risk tier.
func (s *Service) SetPosition(characterID int64, p core.Position) (*core.RoundState, error) {
	if !p.Valid() {
		return nil, errs.Validation("unknown position %q", p)
	}
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	rs.Position = p
	s.emitRound(rs)
	return rs, nil
}

// SetEffect selects the action's effect tier.
func (s *Service) SetEffect(characterID int64, e core.Effect) (*core.RoundState, error) {
	if !e.Valid() {
		return nil, errs.Validation("unknown effect %q", e)
	}
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	rs.Effect = e
	s.emitRound(rs)
	return rs, nil
}

// SetPush toggles the push for this turn. The momentum is charged at commit,
// not here.
func (s *Service) SetPush(characterID int64, active bool, pushType core.PushType) (*core.RoundState, error) {
	if active && pushType != core.PushExtraDie && pushType != core.PushImprovedEffect {
		return nil, errs.Validation("unknown push type %q", pushType)
	}
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	rs.PushActive = active
	if active {
		rs.PushType = pushType
	} else {
		rs.PushType = ""
	}
	s.emitRound(rs)
	return rs, nil
}

// StageTrait stages a trait activation. A nil trait id clears the staging.
func (s *Service) StageTrait(characterID, traitID int64) (*core.RoundState, error) {
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	if traitID == 0 {
		rs.TraitTx = nil
		s.emitRound(rs)
		return rs, nil
	}
	trait, err := s.store.Trait(traitID)
	if err != nil {
		return nil, err
	}
	if trait.CharacterID != characterID {
		return nil, errs.Validation("trait %d does not belong to character %d", traitID, characterID)
	}
	if trait.Disabled {
		return nil, errs.Validation("trait %d is disabled until the next reset", traitID)
	}
	rs.TraitTx = &core.TraitTx{TraitID: traitID, MomentumCost: trait.MomentumCost}
	s.emitRound(rs)
	return rs, nil
}

// SelectEquipment stages the active and consumable items carried into the
// action. Passive items go through ApprovePassive instead.
func (s *Service) SelectEquipment(characterID int64, itemIDs []int64) (*core.RoundState, error) {
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	// Duplicates collapse: an item locks once and is priced once.
	seen := make(map[int64]bool, len(itemIDs))
	ids := make([]int64, 0, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		item, err := s.store.Equipment(id)
		if err != nil {
			return nil, err
		}
		if item.CharacterID != characterID {
			return nil, errs.Validation("item %d does not belong to character %d", id, characterID)
		}
		if !item.Equipped {
			return nil, errs.Validation("item %d is not equipped", id)
		}
		if item.Category == model.GearPassive {
			return nil, errs.Validation("item %d is passive and needs arbiter approval", id)
		}
		if item.Category == model.GearConsumable && item.Consumed {
			return nil, errs.Validation("item %d is already consumed", id)
		}
		ids = append(ids, id)
	}
	rs.EquippedForAction = ids
	s.emitRound(rs)
	return rs, nil
}

// ApprovePassive records the arbiter-approved passive item for the turn.
func (s *Service) ApprovePassive(characterID, itemID int64) (*core.RoundState, error) {
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	if itemID != 0 {
		item, err := s.store.Equipment(itemID)
		if err != nil {
			return nil, err
		}
		if item.CharacterID != characterID || item.Category != model.GearPassive {
			return nil, errs.Validation("item %d is not a passive item of character %d", itemID, characterID)
		}
		if !item.Equipped {
			return nil, errs.Validation("item %d is not equipped", itemID)
		}
	}
	rs.ApprovedPassiveID = itemID
	s.emitRound(rs)
	return rs, nil
}

// UseRally spends the character's one-shot rally for an extra die this turn.
func (s *Service) UseRally(characterID int64) (*core.RoundState, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	rs, err := s.decisionRound(characterID)
	if err != nil {
		return nil, err
	}
	if rs.RallyInvoked {
		return rs, nil
	}
	if !char.RallyAvailable {
		return nil, errs.Validation("rally already spent; it returns on the next reset")
	}
	char.RallyAvailable = false
	rs.RallyInvoked = true
	s.store.MarkCharacterDirty(char.ID)
	s.log.Append(replication.NewRallyCommand(replication.TypeRallyUsed, char.ID, false))
	s.emitRound(rs)
	return rs, nil
}

// lockSet collects the items this commit locks: staged active/consumable
// items plus the approved passive.
func (s *Service) lockSet(rs *core.RoundState) ([]*model.Equipment, error) {
	var items []*model.Equipment
	for _, id := range rs.EquippedForAction {
		item, err := s.store.Equipment(id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rs.ApprovedPassiveID != 0 {
		item, err := s.store.Equipment(rs.ApprovedPassiveID)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// poolSize derives the dice pool from the approach rating, the push and the
// staged trait, rally and active-item modifiers.
func (s *Service) poolSize(char *model.Character, rs *core.RoundState) int {
	rating, _ := char.ApproachRating(rs.Approach)
	pool := rating
	if rs.PushActive && rs.PushType == core.PushExtraDie {
		pool++
	}
	if rs.TraitTx != nil {
		pool++
	}
	if rs.RallyInvoked {
		pool++
	}
	pool += len(rs.EquippedForAction)
	return pool
}

// CommitRoll executes the turn commit as one atomic batch: price the push,
// the staged trait and the first-locks, reject the whole batch on
// insufficient momentum, otherwise debit, lock, roll and route the outcome.
func (s *Service) CommitRoll(ctx context.Context, characterID int64) (*core.RoundState, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	rs := s.store.Round(characterID)
	if rs.State != core.StateDecisionPhase {
		return nil, errs.Validation("cannot roll from state %s", rs.State)
	}
	if rs.Approach == "" {
		return nil, errs.Validation("an approach must be selected before rolling")
	}
	if rs.Position == "" {
		return nil, errs.Validation("a position must be selected before rolling")
	}

	action := s.store.Action(char.CrewID)
	if action == nil || action.CharacterID != characterID {
		return nil, errs.Concurrency("no action in progress for character %d", characterID)
	}

	items, err := s.lockSet(rs)
	if err != nil {
		return nil, err
	}

	// Step 1: total momentum cost for the batch.
	cost := gear.FirstLockCost(items)
	if rs.PushActive {
		cost++
	}
	if rs.TraitTx != nil && rs.TraitTx.MomentumCost > 0 {
		cost++
	}

	// Step 2: validate before any mutation so a rejection leaves no trace.
	crewRec, err := s.store.Crew(char.CrewID)
	if err != nil {
		return nil, err
	}
	if cost > crewRec.CurrentMomentum {
		return nil, errs.Validation("insufficient momentum: batch costs %d, pool holds %d", cost, crewRec.CurrentMomentum)
	}

	// Step 3: debit and lock.
	if rs.Effect == "" {
		rs.Effect = core.EffectStandard
	}
	if _, err := s.crews.Spend(char.CrewID, cost); err != nil {
		return nil, err
	}
	for _, item := range items {
		consumed := item.Category == model.GearConsumable
		item.Locked = true
		if consumed {
			item.Consumed = true
		}
		s.store.MarkEquipmentDirty(item.ID)
		s.log.Append(replication.NewEquipmentCommand(replication.TypeEquipmentLocked, item.ID, characterID, consumed))
	}
	if _, err := s.crews.CommitAction(char.CrewID); err != nil {
		return nil, err
	}

	// Steps 4 and 5: roll, route, record.
	if err := transition(rs, core.StateRolling); err != nil {
		return nil, err
	}
	s.roll(char, rs)
	if err := s.routeOutcome(rs); err != nil {
		return nil, err
	}
	s.emitRound(rs)

	if s.hooks != nil {
		_, _ = s.hooks.Trigger(ctx, hook.OnTurnCommitted, rs)
	}
	s.logger.Info("turn committed",
		zap.Int64("character_id", characterID),
		zap.Int("momentum_cost", cost),
		zap.String("outcome", string(rs.Outcome)))
	return rs, nil
}

// roll fills the round record with the dice result for the staged pool.
func (s *Service) roll(char *model.Character, rs *core.RoundState) {
	n := dice.PoolSize(rs.Position, s.poolSize(char, rs))
	rs.Dice = s.roller.Roll(n)
	rs.Result = dice.Read(rs.Position, rs.Dice)
	rs.Outcome = dice.MapOutcome(rs.Dice, rs.Result)
}

// routeOutcome moves a freshly rolled turn out of ROLLING.
func (s *Service) routeOutcome(rs *core.RoundState) error {
	if rs.Outcome.Succeeded() {
		return transition(rs, core.StateSuccessComplete)
	}
	return transition(rs, core.StateResolvingOutcome)
}

// UseStims lets the acting character risk a stims reroll while the arbiter
// is resolving a consequence. The crew addiction clock always advances by
// one (created on demand); the stims die then either grants a fresh roll or
// locks stims for the rest of the resolution.
func (s *Service) UseStims(ctx context.Context, characterID int64) (*core.RoundState, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	rs := s.store.Round(characterID)
	if rs.State != core.StateResolvingOutcome {
		return nil, errs.Validation("stims are only available while a consequence is being resolved, state is %s", rs.State)
	}
	if err := transition(rs, core.StateStimsRolling); err != nil {
		return nil, err
	}

	addiction := s.store.CrewClockByCategory(char.CrewID, model.ClockAddiction)
	if addiction == nil {
		addiction, err = s.clocks.Create(&model.Clock{
			OwnerID:     char.CrewID,
			OwnerKind:   model.OwnerCrew,
			Category:    model.ClockAddiction,
			Name:        "addiction",
			MaxSegments: addictionClockSegments,
		})
		if err != nil {
			return nil, err
		}
	}
	if _, err := s.clocks.Advance(ctx, addiction.ID, 1); err != nil {
		return nil, err
	}

	stimsDie := s.roller.Roll(1)[0]
	if stimsDie >= stimsSuccessFace {
		// Fresh roll with the same staged pool.
		if err := transition(rs, core.StateRolling); err != nil {
			return nil, err
		}
		s.roll(char, rs)
		if err := s.routeOutcome(rs); err != nil {
			return nil, err
		}
	} else {
		if err := transition(rs, core.StateStimsLocked); err != nil {
			return nil, err
		}
		if err := transition(rs, core.StateResolvingOutcome); err != nil {
			return nil, err
		}
	}
	s.emitRound(rs)
	s.logger.Info("stims used",
		zap.Int64("character_id", characterID),
		zap.Int("stims_die", stimsDie),
		zap.String("state", string(rs.State)))
	return rs, nil
}

// Suggestions returns the clock interactions that fit the character's rolled
// outcome. The arbiter applies at most one, by explicit choice.
func (s *Service) Suggestions(characterID int64) ([]clock.Suggestion, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	rs := s.store.Round(characterID)
	if rs.Outcome == "" {
		return nil, errs.Validation("no rolled outcome to suggest for")
	}
	return clock.Suggest(clock.SuggestionContext{
		Outcome:     rs.Outcome,
		Position:    rs.Position,
		Effect:      rs.Effect,
		CharacterID: characterID,
		CrewID:      char.CrewID,
	}, s.store.AllClocks()), nil
}

// applyChoice applies the arbiter's selected clock interaction, if any.
func (s *Service) applyChoice(ctx context.Context, rs *core.RoundState, choice *core.ConsequenceTx) error {
	if choice == nil {
		return nil
	}
	rs.ConsequenceTx = choice
	if choice.Advance {
		_, err := s.clocks.Advance(ctx, choice.ClockID, choice.Amount)
		return err
	}
	_, err := s.clocks.Reduce(ctx, choice.ClockID, choice.Amount)
	return err
}

// finishTurn resets the round record to idle and releases the action lock.
func (s *Service) finishTurn(char *model.Character, rs *core.RoundState) error {
	if err := s.crews.ClearAction(char.CrewID, true); err != nil {
		return err
	}
	rs.Reset()
	s.emitRound(rs)
	return nil
}

// ResolveConsequence closes a failed or partial turn: the arbiter may apply
// one selected clock interaction, then effects apply and the turn returns to
// idle.
func (s *Service) ResolveConsequence(ctx context.Context, characterID int64, choice *core.ConsequenceTx) (*core.RoundState, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	rs := s.store.Round(characterID)
	if rs.State != core.StateResolvingOutcome {
		return nil, errs.Validation("no consequence to resolve in state %s", rs.State)
	}
	if err := s.validateChoice(rs, choice); err != nil {
		return nil, err
	}
	if err := transition(rs, core.StateApplyingEffects); err != nil {
		return nil, err
	}
	if err := s.applyChoice(ctx, rs, choice); err != nil {
		return nil, err
	}
	s.emitRound(rs)
	if err := transition(rs, core.StateIdleWaiting); err != nil {
		return nil, err
	}
	if err := s.finishTurn(char, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// CompleteSuccess closes a successful turn, optionally applying one progress
// interaction.
func (s *Service) CompleteSuccess(ctx context.Context, characterID int64, choice *core.ConsequenceTx) (*core.RoundState, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	rs := s.store.Round(characterID)
	if rs.State != core.StateSuccessComplete {
		return nil, errs.Validation("no success to complete in state %s", rs.State)
	}
	if err := s.validateChoice(rs, choice); err != nil {
		return nil, err
	}
	if err := transition(rs, core.StateTurnComplete); err != nil {
		return nil, err
	}
	if err := s.applyChoice(ctx, rs, choice); err != nil {
		return nil, err
	}
	s.emitRound(rs)
	if err := transition(rs, core.StateIdleWaiting); err != nil {
		return nil, err
	}
	if err := s.finishTurn(char, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// validateChoice checks the selected clock interaction before any state
// moves, so a rejected choice leaves the turn exactly where it was and the
// caller can retry with a corrected one.
func (s *Service) validateChoice(rs *core.RoundState, choice *core.ConsequenceTx) error {
	if choice == nil {
		return nil
	}
	if rs.ConsequenceTx != nil {
		return errs.Validation("a clock interaction was already applied this turn")
	}
	if choice.Amount < 0 {
		return errs.Validation("interaction amount must be non-negative, got %d", choice.Amount)
	}
	if _, err := s.store.Clock(choice.ClockID); err != nil {
		return err
	}
	return nil
}

// AbortTurn discards the in-progress turn. The authority may abort at any
// point, even after commit; the owning participant only before commit.
// Aborting with nothing in progress is a no-op for the authority.
func (s *Service) AbortTurn(characterID int64, asAuthority bool) (*core.RoundState, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	if err := s.crews.ClearAction(char.CrewID, asAuthority); err != nil {
		return nil, err
	}
	rs := s.store.Round(characterID)
	if rs.State == core.StateIdleWaiting {
		return rs, nil
	}
	// Abort is the one move that bypasses the transition table.
	rs.Reset()
	s.emitRound(rs)
	s.logger.Info("turn aborted",
		zap.Int64("character_id", characterID),
		zap.Bool("as_authority", asAuthority))
	return rs, nil
}
