package turn

import (
	"context"
	"errors"
	"testing"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/clock"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/game/crew"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptRoller feeds tests a predetermined face sequence.
type scriptRoller struct {
	faces []int
}

func (r *scriptRoller) Roll(n int) []int {
	if n > len(r.faces) {
		panic("script exhausted")
	}
	out := r.faces[:n]
	r.faces = r.faces[n:]
	return out
}

type fixture struct {
	store  *state.Store
	log    *replication.Log
	roller *scriptRoller
	clocks *clock.Service
	svc    *Service
}

func newFixture(t *testing.T, momentum int, faces ...int) *fixture {
	t.Helper()
	store := state.NewStore()
	store.PutCrew(&model.Crew{ID: 1, CurrentMomentum: momentum})
	store.PutCharacter(&model.Character{
		ID: 10, CrewID: 1, PlayerID: 100, Name: "vex",
		Force: 2, Finesse: 1, Insight: 1, Presence: 1,
		LoadLimit: 5, RallyAvailable: true,
	})
	log := replication.NewLog(nil)
	crews := crew.NewService(store, log, nil)
	clocks := clock.NewService(store, log, nil, nil)
	roller := &scriptRoller{faces: faces}
	svc := NewService(store, log, crews, clocks, roller, nil, nil)
	return &fixture{store: store, log: log, roller: roller, clocks: clocks, svc: svc}
}

func (f *fixture) startDecision(t *testing.T) *core.RoundState {
	t.Helper()
	rs, err := f.svc.StartTurn(1, 10, 100)
	require.NoError(t, err)
	require.Equal(t, core.StateDecisionPhase, rs.State)
	_, err = f.svc.SetApproach(10, model.ApproachForce)
	require.NoError(t, err)
	_, err = f.svc.SetPosition(10, core.PositionRisky)
	require.NoError(t, err)
	return rs
}

func (f *fixture) momentum(t *testing.T) int {
	t.Helper()
	c, err := f.store.Crew(1)
	require.NoError(t, err)
	return c.CurrentMomentum
}

func TestTransitionTable_StimsLockedOnlyViaStimsRolling(t *testing.T) {
	assert.False(t, CanTransition(core.StateResolvingOutcome, core.StateStimsLocked),
		"stims lock must not be reachable directly from consequence resolution")
	assert.True(t, CanTransition(core.StateStimsRolling, core.StateStimsLocked))

	for _, next := range AllowedTransitions(core.StateResolvingOutcome) {
		assert.NotEqual(t, core.StateStimsLocked, next)
	}
}

func TestStartTurn_IdempotentRestart(t *testing.T) {
	f := newFixture(t, 5)
	first, err := f.svc.StartTurn(1, 10, 100)
	require.NoError(t, err)

	again, err := f.svc.StartTurn(1, 10, 100)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, core.StateDecisionPhase, again.State)
}

func TestStaging_OnlyInDecisionPhase(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.svc.SetApproach(10, model.ApproachForce)
	assert.True(t, errors.Is(err, errs.ErrValidation), "staging before the turn starts must fail")
}

func TestCommitRoll_PushPlusRareFirstLockCostsTwo(t *testing.T) {
	// Force 2, push adds a die and one rare active item adds another: pool 4.
	f := newFixture(t, 5, 6, 3, 2, 1)
	f.store.PutEquipment(&model.Equipment{
		ID: 20, CharacterID: 10, Name: "grapnel", Tier: model.GearRare,
		Category: model.GearActive, Slots: 1, Equipped: true,
	})
	f.startDecision(t)
	_, err := f.svc.SetPush(10, true, core.PushExtraDie)
	require.NoError(t, err)
	_, err = f.svc.SelectEquipment(10, []int64{20})
	require.NoError(t, err)

	rs, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, f.momentum(t), "5 minus push 1 minus rare first-lock 1")
	assert.Equal(t, []int{6, 3, 2, 1}, rs.Dice)
	assert.Equal(t, core.OutcomeSuccess, rs.Outcome)
	assert.Equal(t, core.StateSuccessComplete, rs.State)

	item, err := f.store.Equipment(20)
	require.NoError(t, err)
	assert.True(t, item.Locked)
	assert.False(t, item.Consumed)
}

func TestCommitRoll_RelockedItemIsFree(t *testing.T) {
	f := newFixture(t, 5, 6, 6, 6)
	f.store.PutEquipment(&model.Equipment{
		ID: 20, CharacterID: 10, Name: "grapnel", Tier: model.GearRare,
		Category: model.GearActive, Slots: 1, Equipped: true, Locked: true,
	})
	f.startDecision(t)
	_, err := f.svc.SelectEquipment(10, []int64{20})
	require.NoError(t, err)

	_, err = f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 5, f.momentum(t), "an already locked item costs nothing")
}

func TestCommitRoll_ConsumableIsConsumedOnLock(t *testing.T) {
	f := newFixture(t, 5, 6, 6, 6)
	f.store.PutEquipment(&model.Equipment{
		ID: 21, CharacterID: 10, Name: "stim pack", Tier: model.GearCommon,
		Category: model.GearConsumable, Slots: 1, Equipped: true,
	})
	f.startDecision(t)
	_, err := f.svc.SelectEquipment(10, []int64{21})
	require.NoError(t, err)

	_, err = f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	item, err := f.store.Equipment(21)
	require.NoError(t, err)
	assert.True(t, item.Locked)
	assert.True(t, item.Consumed)

	// A consumed consumable cannot be staged again.
	f2 := newFixture(t, 5)
	f2.store.PutEquipment(&model.Equipment{
		ID: 21, CharacterID: 10, Category: model.GearConsumable,
		Equipped: true, Consumed: true,
	})
	f2.startDecision(t)
	_, err = f2.svc.SelectEquipment(10, []int64{21})
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestCommitRoll_InsufficientMomentumLeavesNoTrace(t *testing.T) {
	// Batch cost 3: push, priced trait and an epic first lock. Pool holds 2.
	f := newFixture(t, 2)
	f.store.PutTrait(&model.Trait{ID: 30, CharacterID: 10, Name: "iron will", MomentumCost: 1})
	f.store.PutEquipment(&model.Equipment{
		ID: 20, CharacterID: 10, Name: "relic blade", Tier: model.GearEpic,
		Category: model.GearActive, Slots: 2, Equipped: true,
	})
	f.startDecision(t)
	_, err := f.svc.SetPush(10, true, core.PushExtraDie)
	require.NoError(t, err)
	_, err = f.svc.StageTrait(10, 30)
	require.NoError(t, err)
	_, err = f.svc.SelectEquipment(10, []int64{20})
	require.NoError(t, err)

	_, err = f.svc.CommitRoll(context.Background(), 10)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	assert.Equal(t, 2, f.momentum(t), "rejected batch must not debit")
	item, _ := f.store.Equipment(20)
	assert.False(t, item.Locked, "rejected batch must not lock")
	rs := f.store.Round(10)
	assert.Equal(t, core.StateDecisionPhase, rs.State, "rejected batch must not advance the turn")
	action := f.store.Action(1)
	require.NotNil(t, action)
	assert.False(t, action.CommittedToRoll)
}

func TestCommitRoll_RequiresApproachAndPosition(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.svc.StartTurn(1, 10, 100)
	require.NoError(t, err)

	_, err = f.svc.CommitRoll(context.Background(), 10)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = f.svc.SetApproach(10, model.ApproachForce)
	require.NoError(t, err)
	_, err = f.svc.CommitRoll(context.Background(), 10)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestCommitRoll_DesperateRollsTwoDiceReadsLowest(t *testing.T) {
	f := newFixture(t, 5, 5, 2)
	f.startDecision(t)
	_, err := f.svc.SetPosition(10, core.PositionDesperate)
	require.NoError(t, err)
	// Push would normally grow the pool; desperate still rolls exactly two.
	_, err = f.svc.SetPush(10, true, core.PushExtraDie)
	require.NoError(t, err)

	rs, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2}, rs.Dice)
	assert.Equal(t, 2, rs.Result)
	assert.Equal(t, core.OutcomeFailure, rs.Outcome)
	assert.Equal(t, core.StateResolvingOutcome, rs.State)
}

func TestCommitRoll_CriticalOnTwoSixes(t *testing.T) {
	f := newFixture(t, 5, 6, 6)
	f.startDecision(t)
	rs, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeCritical, rs.Outcome)
	assert.Equal(t, core.StateSuccessComplete, rs.State)
}

func TestUseRally_OneShotExtraDie(t *testing.T) {
	// Force 2 plus the rally die: pool 3.
	f := newFixture(t, 5, 4, 3, 1)
	f.startDecision(t)
	rs, err := f.svc.UseRally(10)
	require.NoError(t, err)
	assert.True(t, rs.RallyInvoked)

	// Invoking again on the same turn is a no-op.
	_, err = f.svc.UseRally(10)
	require.NoError(t, err)

	char, _ := f.store.Character(10)
	assert.False(t, char.RallyAvailable)

	rs, err = f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rs.Dice, 3)
	assert.Equal(t, core.OutcomePartial, rs.Outcome)
}

func TestUseRally_SpentRallyRejected(t *testing.T) {
	f := newFixture(t, 5)
	char, _ := f.store.Character(10)
	char.RallyAvailable = false
	f.startDecision(t)
	_, err := f.svc.UseRally(10)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestStageTrait_DisabledTraitRejected(t *testing.T) {
	f := newFixture(t, 5)
	f.store.PutTrait(&model.Trait{ID: 30, CharacterID: 10, Disabled: true})
	f.startDecision(t)
	_, err := f.svc.StageTrait(10, 30)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestSelectEquipment_DuplicateIDsCollapseAndChargeOnce(t *testing.T) {
	// Force 2 plus one rare item: pool 3.
	f := newFixture(t, 5, 6, 3, 2)
	f.store.PutEquipment(&model.Equipment{
		ID: 20, CharacterID: 10, Name: "grapnel", Tier: model.GearRare,
		Category: model.GearActive, Slots: 1, Equipped: true,
	})
	f.startDecision(t)

	_, err := f.svc.SelectEquipment(10, []int64{20, 20, 20})
	require.NoError(t, err)
	rs := f.store.Round(10)
	assert.Equal(t, []int64{20}, rs.EquippedForAction)

	rs, err = f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rs.Dice, 3, "the duplicate entries add no extra dice")
	assert.Equal(t, 4, f.momentum(t), "the rare first-lock is priced once")
}

func TestSelectEquipment_PassiveNeedsApproval(t *testing.T) {
	f := newFixture(t, 5)
	f.store.PutEquipment(&model.Equipment{
		ID: 22, CharacterID: 10, Category: model.GearPassive, Equipped: true,
	})
	f.startDecision(t)
	_, err := f.svc.SelectEquipment(10, []int64{22})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = f.svc.ApprovePassive(10, 22)
	require.NoError(t, err)
	rs := f.store.Round(10)
	assert.Equal(t, int64(22), rs.ApprovedPassiveID)
}

func TestUseStims_LowDieLocksStims(t *testing.T) {
	// Pool 2 rolls a failure, then the stims die comes up 2.
	f := newFixture(t, 5, 1, 1, 2)
	f.startDecision(t)
	rs, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, core.StateResolvingOutcome, rs.State)

	rs, err = f.svc.UseStims(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, core.StateResolvingOutcome, rs.State)

	n := len(rs.History)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, core.StateStimsRolling, rs.History[n-3])
	assert.Equal(t, core.StateStimsLocked, rs.History[n-2])
	assert.Equal(t, core.StateResolvingOutcome, rs.History[n-1])

	addiction := f.store.CrewClockByCategory(1, model.ClockAddiction)
	require.NotNil(t, addiction, "addiction clock is created on demand")
	assert.Equal(t, 1, addiction.Segments)
	assert.Equal(t, 8, addiction.MaxSegments)
}

func TestUseStims_HighDieGrantsReroll(t *testing.T) {
	// Failure roll, stims die 5, then the reroll comes up a success.
	f := newFixture(t, 5, 1, 1, 5, 6, 2)
	f.startDecision(t)
	_, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	rs, err := f.svc.UseStims(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSuccess, rs.Outcome)
	assert.Equal(t, core.StateSuccessComplete, rs.State)

	addiction := f.store.CrewClockByCategory(1, model.ClockAddiction)
	require.NotNil(t, addiction)
	assert.Equal(t, 1, addiction.Segments, "the addiction price is paid either way")
}

func TestUseStims_OnlyWhileResolving(t *testing.T) {
	f := newFixture(t, 5)
	f.startDecision(t)
	_, err := f.svc.UseStims(context.Background(), 10)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestResolveConsequence_AppliesOneClockAndFinishesTurn(t *testing.T) {
	f := newFixture(t, 5, 1, 1)
	harm, err := f.clocks.Create(&model.Clock{
		OwnerID: 10, OwnerKind: model.OwnerCharacter,
		Category: model.ClockHarm, Name: "bruised", MaxSegments: 6,
	})
	require.NoError(t, err)

	f.startDecision(t)
	_, err = f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	sugg, err := f.svc.Suggestions(10)
	require.NoError(t, err)
	require.NotEmpty(t, sugg)
	assert.Equal(t, 3, sugg[0].Amount, "risky failure inflicts three segments")

	rs, err := f.svc.ResolveConsequence(context.Background(), 10, &core.ConsequenceTx{
		ClockID: harm.ID, Advance: true, Amount: 3, Reasoning: "took the hit",
	})
	require.NoError(t, err)
	assert.Equal(t, core.StateIdleWaiting, rs.State)

	got, err := f.store.Clock(harm.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Segments)
	assert.Nil(t, f.store.Action(1), "finishing the turn releases the action lock")
}

func TestResolveConsequence_NilChoiceStillFinishes(t *testing.T) {
	f := newFixture(t, 5, 1, 1)
	f.startDecision(t)
	_, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	rs, err := f.svc.ResolveConsequence(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, core.StateIdleWaiting, rs.State)
	assert.Nil(t, f.store.Action(1))
}

func TestCompleteSuccess_OptionalProgressClock(t *testing.T) {
	f := newFixture(t, 5, 6, 6)
	progress, err := f.clocks.Create(&model.Clock{
		OwnerID: 1, OwnerKind: model.OwnerCrew,
		Category: model.ClockProgress, Name: "heist", MaxSegments: 8,
	})
	require.NoError(t, err)

	f.startDecision(t)
	_, err = f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	rs, err := f.svc.CompleteSuccess(context.Background(), 10, &core.ConsequenceTx{
		ClockID: progress.ID, Advance: true, Amount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StateIdleWaiting, rs.State)

	got, err := f.store.Clock(progress.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Segments)
	assert.Nil(t, f.store.Action(1))
}

func TestResolveConsequence_UnknownClockLeavesTurnResolvable(t *testing.T) {
	f := newFixture(t, 5, 1, 1)
	f.startDecision(t)
	_, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	_, err = f.svc.ResolveConsequence(context.Background(), 10, &core.ConsequenceTx{
		ClockID: 999, Advance: true, Amount: 3,
	})
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	rs := f.store.Round(10)
	assert.Equal(t, core.StateResolvingOutcome, rs.State,
		"a rejected choice must not advance the turn")

	// The arbiter retries with a corrected choice and the turn finishes.
	rs, err = f.svc.ResolveConsequence(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, core.StateIdleWaiting, rs.State)
	assert.Nil(t, f.store.Action(1))
}

func TestCompleteSuccess_UnknownClockLeavesTurnCompletable(t *testing.T) {
	f := newFixture(t, 5, 6, 6)
	f.startDecision(t)
	_, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	_, err = f.svc.CompleteSuccess(context.Background(), 10, &core.ConsequenceTx{
		ClockID: 999, Advance: true, Amount: 1,
	})
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	rs := f.store.Round(10)
	assert.Equal(t, core.StateSuccessComplete, rs.State)

	rs, err = f.svc.CompleteSuccess(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, core.StateIdleWaiting, rs.State)
}

func TestCompleteSuccess_WrongStateRejected(t *testing.T) {
	f := newFixture(t, 5, 1, 1)
	f.startDecision(t)
	_, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	_, err = f.svc.CompleteSuccess(context.Background(), 10, nil)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestAbortTurn_AuthorityBypassesCommitLock(t *testing.T) {
	f := newFixture(t, 5, 6, 6)
	f.startDecision(t)
	_, err := f.svc.CommitRoll(context.Background(), 10)
	require.NoError(t, err)

	_, err = f.svc.AbortTurn(10, false)
	assert.True(t, errors.Is(err, errs.ErrConcurrency), "participants cannot abort a committed turn")

	rs, err := f.svc.AbortTurn(10, true)
	require.NoError(t, err)
	assert.Equal(t, core.StateIdleWaiting, rs.State)
	assert.Nil(t, f.store.Action(1))
}

func TestAbortTurn_ParticipantBeforeCommit(t *testing.T) {
	f := newFixture(t, 5)
	f.startDecision(t)
	rs, err := f.svc.AbortTurn(10, false)
	require.NoError(t, err)
	assert.Equal(t, core.StateIdleWaiting, rs.State)
	assert.Nil(t, f.store.Action(1))
}
