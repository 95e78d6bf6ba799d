package ws

import (
	"context"
	"encoding/json"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/clock"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/game/crew"
	"github.com/mevsgame/fitgd-sub006/game/gear"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/game/turn"
	"github.com/mevsgame/fitgd-sub006/session"
	"go.uber.org/zap"
)

// Handlers bundles the services behind the WS message surface. All mutations
// run on the authority process; replicas only ever see the resulting command
// deltas.
type Handlers struct {
	store  *state.Store
	turns  *turn.Service
	crews  *crew.Service
	clocks *clock.Service
	gear   *gear.Service
	bc     *Broadcaster
	logger *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(store *state.Store, turns *turn.Service, crews *crew.Service, clocks *clock.Service, gearSvc *gear.Service, bc *Broadcaster, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		store:  store,
		turns:  turns,
		crews:  crews,
		clocks: clocks,
		gear:   gearSvc,
		bc:     bc,
		logger: logger,
	}
}

// RegisterAll wires every message type into the router.
func (h *Handlers) RegisterAll(r *Router) {
	// turn flow
	r.On("action_start", h.HandleActionStart)
	r.On("set_approach", h.HandleSetApproach)
	r.On("set_position", h.HandleSetPosition)
	r.On("set_effect", h.HandleSetEffect)
	r.On("set_push", h.HandleSetPush)
	r.On("stage_trait", h.HandleStageTrait)
	r.On("select_equipment", h.HandleSelectEquipment)
	r.On("approve_passive", h.HandleApprovePassive)
	r.On("use_rally", h.HandleUseRally)
	r.On("commit_roll", h.HandleCommitRoll)
	r.On("use_stims", h.HandleUseStims)
	r.On("suggestions", h.HandleSuggestions)
	r.On("resolve_consequence", h.HandleResolveConsequence)
	r.On("complete_success", h.HandleCompleteSuccess)
	r.On("abort_turn", h.HandleAbortTurn)

	// resources and table administration
	r.On("equip_item", h.HandleEquip)
	r.On("unequip_item", h.HandleUnequip)
	r.On("set_trait_disabled", h.HandleSetTraitDisabled)
	r.On("clock_create", h.HandleClockCreate)
	r.On("clock_advance", h.HandleClockAdvance)
	r.On("clock_reduce", h.HandleClockReduce)
	r.On("clock_freeze", h.HandleClockFreeze)
	r.On("crew_reset", h.HandleCrewReset)

	// connection upkeep
	r.On("heartbeat", h.HandleHeartbeat)
	r.On("resync", h.HandleResync)
}

// ownsCharacter verifies the session may act for the character: its own
// character, or anything when it is the arbiter.
func (h *Handlers) ownsCharacter(s *session.Session, characterID int64) error {
	if s.Arbiter {
		return nil
	}
	char, err := h.store.Character(characterID)
	if err != nil {
		return err
	}
	if char.PlayerID != s.PlayerID {
		return errs.Validation("character %d is not controlled by player %d", characterID, s.PlayerID)
	}
	return nil
}

func requireArbiter(s *session.Session) error {
	if !s.Arbiter {
		return errs.Validation("operation requires the arbiter")
	}
	return nil
}

// gate rejects mutations while the circuit breaker is tripped: the authority
// must not advance state that replicas can no longer see. Reads, heartbeats
// and resync stay available.
func (h *Handlers) gate() error {
	if h.bc.Tripped() {
		return errs.ErrTripped
	}
	return nil
}

func (h *Handlers) HandleActionStart(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}
	if err := h.gate(); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	if err := h.ownsCharacter(s, req.CharacterID); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	char, err := h.store.Character(req.CharacterID)
	if err != nil {
		respond(s, req, nil, err)
		return nil
	}
	rs, err := h.turns.StartTurn(char.CrewID, req.CharacterID, char.PlayerID)
	respond(s, req, rs, err)
	return nil
}

func (h *Handlers) HandleSetApproach(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		var p struct {
			Approach string `json:"approach"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.turns.SetApproach(req.CharacterID, p.Approach)
	})
}

func (h *Handlers) HandleSetPosition(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		var p struct {
			Position core.Position `json:"position"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.turns.SetPosition(req.CharacterID, p.Position)
	})
}

func (h *Handlers) HandleSetEffect(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		var p struct {
			Effect core.Effect `json:"effect"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.turns.SetEffect(req.CharacterID, p.Effect)
	})
}

func (h *Handlers) HandleSetPush(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		var p struct {
			Active   bool          `json:"active"`
			PushType core.PushType `json:"pushType"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.turns.SetPush(req.CharacterID, p.Active, p.PushType)
	})
}

func (h *Handlers) HandleStageTrait(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		var p struct {
			TraitID int64 `json:"traitId"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.turns.StageTrait(req.CharacterID, p.TraitID)
	})
}

func (h *Handlers) HandleSelectEquipment(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		var p struct {
			ItemIDs []int64 `json:"itemIds"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, err
		}
		return h.turns.SelectEquipment(req.CharacterID, p.ItemIDs)
	})
}

// HandleApprovePassive is arbiter-only: passive gear needs table approval.
func (h *Handlers) HandleApprovePassive(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}
	if err := h.gate(); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	if err := requireArbiter(s); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	var p struct {
		ItemID int64 `json:"itemId"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	rs, err := h.turns.ApprovePassive(req.CharacterID, p.ItemID)
	respond(s, req, rs, err)
	return nil
}

func (h *Handlers) HandleUseRally(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		return h.turns.UseRally(req.CharacterID)
	})
}

func (h *Handlers) HandleCommitRoll(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		return h.turns.CommitRoll(ctx, req.CharacterID)
	})
}

func (h *Handlers) HandleUseStims(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.stage(s, raw, func(req Request) (*core.RoundState, error) {
		return h.turns.UseStims(ctx, req.CharacterID)
	})
}

func (h *Handlers) HandleSuggestions(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}
	sugg, err := h.turns.Suggestions(req.CharacterID)
	respond(s, req, sugg, err)
	return nil
}

func (h *Handlers) HandleResolveConsequence(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}
	if err := h.gate(); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	if err := requireArbiter(s); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	var choice *core.ConsequenceTx
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		choice = &core.ConsequenceTx{}
		if err := json.Unmarshal(req.Payload, choice); err != nil {
			respond(s, req, nil, err)
			return nil
		}
		if choice.ClockID == 0 {
			choice = nil
		}
	}
	rs, err := h.turns.ResolveConsequence(ctx, req.CharacterID, choice)
	respond(s, req, rs, err)
	return nil
}

func (h *Handlers) HandleCompleteSuccess(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}
	if err := h.gate(); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	if err := h.ownsCharacter(s, req.CharacterID); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	var choice *core.ConsequenceTx
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		choice = &core.ConsequenceTx{}
		if err := json.Unmarshal(req.Payload, choice); err != nil {
			respond(s, req, nil, err)
			return nil
		}
		if choice.ClockID == 0 {
			choice = nil
		}
	}
	rs, err := h.turns.CompleteSuccess(ctx, req.CharacterID, choice)
	respond(s, req, rs, err)
	return nil
}

func (h *Handlers) HandleAbortTurn(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}
	if err := h.gate(); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	if err := h.ownsCharacter(s, req.CharacterID); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	rs, err := h.turns.AbortTurn(req.CharacterID, s.Arbiter)
	respond(s, req, rs, err)
	return nil
}

// stage runs the common envelope-decode / ownership-check / respond cycle for
// operations owned by the acting player.
func (h *Handlers) stage(s *session.Session, raw json.RawMessage, op func(Request) (*core.RoundState, error)) error {
	req, err := decodeRequest(raw)
	if err != nil {
		return err
	}
	if err := h.gate(); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	if err := h.ownsCharacter(s, req.CharacterID); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	rs, err := op(req)
	respond(s, req, rs, err)
	return nil
}
