package ws

import (
	"context"
	"encoding/json"

	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/session"
)

// Resource and table-administration handlers. Clock mutations, trait toggles
// and the crew reset are arbiter moves; equipping is a player move.

func (h *Handlers) HandleEquip(ctx context.Context, s *session.Session, raw json.RawMessage) error {
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
	var p struct {
		ItemID int64 `json:"itemId"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	item, err := h.gear.Equip(req.CharacterID, p.ItemID)
	respond(s, req, item, err)
	return nil
}

func (h *Handlers) HandleUnequip(ctx context.Context, s *session.Session, raw json.RawMessage) error {
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
	var p struct {
		ItemID int64 `json:"itemId"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	item, err := h.gear.Unequip(req.CharacterID, p.ItemID)
	respond(s, req, item, err)
	return nil
}

func (h *Handlers) HandleSetTraitDisabled(ctx context.Context, s *session.Session, raw json.RawMessage) error {
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
		TraitID  int64 `json:"traitId"`
		Disabled bool  `json:"disabled"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	trait, err := h.gear.SetTraitDisabled(p.TraitID, p.Disabled)
	respond(s, req, trait, err)
	return nil
}

func (h *Handlers) HandleClockCreate(ctx context.Context, s *session.Session, raw json.RawMessage) error {
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
	var p model.Clock
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	clk, err := h.clocks.Create(&p)
	respond(s, req, clk, err)
	return nil
}

func (h *Handlers) HandleClockAdvance(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.clockStep(ctx, s, raw, true)
}

func (h *Handlers) HandleClockReduce(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	return h.clockStep(ctx, s, raw, false)
}

func (h *Handlers) clockStep(ctx context.Context, s *session.Session, raw json.RawMessage, advance bool) error {
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
		ClockID int64 `json:"clockId"`
		Amount  int   `json:"amount"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	var clk *model.Clock
	if advance {
		clk, err = h.clocks.Advance(ctx, p.ClockID, p.Amount)
	} else {
		clk, err = h.clocks.Reduce(ctx, p.ClockID, p.Amount)
	}
	respond(s, req, clk, err)
	return nil
}

func (h *Handlers) HandleClockFreeze(ctx context.Context, s *session.Session, raw json.RawMessage) error {
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
		ClockID int64 `json:"clockId"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	clk, err := h.clocks.Freeze(p.ClockID)
	respond(s, req, clk, err)
	return nil
}

func (h *Handlers) HandleCrewReset(ctx context.Context, s *session.Session, raw json.RawMessage) error {
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
		CrewID int64 `json:"crewId"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		respond(s, req, nil, err)
		return nil
	}
	report, err := h.clocks.PerformReset(ctx, p.CrewID)
	respond(s, req, report, err)
	return nil
}
