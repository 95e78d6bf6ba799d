package replication

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"go.uber.org/zap"
)

// Applier applies replicated commands to a session store exactly once. The
// applied-id set is owned by the applier instance, never module-global, so
// parallel sessions and tests cannot leak state into each other.
type Applier struct {
	mu         sync.Mutex
	store      *state.Store
	applied    map[string]struct{}
	duplicates int
	logger     *zap.Logger
}

// NewApplier creates an Applier bound to the given store.
func NewApplier(store *state.Store, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		store:   store,
		applied: make(map[string]struct{}),
		logger:  logger,
	}
}

// MarkApplied records command ids as already applied without executing them.
// The initial session load calls this for the whole persisted history so
// replay-on-join never re-triggers side effects.
func (a *Applier) MarkApplied(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.applied[id] = struct{}{}
	}
}

// Duplicates returns how many duplicate commands were skipped so far.
func (a *Applier) Duplicates() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duplicates
}

// ApplyDelta applies a merged broadcast delta in the exact order provided.
// The first hard error aborts the rest of the delta.
func (a *Applier) ApplyDelta(d Delta) error {
	for _, cmd := range d.Merged() {
		if err := a.Apply(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Apply executes one command against the store. A command id seen before is
// a silent no-op (counted, never an error): overlapping deltas are legitimate
// after a reconnect resync.
func (a *Applier) Apply(cmd Command) error {
	a.mu.Lock()
	if _, dup := a.applied[cmd.CommandID]; dup {
		a.duplicates++
		a.mu.Unlock()
		a.logger.Debug("duplicate command skipped",
			zap.String("command_id", cmd.CommandID),
			zap.String("type", string(cmd.Type)))
		return nil
	}
	a.applied[cmd.CommandID] = struct{}{}
	a.mu.Unlock()

	switch cmd.Category {
	case CategoryCharacter:
		return a.applyCharacter(cmd)
	case CategoryCrew:
		return a.applyCrew(cmd)
	case CategoryClock:
		return a.applyClock(cmd)
	case CategoryRoundState:
		return a.applyRoundState(cmd)
	default:
		return fmt.Errorf("replication: unknown category %q", cmd.Category)
	}
}

func (a *Applier) applyCharacter(cmd Command) error {
	switch cmd.Type {
	case TypeTraitDisabled, TypeTraitEnabled:
		var p TraitPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		trait, err := a.store.Trait(p.TraitID)
		if err != nil {
			return err
		}
		trait.Disabled = cmd.Type == TypeTraitDisabled
		a.store.MarkTraitDirty(trait.ID)
		return nil

	case TypeRallyUsed, TypeRallyReset:
		var p RallyPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		char, err := a.store.Character(p.CharacterID)
		if err != nil {
			return err
		}
		char.RallyAvailable = p.Available
		a.store.MarkCharacterDirty(char.ID)
		return nil

	case TypeEquipmentEquipped, TypeEquipmentUnequipped, TypeEquipmentLocked:
		var p EquipmentPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		item, err := a.store.Equipment(p.ItemID)
		if err != nil {
			return err
		}
		switch cmd.Type {
		case TypeEquipmentEquipped:
			item.Equipped = true
		case TypeEquipmentUnequipped:
			item.Equipped = false
		case TypeEquipmentLocked:
			item.Locked = true
			if p.Consumed {
				item.Consumed = true
			}
		}
		a.store.MarkEquipmentDirty(item.ID)
		return nil

	default:
		return fmt.Errorf("replication: unknown character command %q", cmd.Type)
	}
}

func (a *Applier) applyCrew(cmd Command) error {
	switch cmd.Type {
	case TypeMomentumChanged:
		var p MomentumPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		crew, err := a.store.Crew(p.CrewID)
		if err != nil {
			return err
		}
		crew.CurrentMomentum = model.ClampMomentum(p.Momentum)
		a.store.MarkCrewDirty(crew.ID)
		return nil

	case TypeActionStarted, TypeActionCommitted:
		var p ActionPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		if p.Action == nil {
			return fmt.Errorf("replication: %s without action payload", cmd.Type)
		}
		a.store.SetAction(p.Action)
		return nil

	case TypeActionCleared:
		var p ActionPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		a.store.ClearAction(p.CrewID)
		return nil

	default:
		return fmt.Errorf("replication: unknown crew command %q", cmd.Type)
	}
}

func (a *Applier) applyClock(cmd Command) error {
	var p ClockPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return err
	}

	switch cmd.Type {
	case TypeClockCreated:
		a.store.PutClock(&model.Clock{
			ID:          p.ClockID,
			OwnerID:     p.OwnerID,
			OwnerKind:   p.OwnerKind,
			Category:    p.Category,
			Subtype:     p.Subtype,
			Tier:        p.Tier,
			Name:        p.Name,
			Segments:    p.Segments,
			MaxSegments: p.MaxSegments,
			Frozen:      p.Frozen,
		})
		return nil

	case TypeClockAdvanced, TypeClockReduced:
		if p.Deleted {
			a.store.DeleteClock(p.ClockID)
			return nil
		}
		clock, err := a.store.Clock(p.ClockID)
		if err != nil {
			return err
		}
		clock.Segments = p.Segments
		return nil

	case TypeClockFrozen:
		clock, err := a.store.Clock(p.ClockID)
		if err != nil {
			return err
		}
		clock.Frozen = p.Frozen
		return nil

	case TypeClockTierChanged:
		clock, err := a.store.Clock(p.ClockID)
		if err != nil {
			return err
		}
		clock.Tier = p.Tier
		return nil

	default:
		return fmt.Errorf("replication: unknown clock command %q", cmd.Type)
	}
}

func (a *Applier) applyRoundState(cmd Command) error {
	switch cmd.Type {
	case TypeRoundStateChanged:
		var p RoundStatePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		if p.Round == nil {
			return fmt.Errorf("replication: round_state_changed without round payload")
		}
		a.store.SetRound(p.Round)
		return nil
	default:
		return fmt.Errorf("replication: unknown round-state command %q", cmd.Type)
	}
}
