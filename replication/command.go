// Package replication owns the per-category command log, the broadcast delta
// computation, the idempotent command applier and the large-broadcast circuit
// breaker. A command is the sole unit of replication and audit.
package replication

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mevsgame/fitgd-sub006/game/core"
)

// Category is a replicated entity category. Each category keeps its own
// ordered command list and its own broadcast cursor.
type Category string

const (
	CategoryCharacter  Category = "characters"
	CategoryCrew       Category = "crews"
	CategoryClock      Category = "clocks"
	CategoryRoundState Category = "playerRoundState"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryCharacter, CategoryCrew, CategoryClock, CategoryRoundState}

// Type tags a command. The set per category is closed; the applier matches
// exhaustively and rejects anything it does not know.
type Type string

const (
	// characters
	TypeTraitDisabled       Type = "trait_disabled"
	TypeTraitEnabled        Type = "trait_enabled"
	TypeRallyUsed           Type = "rally_used"
	TypeRallyReset          Type = "rally_reset"
	TypeEquipmentEquipped   Type = "equipment_equipped"
	TypeEquipmentUnequipped Type = "equipment_unequipped"
	TypeEquipmentLocked     Type = "equipment_locked"

	// crews
	TypeMomentumChanged Type = "momentum_changed"
	TypeActionStarted   Type = "action_started"
	TypeActionCommitted Type = "action_committed"
	TypeActionCleared   Type = "action_cleared"

	// clocks
	TypeClockCreated     Type = "clock_created"
	TypeClockAdvanced    Type = "clock_advanced"
	TypeClockReduced     Type = "clock_reduced"
	TypeClockFrozen      Type = "clock_frozen"
	TypeClockTierChanged Type = "clock_tier_changed"

	// playerRoundState
	TypeRoundStateChanged Type = "round_state_changed"
)

// Command is one committed mutation. CommandID is globally unique; applying
// the same id twice is a no-op on every replica.
type Command struct {
	CommandID string          `json:"commandId"`
	Category  Category        `json:"category"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

func newCommand(cat Category, typ Type, payload interface{}) Command {
	raw, _ := json.Marshal(payload)
	return Command{
		CommandID: uuid.NewString(),
		Category:  cat,
		Type:      typ,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ---- payloads ----

// TraitPayload carries trait enable/disable commands.
type TraitPayload struct {
	TraitID     int64 `json:"traitId"`
	CharacterID int64 `json:"characterId"`
}

// RallyPayload carries rally flag commands.
type RallyPayload struct {
	CharacterID int64 `json:"characterId"`
	Available   bool  `json:"available"`
}

// EquipmentPayload carries equip/unequip/lock commands. Consumed is only set
// on lock commands for consumable items.
type EquipmentPayload struct {
	ItemID      int64 `json:"itemId"`
	CharacterID int64 `json:"characterId"`
	Consumed    bool  `json:"consumed,omitempty"`
}

// MomentumPayload carries the absolute pool value so replay stays idempotent
// under reordering inside one delta.
type MomentumPayload struct {
	CrewID   int64 `json:"crewId"`
	Momentum int   `json:"momentum"`
}

// ActionPayload carries the action lock lifecycle.
type ActionPayload struct {
	Action *core.ActivePlayerAction `json:"action,omitempty"`
	CrewID int64                    `json:"crewId"`
}

// ClockPayload carries every clock command. Created commands ship the full
// clock; advance/reduce ship the absolute resulting segments.
type ClockPayload struct {
	ClockID     int64  `json:"clockId"`
	OwnerID     int64  `json:"ownerId,omitempty"`
	OwnerKind   string `json:"ownerKind,omitempty"`
	Category    string `json:"clockCategory,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
	Tier        string `json:"tier,omitempty"`
	Name        string `json:"name,omitempty"`
	Segments    int    `json:"segments"`
	MaxSegments int    `json:"maxSegments,omitempty"`
	Frozen      bool   `json:"frozen,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

// RoundStatePayload ships the full round record; replaying the latest wins.
type RoundStatePayload struct {
	Round *core.RoundState `json:"round"`
}

// ---- constructors ----

// NewTraitCommand builds a trait enable/disable command.
func NewTraitCommand(typ Type, traitID, characterID int64) Command {
	return newCommand(CategoryCharacter, typ, TraitPayload{TraitID: traitID, CharacterID: characterID})
}

// NewRallyCommand builds a rally used/reset command.
func NewRallyCommand(typ Type, characterID int64, available bool) Command {
	return newCommand(CategoryCharacter, typ, RallyPayload{CharacterID: characterID, Available: available})
}

// NewEquipmentCommand builds an equip/unequip/lock command.
func NewEquipmentCommand(typ Type, itemID, characterID int64, consumed bool) Command {
	return newCommand(CategoryCharacter, typ, EquipmentPayload{ItemID: itemID, CharacterID: characterID, Consumed: consumed})
}

// NewMomentumCommand records the crew's new absolute momentum.
func NewMomentumCommand(crewID int64, momentum int) Command {
	return newCommand(CategoryCrew, TypeMomentumChanged, MomentumPayload{CrewID: crewID, Momentum: momentum})
}

// NewActionCommand builds an action lock lifecycle command.
func NewActionCommand(typ Type, crewID int64, action *core.ActivePlayerAction) Command {
	return newCommand(CategoryCrew, typ, ActionPayload{CrewID: crewID, Action: action})
}

// NewClockCommand builds a clock command from the given payload.
func NewClockCommand(typ Type, p ClockPayload) Command {
	return newCommand(CategoryClock, typ, p)
}

// NewRoundStateCommand snapshots the round record into a command.
func NewRoundStateCommand(rs *core.RoundState) Command {
	return newCommand(CategoryRoundState, TypeRoundStateChanged, RoundStatePayload{Round: rs.Clone()})
}
