package gear

import (
	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/replication"
	"go.uber.org/zap"
)

// Service mutates equipment and traits on behalf of the authority.
type Service struct {
	store  *state.Store
	log    *replication.Log
	logger *zap.Logger
}

// NewService creates a gear Service.
func NewService(store *state.Store, log *replication.Log, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, log: log, logger: logger}
}

// Equip marks the item equipped after validating the character's load limit.
func (s *Service) Equip(characterID, itemID int64) (*model.Equipment, error) {
	char, err := s.store.Character(characterID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.Equipment(itemID)
	if err != nil {
		return nil, err
	}
	if item.CharacterID != characterID {
		return nil, errs.Validation("item %d does not belong to character %d", itemID, characterID)
	}
	if err := CanEquip(s.store.CharacterEquipment(characterID), item, char.LoadLimit); err != nil {
		return nil, err
	}
	item.Equipped = true
	s.store.MarkEquipmentDirty(item.ID)
	s.log.Append(replication.NewEquipmentCommand(replication.TypeEquipmentEquipped, item.ID, characterID, false))
	return item, nil
}

// Unequip removes the item from the character's load. Locked items stay on
// for the rest of the mission cycle.
func (s *Service) Unequip(characterID, itemID int64) (*model.Equipment, error) {
	item, err := s.store.Equipment(itemID)
	if err != nil {
		return nil, err
	}
	if item.CharacterID != characterID {
		return nil, errs.Validation("item %d does not belong to character %d", itemID, characterID)
	}
	if err := CanUnequip(item); err != nil {
		return nil, err
	}
	item.Equipped = false
	s.store.MarkEquipmentDirty(item.ID)
	s.log.Append(replication.NewEquipmentCommand(replication.TypeEquipmentUnequipped, item.ID, characterID, false))
	return item, nil
}

// SetTraitDisabled flips a trait's disabled flag. Only the arbiter path calls
// this; a crew reset re-enables in bulk through the reset engine instead.
func (s *Service) SetTraitDisabled(traitID int64, disabled bool) (*model.Trait, error) {
	trait, err := s.store.Trait(traitID)
	if err != nil {
		return nil, err
	}
	if trait.Disabled == disabled {
		return trait, nil
	}
	trait.Disabled = disabled
	s.store.MarkTraitDirty(trait.ID)
	typ := replication.TypeTraitEnabled
	if disabled {
		typ = replication.TypeTraitDisabled
	}
	s.log.Append(replication.NewTraitCommand(typ, trait.ID, trait.CharacterID))
	s.logger.Info("trait toggled",
		zap.Int64("trait_id", trait.ID),
		zap.Bool("disabled", disabled))
	return trait, nil
}
