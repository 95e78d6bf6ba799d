// Package gear validates equipment load and computes the first-lock momentum
// cost of a turn commit. Everything here is derivable from equipment state
// alone; there are no hidden counters.
package gear

import (
	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/model"
)

// EquippedLoad sums the slot cost of every currently equipped item. All
// categories count against load.
func EquippedLoad(items []*model.Equipment) int {
	total := 0
	for _, it := range items {
		if it.Equipped {
			total += it.Slots
		}
	}
	return total
}

// CanEquip checks whether the candidate item fits the character's remaining
// load. items must be the character's full equipment list.
func CanEquip(items []*model.Equipment, candidate *model.Equipment, loadLimit int) error {
	if candidate.Equipped {
		return errs.Validation("item %d is already equipped", candidate.ID)
	}
	if EquippedLoad(items)+candidate.Slots > loadLimit {
		return errs.Validation("load limit exceeded: %d/%d slots used, item needs %d",
			EquippedLoad(items), loadLimit, candidate.Slots)
	}
	return nil
}

// CanUnequip checks whether the item may be unequipped. A locked item stays
// equipped for the rest of the mission cycle; consumed alone never blocks.
func CanUnequip(item *model.Equipment) error {
	if !item.Equipped {
		return errs.Validation("item %d is not equipped", item.ID)
	}
	if item.Locked {
		return errs.Validation("item %d is locked for the mission", item.ID)
	}
	return nil
}

// FirstLockCost computes the momentum price of locking the given items in one
// batch: rare and epic items cost 1 each the first time they lock, common
// items and items already locked before the batch cost nothing. Re-locking is
// idempotent and free.
func FirstLockCost(toLock []*model.Equipment) int {
	cost := 0
	for _, it := range toLock {
		if it.Locked {
			continue
		}
		if it.Premium() {
			cost++
		}
	}
	return cost
}
