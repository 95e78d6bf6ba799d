// Package state holds the in-memory working set of one game session: crews,
// characters with their traits and equipment, clocks, round states and the
// per-crew action locks. The store is an explicit object constructed per
// session and passed to every service; there are no package-level globals.
package state

import (
	"sync"

	"github.com/mevsgame/fitgd-sub006/errs"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/model"
)

// Store is the session-local entity registry. All reads and writes are
// guarded; the authority remains the only process that mutates shared fields,
// replicas only write through the replication applier.
type Store struct {
	mu sync.RWMutex

	crews      map[int64]*model.Crew
	characters map[int64]*model.Character
	traits     map[int64]*model.Trait
	equipment  map[int64]*model.Equipment
	clocks     map[int64]*model.Clock

	rounds  map[int64]*core.RoundState         // characterID → round
	actions map[int64]*core.ActivePlayerAction // crewID → lock

	nextClockID int64

	// dirty entity ids, drained by the periodic persistence task.
	dirtyCrews      map[int64]bool
	dirtyCharacters map[int64]bool
	dirtyEquipment  map[int64]bool
	dirtyTraits     map[int64]bool
	dirtyClocks     map[int64]bool
	deletedClocks   map[int64]bool
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		crews:           make(map[int64]*model.Crew),
		characters:      make(map[int64]*model.Character),
		traits:          make(map[int64]*model.Trait),
		equipment:       make(map[int64]*model.Equipment),
		clocks:          make(map[int64]*model.Clock),
		rounds:          make(map[int64]*core.RoundState),
		actions:         make(map[int64]*core.ActivePlayerAction),
		dirtyCrews:      make(map[int64]bool),
		dirtyCharacters: make(map[int64]bool),
		dirtyEquipment:  make(map[int64]bool),
		dirtyTraits:     make(map[int64]bool),
		dirtyClocks:     make(map[int64]bool),
		deletedClocks:   make(map[int64]bool),
	}
}

// ---- seeding / loading ----

// PutCrew registers (or replaces) a crew.
func (s *Store) PutCrew(c *model.Crew) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crews[c.ID] = c
}

// PutCharacter registers (or replaces) a character.
func (s *Store) PutCharacter(c *model.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[c.ID] = c
}

// PutTrait registers (or replaces) a trait.
func (s *Store) PutTrait(t *model.Trait) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traits[t.ID] = t
}

// PutEquipment registers (or replaces) an equipment item.
func (s *Store) PutEquipment(e *model.Equipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipment[e.ID] = e
}

// PutClock registers (or replaces) a clock and keeps the id counter ahead of
// every loaded id.
func (s *Store) PutClock(c *model.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clocks[c.ID] = c
	if c.ID > s.nextClockID {
		s.nextClockID = c.ID
	}
}

// NextClockID hands out the next free clock id (authority side only).
func (s *Store) NextClockID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClockID++
	return s.nextClockID
}

// ---- lookups ----

// Crew returns the crew or a NotFound error.
func (s *Store) Crew(id int64) (*model.Crew, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.crews[id]
	if !ok {
		return nil, errs.NotFound("crew", id)
	}
	return c, nil
}

// Character returns the character or a NotFound error.
func (s *Store) Character(id int64) (*model.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.characters[id]
	if !ok {
		return nil, errs.NotFound("character", id)
	}
	return c, nil
}

// Trait returns the trait or a NotFound error.
func (s *Store) Trait(id int64) (*model.Trait, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traits[id]
	if !ok {
		return nil, errs.NotFound("trait", id)
	}
	return t, nil
}

// Equipment returns the item or a NotFound error.
func (s *Store) Equipment(id int64) (*model.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.equipment[id]
	if !ok {
		return nil, errs.NotFound("equipment", id)
	}
	return e, nil
}

// Clock returns the clock or a NotFound error.
func (s *Store) Clock(id int64) (*model.Clock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clocks[id]
	if !ok {
		return nil, errs.NotFound("clock", id)
	}
	return c, nil
}

// CrewMembers returns every character belonging to the crew.
func (s *Store) CrewMembers(crewID int64) []*model.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Character
	for _, c := range s.characters {
		if c.CrewID == crewID {
			out = append(out, c)
		}
	}
	return out
}

// CharacterTraits returns every trait belonging to the character.
func (s *Store) CharacterTraits(characterID int64) []*model.Trait {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Trait
	for _, t := range s.traits {
		if t.CharacterID == characterID {
			out = append(out, t)
		}
	}
	return out
}

// CharacterEquipment returns every item belonging to the character.
func (s *Store) CharacterEquipment(characterID int64) []*model.Equipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Equipment
	for _, e := range s.equipment {
		if e.CharacterID == characterID {
			out = append(out, e)
		}
	}
	return out
}

// ClocksForOwner returns every clock owned by (ownerKind, ownerID).
func (s *Store) ClocksForOwner(ownerKind string, ownerID int64) []*model.Clock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Clock
	for _, c := range s.clocks {
		if c.OwnerKind == ownerKind && c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out
}

// AllCrews returns a snapshot slice of every crew in the session.
func (s *Store) AllCrews() []*model.Crew {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Crew, 0, len(s.crews))
	for _, c := range s.crews {
		out = append(out, c)
	}
	return out
}

// AllCharacters returns a snapshot slice of every character in the session.
func (s *Store) AllCharacters() []*model.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Character, 0, len(s.characters))
	for _, c := range s.characters {
		out = append(out, c)
	}
	return out
}

// AllTraits returns a snapshot slice of every trait in the session.
func (s *Store) AllTraits() []*model.Trait {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Trait, 0, len(s.traits))
	for _, t := range s.traits {
		out = append(out, t)
	}
	return out
}

// AllEquipment returns a snapshot slice of every item in the session.
func (s *Store) AllEquipment() []*model.Equipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Equipment, 0, len(s.equipment))
	for _, e := range s.equipment {
		out = append(out, e)
	}
	return out
}

// AllClocks returns a snapshot slice of every clock in the session.
func (s *Store) AllClocks() []*model.Clock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Clock, 0, len(s.clocks))
	for _, c := range s.clocks {
		out = append(out, c)
	}
	return out
}

// CrewClockByCategory returns the crew's first clock of the given category,
// or nil when the crew has none.
func (s *Store) CrewClockByCategory(crewID int64, category string) *model.Clock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clocks {
		if c.OwnerKind == model.OwnerCrew && c.OwnerID == crewID && c.Category == category {
			return c
		}
	}
	return nil
}

// DeleteClock removes the clock. Missing ids are ignored (delete is the
// natural end of a reduction and may race a replayed duplicate). The id is
// remembered so the persistence sweep removes the row too.
func (s *Store) DeleteClock(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clocks, id)
	delete(s.dirtyClocks, id)
	s.deletedClocks[id] = true
}

// ---- round state / action lock ----

// Round returns the character's round record, creating an idle one lazily.
func (s *Store) Round(characterID int64) *core.RoundState {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.rounds[characterID]
	if !ok {
		rs = core.NewRoundState(characterID)
		s.rounds[characterID] = rs
	}
	return rs
}

// SetRound replaces the character's round record (replication apply path).
func (s *Store) SetRound(rs *core.RoundState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[rs.CharacterID] = rs
}

// Action returns the crew's active action lock, or nil.
func (s *Store) Action(crewID int64) *core.ActivePlayerAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actions[crewID]
}

// SetAction installs the crew's action lock.
func (s *Store) SetAction(a *core.ActivePlayerAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.CrewID] = a
}

// ClearAction removes the crew's action lock, if any.
func (s *Store) ClearAction(crewID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, crewID)
}

// ---- dirty tracking for periodic persistence ----

// MarkCrewDirty flags a crew row for the next persistence sweep.
func (s *Store) MarkCrewDirty(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyCrews[id] = true
}

// MarkCharacterDirty flags a character row for the next persistence sweep.
func (s *Store) MarkCharacterDirty(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyCharacters[id] = true
}

// MarkEquipmentDirty flags an equipment row for the next persistence sweep.
func (s *Store) MarkEquipmentDirty(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyEquipment[id] = true
}

// MarkTraitDirty flags a trait row for the next persistence sweep.
func (s *Store) MarkTraitDirty(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyTraits[id] = true
}

// MarkClockDirty flags a clock row for the next persistence sweep.
func (s *Store) MarkClockDirty(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyClocks[id] = true
}

// DirtySet is one persistence sweep's worth of changed rows.
type DirtySet struct {
	Crews      []*model.Crew
	Characters []*model.Character
	Equipment  []*model.Equipment
	Traits     []*model.Trait
	Clocks     []*model.Clock

	// DeletedClockIDs lists clock rows removed since the last sweep.
	DeletedClockIDs []int64
}

// DrainDirty returns the entities flagged since the last sweep and clears the
// flags. Entities deleted in the meantime are skipped.
func (s *Store) DrainDirty() DirtySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d DirtySet
	for id := range s.dirtyCrews {
		if c, ok := s.crews[id]; ok {
			d.Crews = append(d.Crews, c)
		}
	}
	for id := range s.dirtyCharacters {
		if c, ok := s.characters[id]; ok {
			d.Characters = append(d.Characters, c)
		}
	}
	for id := range s.dirtyEquipment {
		if e, ok := s.equipment[id]; ok {
			d.Equipment = append(d.Equipment, e)
		}
	}
	for id := range s.dirtyTraits {
		if t, ok := s.traits[id]; ok {
			d.Traits = append(d.Traits, t)
		}
	}
	for id := range s.dirtyClocks {
		if c, ok := s.clocks[id]; ok {
			d.Clocks = append(d.Clocks, c)
		}
	}
	for id := range s.deletedClocks {
		d.DeletedClockIDs = append(d.DeletedClockIDs, id)
	}
	s.dirtyCrews = make(map[int64]bool)
	s.dirtyCharacters = make(map[int64]bool)
	s.dirtyEquipment = make(map[int64]bool)
	s.dirtyTraits = make(map[int64]bool)
	s.dirtyClocks = make(map[int64]bool)
	s.deletedClocks = make(map[int64]bool)
	return d
}
