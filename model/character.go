package model

import "time"

// Approach names. A character carries one rating per approach; the rating
// sizes the dice pool when that approach drives an action.
const (
	ApproachForce    = "force"
	ApproachFinesse  = "finesse"
	ApproachInsight  = "insight"
	ApproachPresence = "presence"
)

// Character represents a player's character inside a crew.
type Character struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CrewID   int64  `gorm:"index:idx_crew_member;not null" json:"crew_id"`
	PlayerID int64  `gorm:"index;not null" json:"player_id"`
	Name     string `gorm:"uniqueIndex;size:32;not null" json:"name"`

	Force    int `gorm:"default:1" json:"force"`
	Finesse  int `gorm:"default:1" json:"finesse"`
	Insight  int `gorm:"default:1" json:"insight"`
	Presence int `gorm:"default:1" json:"presence"`

	LoadLimit int `gorm:"default:5" json:"load_limit"`

	// RallyAvailable is a one-shot flag, spent during play and restored by a
	// crew reset.
	RallyAvailable bool `gorm:"default:true" json:"rally_available"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApproachRating returns the rating for the named approach. ok is false for
// an unknown approach name.
func (c *Character) ApproachRating(name string) (rating int, ok bool) {
	switch name {
	case ApproachForce:
		return c.Force, true
	case ApproachFinesse:
		return c.Finesse, true
	case ApproachInsight:
		return c.Insight, true
	case ApproachPresence:
		return c.Presence, true
	}
	return 0, false
}

// Trait is a narrative ability attached to a character. A disabled trait is
// unusable until a crew reset re-enables it. MomentumCost is the price of
// staging the trait into a turn (0 or 1).
type Trait struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterID  int64     `gorm:"index:idx_char_trait;not null" json:"character_id"`
	Name         string    `gorm:"size:64;not null" json:"name"`
	Disabled     bool      `gorm:"default:false" json:"disabled"`
	MomentumCost int       `gorm:"default:0" json:"momentum_cost"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
