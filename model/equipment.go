package model

import "time"

// Equipment tiers. First-locking a rare or epic item costs one momentum;
// common items lock for free.
const (
	GearCommon = "common"
	GearRare   = "rare"
	GearEpic   = "epic"
)

// Equipment categories.
const (
	GearActive     = "active"
	GearPassive    = "passive"
	GearConsumable = "consumable"
)

// Equipment is a single item owned by a character. Locked is sticky for the
// mission cycle once set; Consumed only ever applies to consumable items.
type Equipment struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterID int64  `gorm:"index:idx_char_gear;not null" json:"character_id"`
	Name        string `gorm:"size:64;not null" json:"name"`

	Tier     string `gorm:"size:16;not null" json:"tier"`
	Category string `gorm:"size:16;not null" json:"category"`
	Slots    int    `gorm:"default:1" json:"slots"`

	Equipped bool `gorm:"default:false" json:"equipped"`
	Locked   bool `gorm:"default:false" json:"locked"`
	Consumed bool `gorm:"default:false" json:"consumed"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Premium reports whether locking this item for the first time costs momentum.
func (e *Equipment) Premium() bool {
	return e.Tier == GearRare || e.Tier == GearEpic
}
