package model

import "time"

// Clock owner kinds.
const (
	OwnerCharacter = "character"
	OwnerCrew      = "crew"
	OwnerScene     = "scene"
)

// Clock categories.
const (
	ClockHarm       = "harm"
	ClockThreat     = "threat"
	ClockProgress   = "progress"
	ClockAddiction  = "addiction"
	ClockConsumable = "consumable"
)

// Clock tiers, used by consumable clocks. Filling a consumable clock
// downgrades its tier by one step.
const (
	TierEpic   = "epic"
	TierRare   = "rare"
	TierCommon = "common"
)

// Clock is a bounded counter tracking progress, harm, threat, addiction or
// consumable depletion. Segments stay in [0, MaxSegments]; a reduction that
// reaches 0 deletes the clock.
type Clock struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   int64  `gorm:"index:idx_clock_owner;not null" json:"owner_id"`
	OwnerKind string `gorm:"index:idx_clock_owner;size:16;not null" json:"owner_kind"`

	Category string `gorm:"size:16;not null" json:"category"`
	Subtype  string `gorm:"size:32" json:"subtype"`
	Tier     string `gorm:"size:16" json:"tier"`
	Name     string `gorm:"size:64" json:"name"`

	Segments    int  `gorm:"not null" json:"segments"`
	MaxSegments int  `gorm:"not null" json:"max_segments"`
	Frozen      bool `gorm:"default:false" json:"frozen"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Full reports whether the clock sits exactly at its capacity.
func (c *Clock) Full() bool {
	return c.Segments >= c.MaxSegments
}

// DowngradeTier returns the tier one step below t. Common has no step below.
func DowngradeTier(t string) string {
	switch t {
	case TierEpic:
		return TierRare
	case TierRare:
		return TierCommon
	}
	return TierCommon
}
