package model

import "time"

// Momentum pool bounds. The pool is shared by the whole crew.
const (
	MomentumMin = 0
	MomentumMax = 10

	// MomentumReset is the value the pool returns to on a crew reset.
	MomentumReset = 5
)

// Crew owns the shared momentum pool and the per-crew action lock.
type Crew struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"uniqueIndex;size:64;not null" json:"name"`

	CurrentMomentum int `gorm:"default:5" json:"current_momentum"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ClampMomentum forces v into the legal [MomentumMin, MomentumMax] range.
func ClampMomentum(v int) int {
	if v < MomentumMin {
		return MomentumMin
	}
	if v > MomentumMax {
		return MomentumMax
	}
	return v
}
