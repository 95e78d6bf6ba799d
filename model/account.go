package model

import "time"

// Account represents a participant login. One account maps to one player;
// characters reference the player, not the account row.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Arbiter      bool       `gorm:"default:false" json:"arbiter"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
