package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	BattleNetID    string `gorm:"uniqueIndex"`
	Battletag      string
	AccessToken    string `json:"-"`
	RefreshToken   string `json:"-"`
	TokenExpiresAt time.Time
}
