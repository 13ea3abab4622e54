package models

import (
	"time"
)

// KVEntry is one key of the key/value store. ExpiresAt is in unix
// milliseconds; zero never expires.
type KVEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	ExpiresAt int64  `gorm:"index"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
