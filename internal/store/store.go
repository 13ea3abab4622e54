// Package store is the persistent key/value store used for build checkpoints,
// the cached manifest and short-lived auth state. Every write replaces the
// whole value of a key; there are no partial updates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("store: key not found")

type Store interface {
	// Get returns ErrNotFound for missing and expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites key. A zero ttl never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Leaser hands out a single owner-tagged lease per key.
type Leaser interface {
	TryLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, owner string) error
}

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ Store  = (*GormStore)(nil)
	_ Leaser = (*GormStore)(nil)
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// WithClock replaces the time source used for expiry decisions.
func (s *GormStore) WithClock(now func() time.Time) *GormStore {
	s.now = now
	return s
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if s.expired(entry) {
		return nil, ErrNotFound
	}
	return entry.Value, nil
}

func (s *GormStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.upsert(s.db.WithContext(ctx), key, value, ttl); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// PurgeExpired removes every expired row and reports how many were dropped.
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at > 0 AND expires_at <= ?", s.now().UnixMilli()).
		Delete(&models.KVEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TryLease takes key for owner when it is free, expired, or already held by
// owner (which extends it).
func (s *GormStore) TryLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.KVEntry
		err := tx.Where("key = ?", key).Take(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		case !s.expired(entry) && string(entry.Value) != owner:
			return nil
		}
		acquired = true
		return s.upsert(tx, key, []byte(owner), ttl)
	})
	if err != nil {
		return false, fmt.Errorf("lease %q: %w", key, err)
	}
	return acquired, nil
}

func (s *GormStore) ReleaseLease(ctx context.Context, key, owner string) error {
	err := s.db.WithContext(ctx).
		Where("key = ? AND value = ?", key, []byte(owner)).
		Delete(&models.KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("release lease %q: %w", key, err)
	}
	return nil
}

func (s *GormStore) upsert(db *gorm.DB, key string, value []byte, ttl time.Duration) error {
	entry := models.KVEntry{Key: key, Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl).UnixMilli()
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

func (s *GormStore) expired(entry models.KVEntry) bool {
	return entry.ExpiresAt > 0 && entry.ExpiresAt <= s.now().UnixMilli()
}

// GetJSON decodes the value under key into T.
func GetJSON[T any](ctx context.Context, s Store, key string) (*T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return &v, nil
}

func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Put(ctx, key, raw, ttl)
}
