package database

import (
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/config"
	"github.com/gdg-garage/achievement-atlas-api/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: newLogger(&log.Logger),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to auto migrate")
	}

	return db
}

// newLogger reports slow queries and real failures. Cache misses surface as
// gorm.ErrRecordNotFound on every lookup, so those stay quiet.
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.KVEntry{})
}
