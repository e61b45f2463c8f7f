package database

import (
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/brightling/convene/internal/models"
)

func NewPostgresDB(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.Event{}, &models.RSVP{}); err != nil {
		log.Fatal().Err(err).Msg("failed to auto-migrate")
	}

	// One RSVP row per user per event. Status changes mutate the row, so the
	// index is unconditional; it also backstops concurrent first-time joins.
	db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_rsvps_event_user
		ON rsvps (event_id, user_id)
	`)

	return db
}
