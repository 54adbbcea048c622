package db

import (
	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/pkg/logger"
)

func models() []interface{} {
	return []interface{}{
		&model.Restaurant{},
		&model.User{},
		&model.Customer{},
		&model.Member{},
		&model.TicketLink{},
		&model.Review{},
	}
}

// Partial unique indexes gorm tags cannot express. At most one pending and
// one open link may exist per (member, restaurant, ticket).
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_ticket_links_pending
		ON ticket_links (member_id, restaurant_id, ticket_id) WHERE status = 'pending'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_ticket_links_open
		ON ticket_links (member_id, restaurant_id, ticket_id) WHERE status = 'open'`,
}

// Migrate runs database migrations
func Migrate() error {
	logger.Info("Running database migrations...")

	if err := migrate(DB); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models()),
	})
	return nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models()...); err != nil {
		return err
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
