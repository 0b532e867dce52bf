package database

import (
	"fmt"

	"gorm.io/gorm"

	"fanhub/internal/model"
	"fanhub/pkg/log"
)

// Models lists every table owned by this service, in creation order
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Performer{},
		&model.Category{},
		&model.Product{},
		&model.Video{},
		&model.Gallery{},
		&model.Feed{},
		&model.Stream{},
		&model.Conversation{},
		&model.Coupon{},
		&model.Transaction{},
		&model.PurchasedItem{},
		&model.Subscription{},
		&model.StockLog{},
		&model.PayoutRequest{},
		&model.Reaction{},
		&model.ReactionCount{},
	}
}

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Debugf("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CheckTables logs which of the service tables are missing
func CheckTables(db *gorm.DB) ([]string, error) {
	var missing []string
	for _, m := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, fmt.Errorf("failed to parse %T: %w", m, err)
		}
		table := stmt.Schema.Table

		var count int64
		err := db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", table).
			Scan(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if count == 0 {
			log.Warnf("Table not found: %s", table)
			missing = append(missing, table)
		}
	}
	return missing, nil
}
