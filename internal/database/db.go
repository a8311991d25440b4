package database

import (
	"fmt"

	"pluto/internal/config"
	"pluto/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// singleCatchAllIndex allows one rule without countries per (tax, b2c) partition.
// A partial index is the only way to express "absence of countries" as a key.
const singleCatchAllIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_tax_rules_single_catch_all
	ON tax_rules (tax_id, is_b2c) WHERE catch_all`

// NewConnection initializes a new connection pool using GORM
func NewConnection(cfg config.PostgresConfig, debug bool) (*gorm.DB, error) {
	logMode := gormlogger.Warn
	if debug {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	return db, nil
}

// Migrate creates the tax tables and their uniqueness constraints
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Tax{},
		&model.TaxRule{},
		&model.TaxRuleCountry{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}

	if err := db.Exec(singleCatchAllIndex).Error; err != nil {
		return fmt.Errorf("create catch-all index: %w", err)
	}

	return nil
}
