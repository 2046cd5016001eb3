package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"society-gate-backend/config"
	"society-gate-backend/internal/model"
)

// Init opens the configured database and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// A single writer keeps sqlite from returning SQLITE_BUSY under concurrent requests.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableConstraints && cfg.Driver == "postgres" {
		slog.Info("applying visitor constraint DDL")
		if err := applyConstraintDDL(db); err != nil {
			slog.Warn("failed to apply some constraint DDL, continuing without them", "error", err)
		}
	}

	slog.Info("database initialization complete", "driver", cfg.Driver)
	return db, nil
}

// Migrate creates or updates the tables used by the gate service.
func Migrate(db *gorm.DB) error {
	slog.Info("running database migrations")
	if err := db.AutoMigrate(
		&model.Resident{},
		&model.Visitor{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func logLevel(raw string) logger.LogLevel {
	switch strings.ToLower(raw) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// applyConstraintDDL mirrors the record invariants as table constraints so
// that no writer can bypass them.
func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		"ALTER TABLE visitors DROP CONSTRAINT IF EXISTS visitors_checkout_after_checkin;",
		"ALTER TABLE visitors ADD CONSTRAINT visitors_checkout_after_checkin " +
			"CHECK (check_out_time IS NULL OR check_in_time IS NOT NULL);",

		"ALTER TABLE visitors DROP CONSTRAINT IF EXISTS visitors_checkin_requires_approval;",
		"ALTER TABLE visitors ADD CONSTRAINT visitors_checkin_requires_approval " +
			"CHECK (check_in_time IS NULL OR approval_status = 'approved');",

		"ALTER TABLE visitors DROP CONSTRAINT IF EXISTS visitors_preapproved_is_approved;",
		"ALTER TABLE visitors ADD CONSTRAINT visitors_preapproved_is_approved " +
			"CHECK (NOT pre_approved OR approval_status IN ('approved'));",

		"ALTER TABLE visitors DROP CONSTRAINT IF EXISTS visitors_status_known;",
		"ALTER TABLE visitors ADD CONSTRAINT visitors_status_known " +
			"CHECK (approval_status IN ('approved', 'pending', 'denied'));",

		// Guard dashboard: visitors currently on the premises.
		"CREATE INDEX IF NOT EXISTS idx_visitors_on_premises ON visitors (check_in_time DESC) " +
			"WHERE check_in_time IS NOT NULL AND check_out_time IS NULL;",

		// One owner per unit.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_residents_unit_owner ON residents (unit_number) " +
			"WHERE role = 'resident';",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
