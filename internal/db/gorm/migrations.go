// Package gorm provides GORM-based database operations for spiral.
package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (sessions, step records)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&RescueSessionRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&StepRecordRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("rescue_sessions", "step_records")
			},
		},

		// Migration 002: User profiles
		{
			ID: "002_user_profiles",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&UserProfileRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("user_profiles")
			},
		},

		// Migration 003: Archetype method scores
		{
			ID: "003_archetype_methods",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ArchetypeMethodRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("archetype_methods")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
