package database

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/docbridge/docbridge/internal/logging"
	"gorm.io/gorm"
)

// RunMigrations applies pending schema migrations using gormigrate.
func RunMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202608150001_add_share_expiry",
			Migrate: func(tx *gorm.DB) error {
				if !tx.Migrator().HasColumn(&Share{}, "expires_at") {
					return tx.Migrator().AddColumn(&Share{}, "ExpiresAt")
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&Share{}, "ExpiresAt")
			},
		},
		{
			ID: "202608150002_add_file_locks",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&FileLock{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&FileLock{})
			},
		},
	})

	m.InitSchema(func(tx *gorm.DB) error {
		logging.Logf("[STARTUP] Creating initial schema")
		return tx.AutoMigrate(
			&User{},
			&File{},
			&Share{},
			&FileVersion{},
			&FileLock{},
		)
	})

	return m.Migrate()
}
