package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// Open connects to the configured database and, if enabled, migrates the
// asset task schema.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		zap.NewStdLog(log.SugaredLogger.Desugar()),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates the asset_tasks table and its indexes. At most one
// whiteboard animation may exist per scene; the partial unique index
// backs the idempotent get-or-create path.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.AssetTask{}); err != nil {
		return fmt.Errorf("migrate asset_tasks: %w", err)
	}
	stmt := `CREATE UNIQUE INDEX IF NOT EXISTS uq_asset_tasks_scene_animation
		ON asset_tasks (story_id, scene_id)
		WHERE asset_type = 'whiteboard_animation'`
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create animation unique index: %w", err)
	}
	return nil
}
