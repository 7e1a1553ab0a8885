// Package storetest provides throwaway databases for tests.
package storetest

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/store"
)

// DB returns a migrated database. It uses Postgres when TEST_POSTGRES_DSN
// is set and a private in-memory SQLite database otherwise.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	cfg := config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		AutoMigrate: true,
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		cfg.Driver = "postgres"
		cfg.DSN = dsn
	}

	db, err := store.Open(cfg, logger.NewFromZap(zaptest.NewLogger(tb)))
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	if cfg.Driver == "postgres" {
		tb.Cleanup(func() {
			db.Exec("DELETE FROM asset_tasks")
		})
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Repo returns a TaskRepo over a fresh test database.
func Repo(tb testing.TB) (*store.TaskRepo, *gorm.DB) {
	tb.Helper()
	db := DB(tb)
	return store.NewTaskRepo(db, logger.NewFromZap(zaptest.NewLogger(tb))), db
}
