package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexbalandi/chatwoot-dify/config"
	"github.com/alexbalandi/chatwoot-dify/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// Connect opens the configured database (sqlite3 by default) and runs
// AutoMigrate when conf.AutoMigrate is set.
func Connect(conf config.Configuration, logger *slog.Logger) (*gorm.DB, error) {
	database := strings.ToLower(strings.TrimSpace(conf.Database))
	if database == "" {
		database = "sqlite3"
	}

	var (
		db  *gorm.DB
		err error
	)

	if database == "postgres" || database == "postgresql" {
		logger.Info("using postgres connection", "host", conf.DbHost, "db", conf.DbName)
		dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
			conf.DbHost, conf.DbPort, conf.DbUser, conf.DbName, conf.DbPass, conf.DbSSLMode)
		db, err = gorm.Open("postgres", dsn)
		if err == nil && conf.DbMaxOpen > 0 {
			db.DB().SetMaxOpenConns(conf.DbMaxOpen)
		}
	} else {
		path := conf.DbPath
		if path == "" {
			path = "db/database.db"
		}
		logger.Info("using sqlite3 connection", "path", path)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		db, err = gorm.Open("sqlite3", path)
		if err == nil {
			// sqlite serializes writers anyway; one connection avoids "database is locked".
			db.DB().SetMaxOpenConns(1)
		}
	}

	if err != nil {
		logger.Error("database connection failed", "driver", database, "error", err)
		return nil, fmt.Errorf("connect %s: %w", database, err)
	}

	db.LogMode(conf.LogLevel == "debug")

	if conf.AutoMigrate {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Dialogue{}, &models.Job{}).Error; err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
