// Package database opens the gorm connection used by durable stores.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/kaviyashree6/empathyconnect/internal/config"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectRetries = 5
	firstBackoff   = time.Second
)

// Open connects to the configured SQL backend, retrying with exponential
// backoff while the server comes up.
func Open(ctx context.Context, cfg config.AlertConfig, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Store {
	case config.AlertStoreMySQL:
		dialector = gormmysql.Open(cfg.DSN)
	case config.AlertStoreSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store %q is not SQL-backed", cfg.Store)
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db      *gorm.DB
		err     error
		backoff = firstBackoff
	)
	for attempt := 0; attempt < connectRetries; attempt++ {
		db, err = gorm.Open(dialector, gormCfg)
		if err == nil {
			break
		}
		log.Warn("database connect failed", "component", "database", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Store, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Store == config.AlertStoreSQLite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("database connected", "component", "database", "driver", cfg.Store)
	return db, nil
}
