package database

import (
	"fmt"
	"strings"
	"time"

	"ledger-backend/internal/config"
	"ledger-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Open connects to the configured store. SQLite is limited to one
// connection so writers serialize instead of failing with SQLITE_BUSY.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case DialectPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN)
	case DialectSQLite:
		dialector = sqlite.Open(SQLiteDSN(cfg.DatabaseDSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.DatabaseDriver, err)
	}

	if cfg.DatabaseDriver == DialectSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("database connected", zap.String("driver", cfg.DatabaseDriver))
	return db, nil
}

// SQLiteDSN makes sure foreign keys are enforced, which SQLite leaves off by default.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// Migrate creates or updates every ledger table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// IsPostgres reports whether row-lock tuning such as lock_timeout is available.
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == DialectPostgres
}
