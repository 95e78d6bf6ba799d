package db

import (
	"fmt"

	"github.com/mevsgame/fitgd-sub006/config"
	dbmysql "github.com/mevsgame/fitgd-sub006/db/mysql"
	dbsqlite "github.com/mevsgame/fitgd-sub006/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"

	// SQLiteMemoryPath opens a shared in-memory database, used by tests.
	SQLiteMemoryPath = "file::memory:?cache=shared"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
