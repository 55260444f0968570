package db

import (
	"fmt"

	"github.com/challengeplans/server/config"
	dbmysql "github.com/challengeplans/server/db/mysql"
	dbpostgres "github.com/challengeplans/server/db/postgres"
	dbsqlite "github.com/challengeplans/server/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.ConnMaxLifetime)
	case ModePostgres:
		return dbpostgres.Open(cfg.PostgresDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.ConnMaxLifetime)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
