// Package db opens the relational database behind the cache table.
//
// Production deployments point it at MySQL; a single host process keeps the
// cache in a local SQLite file. Both go through gorm with a zap-backed gorm
// logger.
package db

import (
	"context"
	"strings"

	"github.com/dailyyoga/vidcache/logger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	// pure-Go sqlite driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

// Database is the interface for the database
type Database interface {
	DB() (*gorm.DB, error)
	Driver() string
	Ping(ctx context.Context) error
	Close() error
}

type defaultDatabase struct {
	logger logger.Logger
	driver string
	db     *gorm.DB
}

// New opens the database described by cfg and verifies the connection
func New(log logger.Logger, cfg *Config) (Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dd := &defaultDatabase{
		logger: log,
		driver: cfg.Driver,
	}

	gormCfg := &gorm.Config{
		Logger: &gormLogger{
			logger:        log,
			level:         parseGormLevel(cfg.LogLevel),
			slowThreshold: cfg.SlowThreshold,
		},
		DisableForeignKeyConstraintWhenMigrating: true,
	}

	var err error
	switch cfg.Driver {
	case DriverMySQL:
		gormCfg.PrepareStmt = true
		dd.db, err = gorm.Open(mysql.Open(cfg.DSN()), gormCfg)
	case DriverSQLite:
		dd.db, err = gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: cfg.DSN()}, gormCfg)
	}
	if err != nil {
		return nil, ErrConnection(err)
	}

	sqldb, err := dd.db.DB()
	if err != nil {
		return nil, ErrConnection(err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Driver == DriverSQLite {
		// one writer at a time; a second connection would only hit SQLITE_BUSY
		maxOpen, maxIdle = 1, 1
	}
	sqldb.SetMaxOpenConns(maxOpen)
	sqldb.SetMaxIdleConns(maxIdle)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		return nil, ErrConnection(err)
	}

	fields := []zap.Field{
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", maxOpen),
		zap.Int("max_idle_conns", maxIdle),
	}
	if cfg.Driver == DriverSQLite {
		fields = append(fields, zap.String("path", cfg.Path))
	} else {
		fields = append(fields, zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	}
	log.Info("database connection established", fields...)

	return dd, nil
}

func parseGormLevel(level string) glogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return glogger.Silent
	case "error":
		return glogger.Error
	case "info":
		return glogger.Info
	default:
		return glogger.Warn
	}
}

func (dd *defaultDatabase) DB() (*gorm.DB, error) {
	if dd.db == nil {
		return nil, ErrConnectionNotEstablished
	}
	return dd.db, nil
}

func (dd *defaultDatabase) Driver() string {
	return dd.driver
}

func (dd *defaultDatabase) Ping(ctx context.Context) error {
	sqldb, err := dd.db.DB()
	if err != nil {
		return ErrConnection(err)
	}
	return sqldb.PingContext(ctx)
}

func (dd *defaultDatabase) Close() error {
	sqldb, err := dd.db.DB()
	if err != nil {
		return ErrConnection(err)
	}
	return sqldb.Close()
}
