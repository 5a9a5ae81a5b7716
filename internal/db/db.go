package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sirupsen/logrus"

	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
)

// The relay writes one card row per project message and one pass row per
// run, so the pool stays small.
const (
	maxIdleConns    = 2
	maxOpenConns    = 10
	connMaxLifetime = time.Hour
)

// auditTables lists the models kept in the audit database
var auditTables = []interface{}{&model.CardLog{}, &model.PassLog{}}

// Init connects to the card and pass history database and brings its
// tables up to date. Slow queries and driver warnings go to logrus.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.GetDSN()), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %s@%s: %w", cfg.DBName, cfg.Host, err)
	}

	pool, err := sqlPool(conn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetConnMaxLifetime(connMaxLifetime)

	if err := migrateAudit(conn); err != nil {
		pool.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"dbname": cfg.DBName,
	}).Info("Audit history enabled")
	return conn, nil
}

// Ping reports whether the audit database answers before ctx expires
func Ping(ctx context.Context, conn *gorm.DB) error {
	pool, err := sqlPool(conn)
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func Close(conn *gorm.DB) error {
	pool, err := sqlPool(conn)
	if err != nil {
		return err
	}
	return pool.Close()
}

func sqlPool(conn *gorm.DB) (*sql.DB, error) {
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to reach audit connection pool: %w", err)
	}
	return pool, nil
}

func migrateAudit(conn *gorm.DB) error {
	if err := conn.AutoMigrate(auditTables...); err != nil {
		return fmt.Errorf("failed to migrate card and pass tables: %w", err)
	}
	logrus.Debugf("Audit tables migrated: %d", len(auditTables))
	return nil
}
