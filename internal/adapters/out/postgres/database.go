// Package postgres opens the GORM connection shared by the delivery store,
// the workflow journal and the notification receipts, and owns their schema.
//
// Usage:
//
//	db, err := postgres.Open(ctx, postgres.Config{
//	    Host: "localhost", Port: "5432", User: "app", Password: "secret",
//	    DBName: "freight", SSLMode: "disable",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	if err = postgres.Migrate(ctx, db); err != nil {
//	    return err
//	}
//
//	deliveries := deliveryrepo.NewGormDeliveryRepository(db)
//	journal := journalrepo.NewGormJournal(db)
//	receipts := receiptrepo.NewGormReceiptRepository(db)
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"freight/internal/adapters/out/postgres/deliveryrepo"
	"freight/internal/adapters/out/postgres/journalrepo"
	"freight/internal/adapters/out/postgres/receiptrepo"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	pingTimeout                 = 5 * time.Second
	dbPoolWarnDurationThreshold = 50 * time.Millisecond
)

// Config holds the connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Debug logs every query instead of only failed and slow ones.
	Debug bool
}

// DSN renders the settings in libpq keyword/value form.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*gorm.DB, error) {
	return OpenDSN(ctx, cfg.DSN(), cfg.Debug, logger)
}

// OpenDSN is Open for a ready-made connection string.
func OpenDSN(ctx context.Context, dsn string, debug bool, logger *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		// Multi-statement writes use explicit transactions.
		SkipDefaultTransaction: true,
		Logger:                 newGormSlogLogger(logger.With("component", "gorm"), debug),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err = sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&deliveryrepo.DeliveryDTO{},
		&receiptrepo.ReceiptDTO{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := journalrepo.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// MonitorPool logs connection pool waits until ctx is done.
func MonitorPool(ctx context.Context, logger *slog.Logger, db *gorm.DB, interval time.Duration) {
	sqlDB, err := db.DB()
	if err != nil || logger == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := sqlDB.Stats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := sqlDB.Stats()
			logPoolWait(ctx, logger, prev, cur)
			prev = cur
		}
	}
}

func logPoolWait(ctx context.Context, logger *slog.Logger, prev, cur sql.DBStats) {
	waitDelta := cur.WaitCount - prev.WaitCount
	if waitDelta <= 0 {
		return
	}

	waitDurationDelta := cur.WaitDuration - prev.WaitDuration
	attrs := []slog.Attr{
		slog.Int64("waitCountDelta", waitDelta),
		slog.Duration("waitDurationDelta", waitDurationDelta),
		slog.Duration("avgWait", waitDurationDelta/time.Duration(waitDelta)),
		slog.Int("maxOpenConns", cur.MaxOpenConnections),
		slog.Int("openConns", cur.OpenConnections),
		slog.Int("inUseConns", cur.InUse),
	}

	level := slog.LevelDebug
	if waitDurationDelta >= dbPoolWarnDurationThreshold {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "Postgres pool wait", attrs...)
}
