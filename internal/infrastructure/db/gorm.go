package db

import (
	"fmt"
	"log/slog"
	"time"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/notification"
	"deferral-backend/internal/domain/numbering"
	"deferral-backend/internal/domain/user"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pool sizes the connection pool. Zero fields take the defaults below.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	// LogSQL logs every statement; meant for local development.
	LogSQL bool
}

func (p Pool) withDefaults() Pool {
	if p.MaxOpen <= 0 {
		p.MaxOpen = 30
	}
	if p.MaxIdle <= 0 || p.MaxIdle > p.MaxOpen {
		p.MaxIdle = min(10, p.MaxOpen)
	}
	if p.MaxLifetime <= 0 {
		p.MaxLifetime = 30 * time.Minute
	}
	return p
}

func OpenMySQL(dsn string, pool Pool) (*gorm.DB, error) {
	return Open(mysql.Open(dsn), pool)
}

// Open opens and pings a pool over any dialector. Driver errors are
// translated to gorm's sentinels so a duplicate deferral number surfaces as
// gorm.ErrDuplicatedKey.
func Open(dial gorm.Dialector, pool Pool) (*gorm.DB, error) {
	pool = pool.withDefaults()
	level := logger.Warn
	if pool.LogSQL {
		level = logger.Info
	}
	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dial.Name(), err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.MaxLifetime / 3)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dial.Name(), err)
	}
	slog.Info("database connected", "dialect", dial.Name(), "max_open", pool.MaxOpen)
	return gdb, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&deferral.Deferral{},
		&deferral.ActorRecord{},
		&numbering.Sequence{},
		&user.User{},
		&notification.Notification{},
	)
}
