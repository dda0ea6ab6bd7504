package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rulemate/internal/config"
	"rulemate/internal/model"
)

// Init initializes the database connection, runs migrations and seeds the
// checkpoint row.
func Init(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// sqlite allows a single writer; the three loops share one connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db, time.Now()); err != nil {
		return nil, err
	}

	log.WithField("driver", cfg.Driver).Info("Database initialized successfully")
	return db, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.GetDSN()), nil
	case config.DriverMySQL:
		return mysql.Open(cfg.GetDSN()), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Migrate creates the schema and the checkpoint row. The checkpoint defaults
// to now, stored in UTC, when it does not exist yet.
func Migrate(db *gorm.DB, now time.Time) error {
	if err := db.AutoMigrate(&model.Email{}, &model.Checkpoint{}, &model.ActionEntry{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	var cp model.Checkpoint
	err := db.First(&cp, model.CheckpointID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp = model.Checkpoint{ID: model.CheckpointID, LastFetchedTimestamp: now.UTC()}
	if err := db.Create(&cp).Error; err != nil {
		return fmt.Errorf("failed to seed checkpoint: %w", err)
	}
	return nil
}
