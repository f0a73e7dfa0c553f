package db

import (
	"fmt"
	stlog "log"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// DB is the global database connection instance.
var DB *gorm.DB

// DriverName returns the database/sql driver name registered by the gorm dialector,
// which sqlx needs to pick a bindvar style.
func DriverName(driver string) string {
	if driver == "mysql" {
		return "mysql"
	}
	return "sqlite3"
}

// Open connects to the database described by driver ("sqlite" or "mysql") and dsn.
func Open(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   newGormLogger(),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver != "mysql" {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY under concurrent goroutines
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return conn, nil
}

// InitDB initializes the global database connection.
func InitDB(driver, dsn string) error {
	conn, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	DB = conn
	log.Info().Str("driver", driver).Msg("Database connection established successfully.")
	return nil
}

// MigrateDB runs GORM's AutoMigrate for the defined models.
// It should be called after InitDB.
func MigrateDB(modelsToMigrate ...interface{}) error {
	if DB == nil {
		return fmt.Errorf("database not initialized, call InitDB first")
	}
	return Migrate(DB, modelsToMigrate...)
}

// Migrate runs AutoMigrate on an explicit connection.
func Migrate(conn *gorm.DB, modelsToMigrate ...interface{}) error {
	if len(modelsToMigrate) == 0 {
		return fmt.Errorf("no models provided for migration")
	}
	if err := conn.AutoMigrate(modelsToMigrate...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	log.Info().Int("models_migrated", len(modelsToMigrate)).Msg("Database migration completed successfully for provided models.")
	return nil
}

// newGormLogger routes GORM's logger into zerolog, mirroring the global level.
func newGormLogger() gormlogger.Interface {
	var level gormlogger.LogLevel
	switch zerolog.GlobalLevel() {
	case zerolog.TraceLevel:
		level = gormlogger.Info
	case zerolog.DebugLevel, zerolog.InfoLevel:
		level = gormlogger.Warn
	case zerolog.Disabled:
		level = gormlogger.Silent
	default:
		level = gormlogger.Error
	}

	return gormlogger.New(
		stlog.New(log.Logger, "", 0),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
