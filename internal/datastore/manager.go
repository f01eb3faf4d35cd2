// Package datastore opens the alert history database and runs its migrations.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/tphakala/logwatch/internal/datastore/entities"
	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// Supported history drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// pruneTimeout bounds the retention sweep run at open time.
const pruneTimeout = 10 * time.Second

var (
	// ErrUnsupportedDriver is returned for drivers other than sqlite and mysql.
	ErrUnsupportedDriver = errors.New("unsupported history driver")
	// ErrEmptyDSN is returned when a driver is selected without a DSN.
	ErrEmptyDSN = errors.New("history DSN is empty")
)

// Manager owns the history database connection.
type Manager struct {
	db     *gorm.DB
	driver string
	log    logger.Logger
}

// Open connects to the history database and migrates its schema.
func Open(driver, dsn string, log logger.Logger) (*Manager, error) {
	if dsn == "" {
		return nil, ErrEmptyDSN
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		// Scanning DATETIME into time.Time requires parseTime.
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql DSN: %w", err)
		}
		cfg.ParseTime = true
		if cfg.Loc == nil {
			cfg.Loc = time.UTC
		}
		dialector = mysql.Open(cfg.FormatDSN())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gorm_logger.Default.LogMode(gorm_logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s history database: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&entities.AlertHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	log.Info("alert history database opened", logger.String("driver", driver))
	return &Manager{db: db, driver: driver, log: log}, nil
}

// DB returns the underlying GORM handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Driver returns the configured driver name.
func (m *Manager) Driver() string {
	return m.driver
}

// HistoryRepository returns a repository bound to this database.
func (m *Manager) HistoryRepository() repository.AlertHistoryRepository {
	return repository.NewAlertHistoryRepository(m.db)
}

// Prune deletes entries recorded more than retention ago by the wall clock.
// A zero retention keeps everything.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	deleted, err := m.HistoryRepository().DeleteHistoryBefore(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		m.log.Info("alert history pruned",
			logger.Int64("deleted", deleted),
			logger.Duration("retention", retention))
	}
	return deleted, nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
