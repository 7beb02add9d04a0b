package db

import (
	"fmt"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormWriter sends gorm's slow-query and error lines to the app logger.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn("gorm", "detail", fmt.Sprintf(format, args...))
}

func newGormLogger(log *logger.Logger) gormlogger.Interface {
	if log == nil {
		log = logger.NewNop()
	}
	return gormlogger.New(gormWriter{log: log}, gormlogger.Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormlogger.Warn,
		// misses are expected on lookups such as FindEntity
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Open picks the driver from the DSN shape: "file:", ":memory:" or a *.db
// path go to the embedded sqlite driver, anything else is treated as mysql.
// log may be nil.
func Open(dsn string, log *logger.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: newGormLogger(log)}

	var dialector gorm.Dialector
	if IsSQLite(dsn) {
		dialector = gormsqlite.Open(dsn)
	} else {
		dialector = mysql.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if IsSQLite(dsn) {
		// The embedded driver serializes writes; a single connection avoids
		// SQLITE_BUSY between pooled connections.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

func IsSQLite(dsn string) bool {
	d := strings.TrimSpace(dsn)
	return strings.HasPrefix(d, "file:") ||
		strings.HasPrefix(d, ":memory:") ||
		strings.HasSuffix(d, ".db") ||
		strings.HasSuffix(d, ".sqlite")
}

// Migrate creates or updates the given tables.
func Migrate(gdb *gorm.DB, models ...any) error {
	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
