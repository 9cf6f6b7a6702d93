// Package store is the opaque persistence sink named in spec §6.2: trade
// records, equity-curve points, and rotation history. The core treats it as
// a write-mostly append log; schema and query shape are this package's own
// business.
package store

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nofx/logger"
)

// DBType selects the gorm dialector, matching the teacher's own
// DB_TYPE-driven selection in its original NewFromEnv.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

// Store wraps the gorm handle and exposes the three append-only ledgers the
// core writes to.
type Store struct {
	db     *gorm.DB
	dbType DBType
}

// New opens a SQLite-backed Store at dbPath (the teacher's "backward
// compatible" single-file mode).
func New(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(db, DBTypeSQLite)
}

// NewFromEnv opens a Store using DB_TYPE ("sqlite", default, or
// "postgres") and the matching DB_* environment variables, mirroring the
// teacher's NewFromEnv contract.
func NewFromEnv() (*Store, error) {
	dbType := DBType(os.Getenv("DB_TYPE"))

	var dialector gorm.Dialector
	switch dbType {
	case DBTypePostgres:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			os.Getenv("DB_HOST"), envOrDefault("DB_PORT", "5432"), os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"), envOrDefault("DB_SSLMODE", "disable"))
		dialector = postgres.Open(dsn)
	default:
		dbType = DBTypeSQLite
		dialector = sqlite.Open(envOrDefault("DB_PATH", "data/data.db"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(db, dbType)
}

func newStore(db *gorm.DB, dbType DBType) (*Store, error) {
	s := &Store{db: db, dbType: dbType}
	if err := s.db.AutoMigrate(&TradeRecord{}, &EquityPoint{}, &RotationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	logger.Infof("✅ Database initialized (type: %s)", dbType)
	return s, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DBType reports which dialector this Store opened with.
func (s *Store) DBType() DBType {
	return s.dbType
}
