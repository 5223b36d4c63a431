package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses SQLite (single-node, default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string // disable, require, verify-ca, verify-full
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config contains database configuration.
type Config struct {
	Type     DatabaseType
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// GORMStore implements the Store interface using GORM.
// It supports both SQLite and PostgreSQL backends via the same codebase.
type GORMStore struct {
	db     *gorm.DB
	config *Config
}

// New creates a document store based on the configuration.
// It creates the schema via GORM AutoMigrate.
func New(config *Config) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if dir := filepath.Dir(config.SQLite.Path); dir != "." && config.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// SQLite pragmas for concurrent access:
		// - journal_mode(WAL): concurrent readers with a single writer
		// - busy_timeout(5000): wait up to 5 seconds when the database is locked
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(&PersistedDocument{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &GORMStore{db: db, config: config}, nil
}

// DB returns the underlying GORM database connection.
// This is useful for advanced queries or testing.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// Load retrieves a document snapshot by ID.
func (s *GORMStore) Load(ctx context.Context, id string) (*PersistedDocument, error) {
	var doc PersistedDocument
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return &doc, nil
}

// Save upserts a document snapshot, replacing text and language on conflict.
func (s *GORMStore) Save(ctx context.Context, doc *PersistedDocument) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "language"}),
	}).Create(doc).Error
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// Exists reports whether a snapshot exists without loading its text.
func (s *GORMStore) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&PersistedDocument{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", id, err)
	}
	return count > 0, nil
}

// Count returns the number of persisted documents.
func (s *GORMStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&PersistedDocument{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Size returns the on-disk size of the store in bytes. For SQLite this is
// the database file size; for PostgreSQL it queries pg_database_size.
func (s *GORMStore) Size(ctx context.Context) (int64, error) {
	switch s.config.Type {
	case DatabaseTypeSQLite:
		if s.config.SQLite.Path == ":memory:" {
			return -1, nil
		}
		info, err := os.Stat(s.config.SQLite.Path)
		if err != nil {
			return 0, fmt.Errorf("failed to stat database file: %w", err)
		}
		return info.Size(), nil
	case DatabaseTypePostgres:
		var size int64
		err := s.db.WithContext(ctx).
			Raw("SELECT pg_database_size(current_database())").
			Scan(&size).Error
		if err != nil {
			return 0, fmt.Errorf("failed to query database size: %w", err)
		}
		return size, nil
	default:
		return -1, nil
	}
}

// Close releases the underlying database connection.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
