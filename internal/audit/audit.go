// Package audit persists an append-only log of workspace operations.
// Uses modernc.org/sqlite (pure Go, no CGO) through the glebarez/sqlite GORM
// driver, so a single binary carries its own operation history.
//
// The store is optional: a nil *Store is safe to call, making the audit
// trail a zero-cost no-op when disabled.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is a single audited operation.
type Record struct {
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
	CorrelationID string    `json:"correlation_id,omitempty" gorm:"index;type:text"`
	Tool          string    `json:"tool" gorm:"index;type:text"`
	Path          string    `json:"path,omitempty" gorm:"type:text"`
	Success       bool      `json:"success"`
	Detail        string    `json:"detail,omitempty" gorm:"type:text"`
	DurationMS    int64     `json:"duration_ms"`
}

// TableName keeps the table name stable regardless of GORM pluralization.
func (Record) TableName() string { return "audit_records" }

// Config holds audit store settings.
type Config struct {
	Path string // Database file path.
}

// Store is the SQLite-backed audit log.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open creates the audit store, running migrations on the way up.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit database path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating audit database directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", cfg.Path)

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating audit database: %w", err)
	}

	slogger.Info("audit store opened", slog.String("path", cfg.Path))
	return &Store{db: db, logger: slogger}, nil
}

// Append writes one record. A nil store discards it.
// Failures are logged, not returned — the audit trail never blocks an
// operation that already happened.
func (s *Store) Append(ctx context.Context, rec Record) {
	if s == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		s.logger.Warn("audit append failed",
			slog.String("tool", rec.Tool),
			slog.String("error", err.Error()),
		)
	}
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var records []Record
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	return records, nil
}

// Ping verifies the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying database handle. Nil-safe.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
