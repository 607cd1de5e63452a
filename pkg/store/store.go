// Package store persists blobs and users in a single embedded SQLite
// database and exposes them through serialized transactions.
//
// Every caller goes through Store.Transaction: a process-wide mutex
// hands the connection to one transaction at a time, and the inner GORM
// transaction makes each handler's operation set all-or-nothing. The
// serialization is deliberate; the ordering guarantees of the event
// pipeline are built on mutations committing one after another.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fioncat/csync/internal/telemetry"
	"github.com/fioncat/csync/pkg/models"
)

// Config contains database configuration.
type Config struct {
	// Path is the SQLite database file. ":memory:" opens a private
	// in-memory database, used by tests.
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// Store owns the database connection.
type Store struct {
	db *gorm.DB

	// mu serializes transactions on the single connection.
	mu chanMutex
}

// New opens (or creates) the database at config.Path and migrates the
// blob and user tables.
func New(config *Config) (*Store, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// SQLite pragmas:
	// - journal_mode(WAL): concurrent readers with a single writer
	// - busy_timeout(5000): wait up to 5 seconds when the file is locked
	// - foreign_keys(1): enforce declared references
	dsn := config.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&models.Blob{}, &models.User{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, mu: newChanMutex()}, nil
}

// Transaction runs fn inside a database transaction. Transactions are
// serialized process-wide; fn either commits as a whole or rolls back
// on error. Hooks registered with Tx.OnCommit run after a successful
// commit, before the next transaction can start.
//
// An in-flight transaction completes even when ctx is canceled; ctx
// only bounds the wait for the connection.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	ctx, span := telemetry.StartStoreSpan(ctx)
	defer span.End()

	if err := s.mu.lock(ctx); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	defer s.mu.unlock()

	tx := &Tx{}
	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(db *gorm.DB) error {
		tx.db = db
		return fn(tx)
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx is the handle passed to Transaction callbacks. All operations on
// it run inside the same database transaction.
type Tx struct {
	db    *gorm.DB
	hooks []func()
}

// OnCommit registers fn to run once the transaction has committed.
// Hooks run in registration order while the store lock is still held,
// so whatever they publish is ordered like the commits themselves.
// Hooks of a rolled-back transaction never run.
func (tx *Tx) OnCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}

// chanMutex is a mutex whose acquisition can be abandoned when the
// caller's context expires.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	return make(chanMutex, 1)
}

func (m chanMutex) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() {
	<-m
}

// isUniqueConstraintError checks if the error is a unique constraint
// violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the
// appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
