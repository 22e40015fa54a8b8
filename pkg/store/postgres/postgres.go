// Package postgres implements the store interface on PostgreSQL via
// GORM. It is the relational secondary during migration: strict
// schema, foreign keys, and SQL tooling, at the cost of losing the
// document store's schema flexibility.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mystira/storyvault/pkg/store"
)

// Store is a generic PostgreSQL-backed store for one entity type.
type Store[T any, PT store.Entity[T]] struct {
	db    *gorm.DB
	table string
}

// Connect opens a GORM connection. GORM's own logger is silenced; the
// application logs at the coordination layer instead.
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	return db, nil
}

// New returns a store for the entity's table on an existing
// connection.
func New[T any, PT store.Entity[T]](db *gorm.DB) *Store[T, PT] {
	return &Store[T, PT]{db: db, table: store.TableOf[T, PT]()}
}

// Migrate creates or updates the entity's table.
func (s *Store[T, PT]) Migrate(ctx context.Context) error {
	var model T
	if err := s.db.WithContext(ctx).AutoMigrate(&model); err != nil {
		return fmt.Errorf("migrating %s: %w", s.table, err)
	}
	return nil
}

// isConnErr classifies failures worth retrying: dropped connections,
// timeouts, serialization conflicts. Constraint violations are not
// retryable.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "could not serialize")
}

func wrapErr(op, table string, err error) error {
	err = fmt.Errorf("postgres %s %s: %w", op, table, err)
	if isConnErr(err) {
		return store.Transient(err)
	}
	return err
}

func (s *Store[T, PT]) Create(ctx context.Context, entity PT) error {
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(err.Error(), "duplicate key") {
			return store.ErrConflict
		}
		return wrapErr("create", s.table, err)
	}
	return nil
}

func (s *Store[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	var entity T
	err := s.db.WithContext(ctx).First(&entity, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapErr("get", s.table, err)
	}
	return &entity, nil
}

// Update saves the full row, inserting it when missing so a dual-write
// replay converges.
func (s *Store[T, PT]) Update(ctx context.Context, entity PT) error {
	if err := s.db.WithContext(ctx).Save(entity).Error; err != nil {
		return wrapErr("update", s.table, err)
	}
	return nil
}

func (s *Store[T, PT]) Delete(ctx context.Context, id string) error {
	var model T
	if err := s.db.WithContext(ctx).Delete(&model, "id = ?", id).Error; err != nil {
		return wrapErr("delete", s.table, err)
	}
	return nil
}

func (s *Store[T, PT]) List(ctx context.Context, filter store.Filter) ([]PT, error) {
	q := s.db.WithContext(ctx).Model(new(T)).Order("created_at DESC")
	if len(filter) > 0 {
		q = q.Where(map[string]any(filter))
	}
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapErr("list", s.table, err)
	}
	out := make([]PT, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func (s *Store[T, PT]) ListModifiedIDs(ctx context.Context, since, until time.Time) ([]string, error) {
	ids := make([]string, 0)
	err := s.db.WithContext(ctx).
		Model(new(T)).
		Where("(created_at >= ? AND created_at < ?) OR (updated_at >= ? AND updated_at < ?)",
			since, until, since, until).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrapErr("list modified", s.table, err)
	}
	return ids, nil
}

// Close is a no-op: the shared connection pool is closed by its owner
// via ClosePool.
func (s *Store[T, PT]) Close() error { return nil }

// ClosePool releases the underlying connection pool. Call once, after
// every table store on the connection is done.
func ClosePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
