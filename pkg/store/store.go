// Package store defines the storage abstraction shared by every backend.
//
// A Store persists one entity type. Implementations exist for SurrealDB
// (document primary) and PostgreSQL (relational secondary), plus an
// in-memory mock for tests. Higher layers (cache, dualwrite, repository)
// compose stores without knowing which backend sits underneath.
//
// Conventions all implementations follow:
//   - Get returns (nil, nil) when the entity does not exist. Absence is
//     not an error.
//   - List returns an empty slice, never nil, when nothing matches.
//   - Create returns ErrConflict when the ID already exists.
//   - All operations honor context cancellation.
package store

import (
	"context"
	"time"
)

// Entity constrains the pointer type of a storable entity. Touch is
// called before writes to assign an ID when missing and to stamp
// timestamps; EntityID returns the string form of the primary key.
type Entity[T any] interface {
	*T
	EntityID() string
	TableName() string
	Touch(now time.Time)
}

// Filter narrows List results. Keys are column/field names, values are
// matched by equality. Backends translate filters into their native
// query form.
type Filter map[string]any

// Store is the uniform persistence interface for a single entity type.
type Store[T any, PT Entity[T]] interface {
	// Create inserts a new entity. Returns ErrConflict if an entity
	// with the same ID already exists.
	Create(ctx context.Context, entity PT) error

	// Get retrieves an entity by ID. Returns (nil, nil) if not found.
	Get(ctx context.Context, id string) (PT, error)

	// Update replaces an existing entity. Creates it if missing, so
	// dual-write replays converge.
	Update(ctx context.Context, entity PT) error

	// Delete removes an entity by ID. Deleting a missing entity is
	// not an error.
	Delete(ctx context.Context, id string) error

	// List returns entities matching the filter, newest first.
	// A nil or empty filter returns everything.
	List(ctx context.Context, filter Filter) ([]PT, error)

	// ListModifiedIDs returns the IDs of entities whose updated_at
	// falls in [since, until). Used by consistency sweeps.
	ListModifiedIDs(ctx context.Context, since, until time.Time) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// TableOf returns the table name for an entity type without needing an
// instance with data in it.
func TableOf[T any, PT Entity[T]]() string {
	var zero T
	return PT(&zero).TableName()
}
