// Package repository is the facade callers use for entity access. It
// hides the migration machinery: reads route to whichever store the
// current phase marks authoritative, with a TTL cache in front, and
// writes go through the dual-write coordinator.
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/mystira/storyvault/pkg/migration"
	"github.com/mystira/storyvault/pkg/reconcile"
	"github.com/mystira/storyvault/pkg/store"
	"github.com/mystira/storyvault/pkg/store/cache"
	"github.com/mystira/storyvault/pkg/store/dualwrite"
	"github.com/mystira/storyvault/pkg/store/validate"
)

// Options tune a Repository beyond the coordinator settings.
type Options struct {
	dualwrite.Options
	// CacheTTL and CacheSize configure the read cache. Defaults:
	// 30s, 1024 entries. A negative CacheSize disables caching.
	CacheTTL  time.Duration
	CacheSize int
}

func (o *Options) withDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 30 * time.Second
	}
	if o.CacheSize == 0 {
		o.CacheSize = 1024
	}
}

// Repository coordinates one entity type across both stores.
type Repository[T any, PT store.Entity[T]] struct {
	primary   store.Store[T, PT]
	secondary store.Store[T, PT]
	phases    *migration.Controller
	coord     *dualwrite.Coordinator[T, PT]
	validator *validate.Validator[T, PT]
	cache     *cache.Cache[PT]
	logger    *slog.Logger
}

// New wires a Repository. The coordinator's write hook invalidates the
// read cache so a read after a write never serves the stale entity.
func New[T any, PT store.Entity[T]](
	primary, secondary store.Store[T, PT],
	phases *migration.Controller,
	sink reconcile.Sink,
	logger *slog.Logger,
	opts Options,
) *Repository[T, PT] {
	opts.withDefaults()
	r := &Repository[T, PT]{
		primary:   primary,
		secondary: secondary,
		phases:    phases,
		coord:     dualwrite.New(primary, secondary, phases, sink, logger, opts.Options),
		validator: validate.New(primary, secondary),
		logger:    logger,
	}
	if opts.CacheSize > 0 {
		r.cache = cache.New[PT](opts.CacheTTL, opts.CacheSize)
		r.coord.OnWrite(r.cache.Invalidate)
	}
	return r
}

// readStore returns the authoritative store for the given phase.
func (r *Repository[T, PT]) readStore(phase migration.Phase) store.Store[T, PT] {
	if phase.ReadsSecondary() {
		return r.secondary
	}
	return r.primary
}

// Create persists a new entity. The returned outcome describes what
// happened on the best-effort side of the write.
func (r *Repository[T, PT]) Create(ctx context.Context, entity PT) (dualwrite.Outcome, error) {
	return r.coord.Create(ctx, entity)
}

// GetByID returns the entity or (nil, nil) when it does not exist.
// Cache hits skip the store entirely; misses read the authoritative
// store and populate the cache. Absence is not cached, so a create
// from another node becomes visible on the next read.
func (r *Repository[T, PT]) GetByID(ctx context.Context, id string) (PT, error) {
	if r.cache != nil {
		if entity, ok := r.cache.Get(id); ok {
			return entity, nil
		}
	}

	entity, err := r.readStore(r.phases.Phase()).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity != nil && r.cache != nil {
		r.cache.Put(id, entity)
	}
	return entity, nil
}

// Update replaces an existing entity through the coordinator.
func (r *Repository[T, PT]) Update(ctx context.Context, entity PT) (dualwrite.Outcome, error) {
	return r.coord.Update(ctx, entity)
}

// Delete removes an entity from every store the phase writes.
func (r *Repository[T, PT]) Delete(ctx context.Context, id string) (dualwrite.Outcome, error) {
	return r.coord.Delete(ctx, id)
}

// Query lists entities from the authoritative store. Results are not
// cached; the cache only serves point reads.
func (r *Repository[T, PT]) Query(ctx context.Context, filter store.Filter) ([]PT, error) {
	return r.readStore(r.phases.Phase()).List(ctx, filter)
}

// ValidateConsistency compares the entity across both stores and
// returns a field-level report.
func (r *Repository[T, PT]) ValidateConsistency(ctx context.Context, id string) (validate.Report, error) {
	return r.validator.Validate(ctx, id)
}

// Validator exposes the underlying validator for sweep registration.
func (r *Repository[T, PT]) Validator() *validate.Validator[T, PT] {
	return r.validator
}

// Coordinator exposes the dual-write coordinator for status reporting.
func (r *Repository[T, PT]) Coordinator() *dualwrite.Coordinator[T, PT] {
	return r.coord
}

// CacheStats reports cumulative cache hits and misses.
func (r *Repository[T, PT]) CacheStats() (hits, misses int64) {
	if r.cache == nil {
		return 0, 0
	}
	return r.cache.Stats()
}

// Close releases the cache's background goroutine. The stores are
// owned by the caller and closed separately.
func (r *Repository[T, PT]) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}
