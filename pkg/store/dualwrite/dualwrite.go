// Package dualwrite coordinates writes across the document primary and
// relational secondary stores during a migration. There is no shared
// transaction between the two backends, so the coordinator writes the
// authoritative store first and treats the other store as best-effort:
// its failures are retried, circuit-broken, and finally compensated by
// journaling a divergence record instead of failing the caller.
package dualwrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mystira/storyvault/pkg/breaker"
	"github.com/mystira/storyvault/pkg/migration"
	"github.com/mystira/storyvault/pkg/reconcile"
	"github.com/mystira/storyvault/pkg/retry"
	"github.com/mystira/storyvault/pkg/store"
)

// SecondaryStatus describes what happened to the best-effort store
// during a write.
type SecondaryStatus string

const (
	// StatusSuccess means the secondary write landed.
	StatusSuccess SecondaryStatus = "success"
	// StatusFailed means the secondary write failed past the retry
	// budget and a divergence was journaled.
	StatusFailed SecondaryStatus = "failed"
	// StatusSkipped means the secondary write was never attempted:
	// the phase routes writes to a single store (SkipReason "phase")
	// or the circuit breaker is open (SkipReason "circuit-open").
	StatusSkipped SecondaryStatus = "skipped"
)

// Skip reasons reported on a StatusSkipped outcome.
const (
	SkipPhase       = "phase"
	SkipCircuitOpen = "circuit-open"
)

// Outcome reports how a coordinated write went. The caller only sees
// an error when the authoritative store failed; everything about the
// best-effort store lives here.
type Outcome struct {
	Phase               migration.Phase
	SecondaryAttempted  bool
	SecondaryStatus     SecondaryStatus
	SkipReason          string
	SecondaryErr        error
	CompensationApplied bool
}

// Options tune a Coordinator. Zero values fall back to defaults.
type Options struct {
	// Timeout bounds the best-effort secondary write, retries
	// included. The authoritative write is never put under this
	// deadline. Defaults to 5s.
	Timeout time.Duration
	// Retry governs secondary store attempts. A nil Retryable
	// defaults to store.IsTransient so permanent failures (conflicts,
	// validation) propagate without burning the retry budget.
	Retry retry.Policy
	// BreakerThreshold and BreakerCooldown configure the secondary
	// store circuit breaker. Defaults: 5 failures, 30s cooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// DisableCompensation turns off divergence recording: secondary
	// failures are logged but not journaled for replay.
	DisableCompensation bool
}

func (o *Options) withDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = retry.DefaultPolicy()
	}
	if o.Retry.Retryable == nil {
		o.Retry.Retryable = store.IsTransient
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
}

// Coordinator routes writes for one entity type according to the
// current migration phase.
type Coordinator[T any, PT store.Entity[T]] struct {
	primary      store.Store[T, PT]
	secondary    store.Store[T, PT]
	phases       *migration.Controller
	breaker      *breaker.Breaker
	retry        retry.Policy
	sink         reconcile.Sink
	timeout      time.Duration
	compensation bool
	logger       *slog.Logger

	// onWrite is called after any write that changed the
	// authoritative store, for cache invalidation.
	onWrite func(id string)
}

// New builds a Coordinator. The sink receives a record for every
// secondary write that could not be applied.
func New[T any, PT store.Entity[T]](
	primary, secondary store.Store[T, PT],
	phases *migration.Controller,
	sink reconcile.Sink,
	logger *slog.Logger,
	opts Options,
) *Coordinator[T, PT] {
	opts.withDefaults()
	return &Coordinator[T, PT]{
		primary:      primary,
		secondary:    secondary,
		phases:       phases,
		breaker:      breaker.New(opts.BreakerThreshold, opts.BreakerCooldown),
		retry:        opts.Retry,
		sink:         sink,
		timeout:      opts.Timeout,
		compensation: !opts.DisableCompensation,
		logger:       logger,
	}
}

// OnWrite registers a hook invoked with the entity ID after every
// successful authoritative write or delete.
func (c *Coordinator[T, PT]) OnWrite(fn func(id string)) {
	c.onWrite = fn
}

// Breaker exposes the secondary store circuit breaker for status
// reporting.
func (c *Coordinator[T, PT]) Breaker() *breaker.Breaker {
	return c.breaker
}

// Create writes a new entity according to the current phase.
func (c *Coordinator[T, PT]) Create(ctx context.Context, entity PT) (Outcome, error) {
	entity.Touch(time.Now().UTC())
	return c.write(ctx, reconcile.OpCreate, entity,
		func(ctx context.Context, s store.Store[T, PT]) error { return s.Create(ctx, entity) },
		func(ctx context.Context, s store.Store[T, PT]) error {
			// Secondary side uses Update semantics so a replayed
			// create after a prior partial failure converges.
			return s.Update(ctx, entity)
		})
}

// Update replaces an existing entity according to the current phase.
func (c *Coordinator[T, PT]) Update(ctx context.Context, entity PT) (Outcome, error) {
	entity.Touch(time.Now().UTC())
	op := func(ctx context.Context, s store.Store[T, PT]) error { return s.Update(ctx, entity) }
	return c.write(ctx, reconcile.OpUpdate, entity, op, op)
}

// Delete removes an entity from the stores the current phase writes.
func (c *Coordinator[T, PT]) Delete(ctx context.Context, id string) (Outcome, error) {
	op := func(ctx context.Context, s store.Store[T, PT]) error { return s.Delete(ctx, id) }
	return c.writeID(ctx, reconcile.OpDelete, id, nil, op, op)
}

type storeOp[T any, PT store.Entity[T]] func(ctx context.Context, s store.Store[T, PT]) error

func (c *Coordinator[T, PT]) write(ctx context.Context, op reconcile.Op, entity PT, primaryOp, secondaryOp storeOp[T, PT]) (Outcome, error) {
	return c.writeID(ctx, op, entity.EntityID(), entity, primaryOp, secondaryOp)
}

// writeID runs one coordinated write. The phase is snapshotted once so
// a concurrent transition cannot split routing mid-operation. The
// authoritative write runs under the caller's context only; once
// started it is never cancelled by the coordinator.
func (c *Coordinator[T, PT]) writeID(ctx context.Context, op reconcile.Op, id string, entity PT, primaryOp, secondaryOp storeOp[T, PT]) (Outcome, error) {
	phase := c.phases.Phase()
	out := Outcome{Phase: phase, SecondaryStatus: StatusSkipped, SkipReason: SkipPhase}

	// Single-store phases: the one store is authoritative and its
	// error is the caller's error.
	if !phase.DualWrite() {
		target := c.primary
		if phase == migration.SecondaryOnly {
			target = c.secondary
		}
		if err := primaryOp(ctx, target); err != nil {
			return out, err
		}
		c.invalidate(id)
		return out, nil
	}

	// Dual phases: document store first. Its failure aborts the
	// operation before the relational store is touched.
	if err := primaryOp(ctx, c.primary); err != nil {
		return out, fmt.Errorf("primary %s: %w", op, err)
	}
	c.invalidate(id)

	out = c.applySecondary(ctx, op, id, entity, secondaryOp, out)
	return out, nil
}

// applySecondary runs the best-effort side of a dual write under its
// own deadline, retrying with every attempt gated by the circuit
// breaker, and compensates on failure. Retry wraps the breaker so each
// failed attempt counts toward the breaker's threshold.
func (c *Coordinator[T, PT]) applySecondary(ctx context.Context, op reconcile.Op, id string, entity PT, secondaryOp storeOp[T, PT], out Outcome) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.breaker.Do(ctx, func(ctx context.Context) error {
			return secondaryOp(ctx, c.secondary)
		})
	})

	switch {
	case err == nil:
		out.SecondaryAttempted = true
		out.SecondaryStatus = StatusSuccess
		out.SkipReason = ""
		// A racing read during the secondary attempt may have cached
		// the old row; drop it now that the store reads route to has
		// the new one.
		if out.Phase.ReadsSecondary() {
			c.invalidate(id)
		}
		return out
	case errors.Is(err, breaker.ErrOpen):
		out.SecondaryStatus = StatusSkipped
		out.SkipReason = SkipCircuitOpen
	default:
		out.SecondaryAttempted = true
		out.SecondaryStatus = StatusFailed
		out.SecondaryErr = err
		out.SkipReason = ""
	}

	out.CompensationApplied = c.compensateWrite(ctx, op, id, entity, out)
	return out
}

// compensateWrite logs the divergence and, when compensation is
// enabled, records it to the sink for later replay. Returns whether a
// record was written.
func (c *Coordinator[T, PT]) compensateWrite(ctx context.Context, op reconcile.Op, id string, entity PT, out Outcome) bool {
	d := reconcile.Divergence{
		Table:     store.TableOf[T, PT](),
		EntityID:  id,
		Op:        op,
		Phase:     out.Phase.String(),
		Timestamp: time.Now().UTC(),
	}
	if out.SecondaryErr != nil {
		d.Reason = out.SecondaryErr.Error()
	} else {
		d.Reason = out.SkipReason
	}

	c.logger.WarnContext(ctx, "secondary write diverged",
		"table", d.Table,
		"entity_id", id,
		"op", string(op),
		"phase", d.Phase,
		"status", string(out.SecondaryStatus),
		"reason", d.Reason,
	)
	if !c.compensation {
		return false
	}

	if entity != nil {
		payload, err := msgpack.Marshal(entity)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to encode divergence payload",
				"table", d.Table, "entity_id", id, "error", err)
		} else {
			d.Payload = payload
		}
	}
	c.sink.Record(ctx, d)
	return true
}

func (c *Coordinator[T, PT]) invalidate(id string) {
	if c.onWrite != nil {
		c.onWrite(id)
	}
}
