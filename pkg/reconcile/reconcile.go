// Package reconcile records divergences between the two stores so an
// operator can replay them later. When a secondary write fails past its
// retry budget the coordinator compensates by journaling the intent
// instead of failing the caller.
package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Op names the write that diverged.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Divergence is one skipped or failed secondary write. Payload holds
// the entity as it was written to the authoritative store, msgpack-
// encoded, so replay does not depend on the primary still having it.
type Divergence struct {
	Table     string    `msgpack:"table"`
	EntityID  string    `msgpack:"entity_id"`
	Op        Op        `msgpack:"op"`
	Phase     string    `msgpack:"phase"`
	Reason    string    `msgpack:"reason"`
	Payload   []byte    `msgpack:"payload,omitempty"`
	Timestamp time.Time `msgpack:"timestamp"`
}

// Sink receives divergence records. Record must not fail the write
// path: implementations log and swallow their own errors.
type Sink interface {
	Record(ctx context.Context, d Divergence)
}

// LogSink writes divergences to the structured log only. Used when no
// journal file is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Record(ctx context.Context, d Divergence) {
	s.Logger.WarnContext(ctx, "store divergence",
		"table", d.Table,
		"entity_id", d.EntityID,
		"op", string(d.Op),
		"phase", d.Phase,
		"reason", d.Reason,
	)
}

// MultiSink fans a divergence out to several sinks.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, d Divergence) {
	for _, s := range m {
		s.Record(ctx, d)
	}
}
