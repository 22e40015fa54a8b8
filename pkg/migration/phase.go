// Package migration tracks which stage of the store migration the
// system is in and answers routing questions for reads and writes.
package migration

import (
	"fmt"
	"sync"
)

// Phase names a stage of the migration from the document store to the
// relational store.
type Phase string

const (
	// PrimaryOnly routes everything to the document store. The
	// relational store is untouched.
	PrimaryOnly Phase = "primary_only"
	// DualWritePrimaryRead writes to both stores and reads from the
	// document store.
	DualWritePrimaryRead Phase = "dual_write_primary_read"
	// DualWriteSecondaryRead writes to both stores and reads from the
	// relational store.
	DualWriteSecondaryRead Phase = "dual_write_secondary_read"
	// SecondaryOnly routes everything to the relational store.
	SecondaryOnly Phase = "secondary_only"
)

// ParsePhase converts a string into a Phase, rejecting unknown values.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PrimaryOnly, DualWritePrimaryRead, DualWriteSecondaryRead, SecondaryOnly:
		return Phase(s), nil
	}
	return "", fmt.Errorf("unknown migration phase: %q", s)
}

func (p Phase) String() string { return string(p) }

// DualWrite reports whether writes go to both stores.
func (p Phase) DualWrite() bool {
	return p == DualWritePrimaryRead || p == DualWriteSecondaryRead
}

// WritesPrimary reports whether the document store receives writes.
func (p Phase) WritesPrimary() bool {
	return p != SecondaryOnly
}

// WritesSecondary reports whether the relational store receives writes.
func (p Phase) WritesSecondary() bool {
	return p != PrimaryOnly
}

// ReadsSecondary reports whether reads come from the relational store.
func (p Phase) ReadsSecondary() bool {
	return p == DualWriteSecondaryRead || p == SecondaryOnly
}

// Controller holds the current phase and hands out a consistent value
// per operation. Transitions happen between operations, never within
// one: callers snapshot the phase once at operation start.
type Controller struct {
	mu    sync.RWMutex
	phase Phase
}

// NewController starts in the given phase.
func NewController(phase Phase) *Controller {
	return &Controller{phase: phase}
}

// Phase returns the current phase. Each operation calls this exactly
// once and uses the snapshot for all of its routing decisions.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// SetPhase transitions to the given phase. Any phase may follow any
// other; rollback is an operational decision, not ours to block.
func (c *Controller) SetPhase(phase Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
}
