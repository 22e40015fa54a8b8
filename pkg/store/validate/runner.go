package validate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mystira/storyvault/pkg/store"
)

// Sweeper is what the Runner needs from a validator: check the entities
// modified in a window and report back.
type Sweeper interface {
	Sweep(ctx context.Context, since, until time.Time) ([]Report, error)
}

// SweepValidator validates every entity either store saw modified in a
// time window. Sourcing IDs from both sides catches entities that only
// landed in one store, whichever side the current phase writes.
type SweepValidator[T any, PT store.Entity[T]] struct {
	v *Validator[T, PT]
}

func NewSweep[T any, PT store.Entity[T]](v *Validator[T, PT]) *SweepValidator[T, PT] {
	return &SweepValidator[T, PT]{v: v}
}

func (s *SweepValidator[T, PT]) Sweep(ctx context.Context, since, until time.Time) ([]Report, error) {
	if s.v.primary == nil || s.v.secondary == nil {
		return nil, ErrUnavailable
	}

	primaryIDs, err := s.v.primary.ListModifiedIDs(ctx, since, until)
	if err != nil {
		return nil, err
	}
	secondaryIDs, err := s.v.secondary.ListModifiedIDs(ctx, since, until)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(primaryIDs)+len(secondaryIDs))
	ids := make([]string, 0, len(primaryIDs)+len(secondaryIDs))
	for _, id := range append(primaryIDs, secondaryIDs...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	reports := make([]Report, 0, len(ids))
	for _, id := range ids {
		report, err := s.v.Validate(ctx, id)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Runner periodically sweeps all registered validators and keeps the
// most recent inconsistent reports for the status endpoint.
type Runner struct {
	sweepers []Sweeper
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	recent  []Report
	lastRun time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRunner sweeps every interval, looking back one window per sweep.
func NewRunner(interval, window time.Duration, logger *slog.Logger, sweepers ...Sweeper) *Runner {
	return &Runner{
		sweepers: sweepers,
		interval: interval,
		window:   window,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.runOnce(ctx)
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Runner) Stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *Runner) runOnce(ctx context.Context) {
	until := time.Now().UTC()
	since := until.Add(-r.window)

	var inconsistent []Report
	for _, s := range r.sweepers {
		reports, err := s.Sweep(ctx, since, until)
		if err != nil {
			r.logger.ErrorContext(ctx, "consistency sweep failed", "error", err)
			continue
		}
		for _, report := range reports {
			if !report.IsConsistent() {
				inconsistent = append(inconsistent, report)
			}
		}
	}

	r.mu.Lock()
	r.recent = inconsistent
	r.lastRun = until
	r.mu.Unlock()

	if len(inconsistent) > 0 {
		r.logger.WarnContext(ctx, "consistency sweep found divergence",
			"count", len(inconsistent))
	}
}

// Inconsistent returns the divergent reports from the last sweep and
// when it ran.
func (r *Runner) Inconsistent() ([]Report, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Report, len(r.recent))
	copy(out, r.recent)
	return out, r.lastRun
}
