package dualwrite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystira/storyvault/pkg/breaker"
	"github.com/mystira/storyvault/pkg/migration"
	"github.com/mystira/storyvault/pkg/models"
	"github.com/mystira/storyvault/pkg/reconcile"
	"github.com/mystira/storyvault/pkg/retry"
	"github.com/mystira/storyvault/pkg/store"
	"github.com/mystira/storyvault/pkg/store/storetest"
)

type recordingSink struct {
	records []reconcile.Divergence
}

func (s *recordingSink) Record(ctx context.Context, d reconcile.Divergence) {
	s.records = append(s.records, d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastOpts() Options {
	return Options{
		Timeout: time.Second,
		Retry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

type fixture struct {
	primary   *storetest.MockStore[models.Story, *models.Story]
	secondary *storetest.MockStore[models.Story, *models.Story]
	phases    *migration.Controller
	sink      *recordingSink
	coord     *Coordinator[models.Story, *models.Story]
}

func newFixture(phase migration.Phase, opts Options) *fixture {
	f := &fixture{
		primary:   storetest.NewMockStore[models.Story, *models.Story](),
		secondary: storetest.NewMockStore[models.Story, *models.Story](),
		phases:    migration.NewController(phase),
		sink:      &recordingSink{},
	}
	f.coord = New(f.primary, f.secondary, f.phases, f.sink, testLogger(), opts)
	return f
}

func newStory() *models.Story {
	return &models.Story{
		ID:    models.NewStoryID(),
		Title: "The Lantern Keeper",
	}
}

func TestPrimaryOnlyNeverTouchesSecondary(t *testing.T) {
	f := newFixture(migration.PrimaryOnly, fastOpts())

	out, err := f.coord.Create(context.Background(), newStory())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, out.SecondaryStatus)
	assert.Equal(t, SkipPhase, out.SkipReason)
	assert.False(t, out.SecondaryAttempted)
	assert.Equal(t, 1, f.primary.CreateCalls)
	assert.Equal(t, 0, f.secondary.CreateCalls+f.secondary.UpdateCalls)
	assert.Empty(t, f.sink.records)
}

func TestDualWriteLandsInBothStores(t *testing.T) {
	f := newFixture(migration.DualWritePrimaryRead, fastOpts())
	story := newStory()

	out, err := f.coord.Create(context.Background(), story)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.SecondaryStatus)
	assert.True(t, out.SecondaryAttempted)
	assert.False(t, out.CompensationApplied)
	assert.True(t, f.primary.Has(story.EntityID()))
	assert.True(t, f.secondary.Has(story.EntityID()))
	assert.Empty(t, f.sink.records)
}

func TestPrimaryFailureAbortsBeforeSecondary(t *testing.T) {
	f := newFixture(migration.DualWritePrimaryRead, fastOpts())
	f.primary.CreateErr = errors.New("primary down")

	_, err := f.coord.Create(context.Background(), newStory())
	require.Error(t, err)

	assert.Equal(t, 0, f.secondary.CreateCalls+f.secondary.UpdateCalls)
	assert.Empty(t, f.sink.records)
}

func TestSecondaryFailureRetriesThenCompensates(t *testing.T) {
	f := newFixture(migration.DualWritePrimaryRead, fastOpts())
	f.secondary.UpdateErr = store.Transient(errors.New("connection refused"))
	story := newStory()

	// The caller still succeeds: the authoritative write landed.
	out, err := f.coord.Create(context.Background(), story)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.SecondaryStatus)
	assert.True(t, out.SecondaryAttempted)
	assert.True(t, out.CompensationApplied)
	assert.Equal(t, 3, f.secondary.UpdateCalls, "retry budget is 3 attempts")

	require.Len(t, f.sink.records, 1)
	d := f.sink.records[0]
	assert.Equal(t, "stories", d.Table)
	assert.Equal(t, story.EntityID(), d.EntityID)
	assert.Equal(t, reconcile.OpCreate, d.Op)
	assert.NotEmpty(t, d.Payload)
}

func TestCircuitOpenSkipsSecondary(t *testing.T) {
	opts := fastOpts()
	opts.BreakerThreshold = 1
	f := newFixture(migration.DualWritePrimaryRead, opts)
	f.secondary.UpdateErr = store.Transient(errors.New("connection refused"))

	// First write trips the breaker on its first failed attempt; the
	// retry's next attempt is refused at the breaker.
	_, err := f.coord.Create(context.Background(), newStory())
	require.NoError(t, err)
	require.Equal(t, breaker.Open, f.coord.Breaker().State())
	callsAfterTrip := f.secondary.UpdateCalls
	assert.Equal(t, 1, callsAfterTrip)

	// Second write skips the secondary entirely.
	out, err := f.coord.Create(context.Background(), newStory())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, out.SecondaryStatus)
	assert.Equal(t, SkipCircuitOpen, out.SkipReason)
	assert.False(t, out.SecondaryAttempted)
	assert.True(t, out.CompensationApplied)
	assert.Equal(t, callsAfterTrip, f.secondary.UpdateCalls, "no secondary calls while open")

	require.Len(t, f.sink.records, 2)
	assert.Equal(t, "circuit-open", f.sink.records[1].Reason)
}

func TestSecondaryOnlyFailureIsFatal(t *testing.T) {
	f := newFixture(migration.SecondaryOnly, fastOpts())
	f.secondary.CreateErr = errors.New("secondary down")

	_, err := f.coord.Create(context.Background(), newStory())
	require.Error(t, err)
	assert.Equal(t, 0, f.primary.CreateCalls)
	assert.Empty(t, f.sink.records, "sole-store failures are the caller's problem, not divergence")
}

func TestDeleteRoutesByPhase(t *testing.T) {
	f := newFixture(migration.DualWriteSecondaryRead, fastOpts())
	story := newStory()
	f.primary.Put(story)
	f.secondary.Put(story)

	out, err := f.coord.Delete(context.Background(), story.EntityID())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.SecondaryStatus)
	assert.False(t, f.primary.Has(story.EntityID()))
	assert.False(t, f.secondary.Has(story.EntityID()))
}

func TestDeleteCompensatesWithoutPayload(t *testing.T) {
	f := newFixture(migration.DualWritePrimaryRead, fastOpts())
	story := newStory()
	f.primary.Put(story)
	f.secondary.Put(story)
	f.secondary.DeleteErr = store.Transient(errors.New("connection reset"))

	out, err := f.coord.Delete(context.Background(), story.EntityID())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.SecondaryStatus)
	require.Len(t, f.sink.records, 1)
	assert.Equal(t, reconcile.OpDelete, f.sink.records[0].Op)
	assert.Empty(t, f.sink.records[0].Payload)
}

func TestOnWriteHookFires(t *testing.T) {
	f := newFixture(migration.DualWritePrimaryRead, fastOpts())
	var invalidated []string
	f.coord.OnWrite(func(id string) { invalidated = append(invalidated, id) })

	story := newStory()
	_, err := f.coord.Create(context.Background(), story)
	require.NoError(t, err)
	_, err = f.coord.Delete(context.Background(), story.EntityID())
	require.NoError(t, err)

	assert.Equal(t, []string{story.EntityID(), story.EntityID()}, invalidated)
}

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	f := newFixture(migration.PrimaryOnly, fastOpts())
	story := &models.Story{Title: "Untitled"}

	_, err := f.coord.Create(context.Background(), story)
	require.NoError(t, err)

	assert.False(t, story.ID.IsZero())
	assert.False(t, story.CreatedAt.IsZero())
	assert.False(t, story.UpdatedAt.IsZero())
}

func TestBreakerCountsEachRetryAttempt(t *testing.T) {
	opts := fastOpts()
	opts.BreakerThreshold = 2
	f := newFixture(migration.DualWritePrimaryRead, opts)
	f.secondary.UpdateErr = store.Transient(errors.New("connection refused"))

	// Attempts pass through the breaker individually, so two failed
	// attempts of a single write reach the threshold; the third is
	// refused without touching the store.
	out, err := f.coord.Create(context.Background(), newStory())
	require.NoError(t, err)

	assert.Equal(t, 2, f.secondary.UpdateCalls)
	assert.Equal(t, breaker.Open, f.coord.Breaker().State())
	assert.True(t, out.CompensationApplied)
}

func TestPermanentSecondaryErrorNotRetried(t *testing.T) {
	f := newFixture(migration.DualWritePrimaryRead, fastOpts())
	f.secondary.UpdateErr = errors.New("value too long for column")

	out, err := f.coord.Create(context.Background(), newStory())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.SecondaryStatus)
	assert.Equal(t, 1, f.secondary.UpdateCalls, "permanent failures get no second attempt")
	require.Len(t, f.sink.records, 1)
}

// slowStore delays Create so tests can observe whether the write was
// put under a deadline.
type slowStore struct {
	*storetest.MockStore[models.Story, *models.Story]
	delay time.Duration
}

func (s *slowStore) Create(ctx context.Context, entity *models.Story) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MockStore.Create(ctx, entity)
}

func TestSecondaryTimeoutDoesNotCancelPrimary(t *testing.T) {
	opts := Options{
		Timeout: 10 * time.Millisecond,
		Retry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    time.Second,
			Retryable:   store.IsTransient,
		},
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
	primary := &slowStore{
		MockStore: storetest.NewMockStore[models.Story, *models.Story](),
		delay:     30 * time.Millisecond,
	}
	secondary := storetest.NewMockStore[models.Story, *models.Story]()
	secondary.UpdateErr = store.Transient(errors.New("connection refused"))
	sink := &recordingSink{}
	coord := New[models.Story, *models.Story](primary, secondary,
		migration.NewController(migration.DualWritePrimaryRead), sink, testLogger(), opts)

	story := newStory()
	// The primary write takes three times the secondary's budget and
	// must still complete; only the secondary attempt hits the
	// deadline, during its first backoff.
	out, err := coord.Create(context.Background(), story)
	require.NoError(t, err)

	assert.True(t, primary.Has(story.EntityID()))
	assert.Equal(t, StatusFailed, out.SecondaryStatus)
	assert.Equal(t, 1, secondary.UpdateCalls)
	require.Len(t, sink.records, 1)
}

func TestSecondaryReadPhaseInvalidatesAfterSecondaryWrite(t *testing.T) {
	f := newFixture(migration.DualWriteSecondaryRead, fastOpts())
	var invalidated []string
	f.coord.OnWrite(func(id string) { invalidated = append(invalidated, id) })

	story := newStory()
	_, err := f.coord.Create(context.Background(), story)
	require.NoError(t, err)

	// Once after the authoritative write, once after the store reads
	// route to caught up, so a read racing the secondary write cannot
	// pin its old row in the cache.
	assert.Equal(t, []string{story.EntityID(), story.EntityID()}, invalidated)

	g := newFixture(migration.DualWritePrimaryRead, fastOpts())
	var primaryReadInvalidated []string
	g.coord.OnWrite(func(id string) { primaryReadInvalidated = append(primaryReadInvalidated, id) })

	other := newStory()
	_, err = g.coord.Create(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, []string{other.EntityID()}, primaryReadInvalidated,
		"primary-read phases need no second invalidation")
}

func TestCompensationDisabledLogsOnly(t *testing.T) {
	opts := fastOpts()
	opts.DisableCompensation = true
	f := newFixture(migration.DualWritePrimaryRead, opts)
	f.secondary.UpdateErr = store.Transient(errors.New("connection refused"))

	out, err := f.coord.Create(context.Background(), newStory())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.SecondaryStatus)
	assert.False(t, out.CompensationApplied)
	assert.Empty(t, f.sink.records)
}
