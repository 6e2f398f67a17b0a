package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefeed/livefeed/pkg/types"
	"github.com/livefeed/livefeed/server/internal/metrics"
	"github.com/livefeed/livefeed/server/internal/store"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) Broadcast(ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) get() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

func defaultParams() Params {
	return Params{
		TickInterval: time.Second,
		MaxOps:       32,
		MaxOffset:    30 * 24 * time.Hour,
		MaxSentences: 3,
		Weights:      Weights{Insert: 3, Mutate: 1, Delete: 1},
	}
}

func newTestGenerator(t *testing.T, st store.Store, p Params) (*Generator, *recorder, *clockwork.FakeClock, *metrics.GeneratorMetrics) {
	t.Helper()
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(epoch)
	m := metrics.NewGeneratorMetrics(prometheus.NewRegistry())
	g := New(st, rec, p, m, WithClock(clock), WithSeed(11))
	return g, rec, clock, m
}

func count(t *testing.T, st store.Store) int {
	t.Helper()
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestWarmup_InsertsWithoutBroadcast(t *testing.T) {
	st := store.NewMemory(1)
	g, rec, _, m := newTestGenerator(t, st, defaultParams())

	require.NoError(t, g.Warmup(context.Background(), 500))

	assert.Equal(t, 500, count(t, st))
	assert.Empty(t, rec.get())
	assert.Equal(t, 500.0, testutil.ToFloat64(m.Records))

	rows, err := st.Query(context.Background(), store.Range{})
	require.NoError(t, err)
	maxOff := int64(defaultParams().MaxOffset / time.Second)
	for _, r := range rows {
		assert.Less(t, abs(r.Timestamp-epoch.Unix()), maxOff)
	}
}

func TestWarmup_StopsOnCancel(t *testing.T) {
	g, _, _, _ := newTestGenerator(t, store.NewMemory(1), defaultParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, g.Warmup(ctx, 10), context.Canceled)
}

func TestTick_EventsMirrorStoreChanges(t *testing.T) {
	st := store.NewMemory(1)
	g, rec, _, _ := newTestGenerator(t, st, defaultParams())
	require.NoError(t, g.Warmup(context.Background(), 50))

	for i := 0; i < 30; i++ {
		require.NoError(t, g.Tick(context.Background()))
	}

	events := rec.get()
	require.NotEmpty(t, events)

	want := 50
	var lastID int64 = 50
	for _, ev := range events {
		switch ev.Type {
		case types.EventInsert:
			want++
			assert.Greater(t, ev.Record.ID, lastID, "insert ids must increase")
			lastID = ev.Record.ID
		case types.EventDelete:
			want--
		case types.EventMutate:
			assert.Equal(t, ev.Mutation.Old.ID, ev.Mutation.New.ID)
			assert.Equal(t, ev.Mutation.Old.Timestamp, ev.Mutation.New.Timestamp)
		}
	}
	assert.Equal(t, want, count(t, st))
}

func TestTick_BatchSizeBelowMax(t *testing.T) {
	p := defaultParams()
	p.MaxOps = 4
	g, rec, _, _ := newTestGenerator(t, store.NewMemory(1), p)

	for i := 0; i < 50; i++ {
		before := len(rec.get())
		require.NoError(t, g.Tick(context.Background()))
		assert.Less(t, len(rec.get())-before, 4)
	}
}

func TestApply_EmptyStoreEmitsNothing(t *testing.T) {
	st := store.NewMemory(1)
	g, rec, _, m := newTestGenerator(t, st, defaultParams())

	require.NoError(t, g.apply(context.Background(), OpDelete, defaultParams()))
	require.NoError(t, g.apply(context.Background(), OpMutate, defaultParams()))

	assert.Empty(t, rec.get())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmptySkips.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmptySkips.WithLabelValues("mutate")))
}

func TestApply_EventPerOperation(t *testing.T) {
	st := store.NewMemory(1)
	g, rec, _, _ := newTestGenerator(t, st, defaultParams())
	ctx := context.Background()

	require.NoError(t, g.apply(ctx, OpInsert, defaultParams()))
	require.NoError(t, g.apply(ctx, OpMutate, defaultParams()))
	require.NoError(t, g.apply(ctx, OpDelete, defaultParams()))

	events := rec.get()
	require.Len(t, events, 3)
	assert.Equal(t, types.EventInsert, events[0].Type)
	assert.Equal(t, types.EventMutate, events[1].Type)
	assert.Equal(t, types.EventDelete, events[2].Type)
	assert.Equal(t, events[0].Record.ID, events[1].Mutation.Old.ID)
	assert.Equal(t, events[0].Record.ID, events[2].Record.ID)
	assert.Equal(t, 0, count(t, st))
}

func TestPick_FollowsWeights(t *testing.T) {
	g, _, _, _ := newTestGenerator(t, store.NewMemory(1), defaultParams())

	hits := map[Op]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		hits[g.pick(Weights{Insert: 3, Mutate: 1, Delete: 1})]++
	}
	assert.InDelta(t, 6000, hits[OpInsert], 300)
	assert.InDelta(t, 2000, hits[OpMutate], 300)
	assert.InDelta(t, 2000, hits[OpDelete], 300)

	for i := 0; i < 100; i++ {
		assert.Equal(t, OpInsert, g.pick(Weights{Insert: 1}))
	}
}

func TestTimestamp_PastAndFuture(t *testing.T) {
	p := defaultParams()
	p.MaxOffset = time.Hour
	g, _, _, _ := newTestGenerator(t, store.NewMemory(1), p)

	var past, future int
	for i := 0; i < 1000; i++ {
		ts := g.timestamp(p)
		require.Less(t, abs(ts-epoch.Unix()), int64(3600))
		switch {
		case ts > epoch.Unix():
			future++
		case ts < epoch.Unix():
			past++
		}
	}
	assert.Greater(t, past, 300)
	assert.Greater(t, future, 300)
}

func TestBody_RespectsMaxSentences(t *testing.T) {
	p := defaultParams()
	p.MaxSentences = 0
	g, _, _, _ := newTestGenerator(t, store.NewMemory(1), p)

	for i := 0; i < 20; i++ {
		assert.Empty(t, g.body(p))
	}

	p.MaxSentences = 3
	var nonEmpty int
	for i := 0; i < 50; i++ {
		if g.body(p) != "" {
			nonEmpty++
		}
	}
	assert.Greater(t, nonEmpty, 0)
}

func TestRun_TicksOnClock(t *testing.T) {
	g, _, clock, m := newTestGenerator(t, store.NewMemory(1), defaultParams())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// The ticker exists only after the immediate batch has been applied.
	clock.BlockUntil(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks))

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Ticks) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRun_AppliesBatchBeforeFirstTick(t *testing.T) {
	p := defaultParams()
	p.Weights = Weights{Insert: 1}
	p.MaxOps = 1000
	g, rec, _, m := newTestGenerator(t, store.NewMemory(1), p)

	// A twin with the same seed tells how large the first batch is.
	twin, _, _, _ := newTestGenerator(t, store.NewMemory(1), p)
	want := twin.rnd.IntN(p.MaxOps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// The fake clock is never advanced.
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Ticks) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, rec.get(), want)

	cancel()
	assert.NoError(t, <-done)
}

func TestWithSeed_ReproducibleBodies(t *testing.T) {
	p := defaultParams()
	a, _, _, _ := newTestGenerator(t, store.NewMemory(1), p)
	b, _, _, _ := newTestGenerator(t, store.NewMemory(1), p)

	for i := 0; i < 20; i++ {
		require.Equal(t, a.body(p), b.body(p), "body %d", i)
	}
}

func TestSetParams_RestartsTicker(t *testing.T) {
	p := defaultParams()
	p.TickInterval = time.Hour
	g, _, clock, m := newTestGenerator(t, store.NewMemory(1), p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx) //nolint:errcheck
	clock.BlockUntil(1)

	p.TickInterval = 10 * time.Millisecond
	g.SetParams(p)
	assert.Equal(t, 10*time.Millisecond, g.Params().TickInterval)

	assert.Eventually(t, func() bool {
		clock.Advance(10 * time.Millisecond)
		return testutil.ToFloat64(m.Ticks) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

var errBoom = errors.New("disk on fire")

// failingStore fails every delete and mutate.
type failingStore struct {
	store.Store
}

func (f failingStore) MutateRandom(context.Context, string) (types.Mutation, bool, error) {
	return types.Mutation{}, false, errBoom
}

func (f failingStore) DeleteRandom(context.Context) (types.Record, bool, error) {
	return types.Record{}, false, errBoom
}

func TestApply_StoreErrorNamesOperation(t *testing.T) {
	g, rec, _, _ := newTestGenerator(t, failingStore{store.NewMemory(1)}, defaultParams())

	err := g.apply(context.Background(), OpMutate, defaultParams())
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpMutate, opErr.Op)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "mutate")

	err = g.apply(context.Background(), OpDelete, defaultParams())
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpDelete, opErr.Op)
	assert.Empty(t, rec.get())
}

func TestRun_ReturnsStoreError(t *testing.T) {
	p := defaultParams()
	p.Weights = Weights{Mutate: 1}
	g, _, clock, _ := newTestGenerator(t, failingStore{store.NewMemory(1)}, p)

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	// A batch may be empty, so keep ticking until one fails.
	for i := 0; i < 100; i++ {
		clock.Advance(time.Second)
		select {
		case err := <-done:
			assert.ErrorIs(t, err, errBoom)
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("Run did not return the store error")
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
