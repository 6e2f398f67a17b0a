package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-loremipsum/loremipsum"
	"github.com/jonboulle/clockwork"

	"github.com/livefeed/livefeed/pkg/types"
	"github.com/livefeed/livefeed/server/internal/metrics"
	"github.com/livefeed/livefeed/server/internal/store"
)

// Op is one kind of generated mutation.
type Op string

const (
	OpInsert Op = "insert"
	OpMutate Op = "mutate"
	OpDelete Op = "delete"

	opCount Op = "count"
)

// Broadcaster receives every applied mutation.
type Broadcaster interface {
	Broadcast(ev types.Event)
}

// OpError reports a store failure during a generated operation.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("generator: %s: %v", e.Op, e.Err) }
func (e *OpError) Unwrap() error { return e.Err }

// Generator applies random mutations to a store.
type Generator struct {
	store   store.Store
	out     Broadcaster
	clock   clockwork.Clock
	metrics *metrics.GeneratorMetrics

	// Only the goroutine running Warmup/Tick touches rnd and lorem.
	rnd   *rand.Rand
	lorem *loremipsum.LoremIpsum

	mu      sync.Mutex
	params  Params
	changed chan struct{} // signals Run to pick up a new tick interval
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithSeed makes operation choice, timestamps and body text reproducible.
// Zero keeps a random seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		if seed != 0 {
			g.rnd = rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
			g.lorem = loremipsum.NewWithSeed(seed)
		}
	}
}

// New creates a Generator that mutates st and publishes to out.
// m must not be nil.
func New(st store.Store, out Broadcaster, p Params, m *metrics.GeneratorMetrics, opts ...Option) *Generator {
	g := &Generator{
		store:   st,
		out:     out,
		clock:   clockwork.NewRealClock(),
		metrics: m,
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		lorem:   loremipsum.New(),
		params:  p,
		changed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Params returns the parameters currently in effect.
func (g *Generator) Params() Params {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params
}

// SetParams replaces the workload parameters. Batch size, weights and
// synthesis ranges apply from the next tick; a new interval restarts the
// ticker.
func (g *Generator) SetParams(p Params) {
	g.mu.Lock()
	prev := g.params
	g.params = p
	g.mu.Unlock()

	if p.TickInterval != prev.TickInterval {
		select {
		case g.changed <- struct{}{}:
		default:
		}
	}
	slog.Info("generator: parameters updated",
		"tick_interval", p.TickInterval,
		"max_ops", p.MaxOps,
		"weights", fmt.Sprintf("%d:%d:%d", p.Weights.Insert, p.Weights.Mutate, p.Weights.Delete),
	)
}

// Warmup inserts n records without broadcasting them. It is meant to run
// before any subscriber can connect.
func (g *Generator) Warmup(ctx context.Context, n int) error {
	slog.Info("generator: populating initial dataset", "count", n)
	start := g.clock.Now()

	p := g.Params()
	for i := 0; i < n; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := g.store.Insert(ctx, g.timestamp(p), g.body(p)); err != nil {
			return &OpError{Op: OpInsert, Err: err}
		}
	}
	g.metrics.Operations.WithLabelValues(string(OpInsert)).Add(float64(n))
	if err := g.updateRecords(ctx); err != nil {
		return err
	}

	slog.Info("generator: initial dataset ready", "count", n, "took", g.clock.Since(start))
	return nil
}

// Run applies one batch straight away, then one on every tick until ctx is
// cancelled. It returns nil on cancellation and the store error if a batch
// fails.
func (g *Generator) Run(ctx context.Context) error {
	if err := g.Tick(ctx); err != nil {
		return err
	}

	ticker := g.clock.NewTicker(g.Params().TickInterval)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.changed:
			ticker.Stop()
			ticker = g.clock.NewTicker(g.Params().TickInterval)
		case <-ticker.Chan():
			if err := g.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick applies one batch of random operations. Each applied mutation is
// broadcast before the next one starts.
func (g *Generator) Tick(ctx context.Context) error {
	start := g.clock.Now()
	p := g.Params()

	n := g.rnd.IntN(p.MaxOps)
	slog.Debug("generator: updating records", "ops", n)

	for i := 0; i < n; i++ {
		if err := g.apply(ctx, g.pick(p.Weights), p); err != nil {
			return err
		}
	}

	g.metrics.Ticks.Inc()
	g.metrics.TickDuration.Observe(g.clock.Since(start).Seconds())
	return g.updateRecords(ctx)
}

// apply performs op against the store and broadcasts the result.
// Delete and mutate on an empty store are skipped without an event.
func (g *Generator) apply(ctx context.Context, op Op, p Params) error {
	var ev types.Event

	switch op {
	case OpInsert:
		rec, err := g.store.Insert(ctx, g.timestamp(p), g.body(p))
		if err != nil {
			return &OpError{Op: op, Err: err}
		}
		ev = types.InsertEvent(rec)

	case OpDelete:
		rec, ok, err := g.store.DeleteRandom(ctx)
		if err != nil {
			return &OpError{Op: op, Err: err}
		}
		if !ok {
			g.metrics.EmptySkips.WithLabelValues(string(op)).Inc()
			return nil
		}
		ev = types.DeleteEvent(rec)

	case OpMutate:
		m, ok, err := g.store.MutateRandom(ctx, g.body(p))
		if err != nil {
			return &OpError{Op: op, Err: err}
		}
		if !ok {
			g.metrics.EmptySkips.WithLabelValues(string(op)).Inc()
			return nil
		}
		ev = types.MutateEvent(m)

	default:
		return fmt.Errorf("generator: unknown op %q", op)
	}

	g.metrics.Operations.WithLabelValues(string(op)).Inc()
	g.out.Broadcast(ev)
	return nil
}

// pick draws an operation with probability proportional to its weight.
func (g *Generator) pick(w Weights) Op {
	r := g.rnd.IntN(w.total())
	switch {
	case r < w.Insert:
		return OpInsert
	case r < w.Insert+w.Mutate:
		return OpMutate
	default:
		return OpDelete
	}
}

// timestamp returns now shifted forwards or backwards, with equal odds, by
// up to p.MaxOffset.
func (g *Generator) timestamp(p Params) int64 {
	ts := g.clock.Now().Unix()
	off := g.rnd.Int64N(int64(p.MaxOffset / time.Second))
	if g.rnd.IntN(2) == 0 {
		return ts + off
	}
	return ts - off
}

// body returns between 0 and p.MaxSentences sentences of filler text.
func (g *Generator) body(p Params) string {
	n := g.rnd.IntN(p.MaxSentences + 1)
	if n == 0 {
		return ""
	}
	return g.lorem.Sentences(n)
}

func (g *Generator) updateRecords(ctx context.Context) error {
	n, err := g.store.Count(ctx)
	if err != nil {
		return &OpError{Op: opCount, Err: err}
	}
	g.metrics.Records.Set(float64(n))
	return nil
}
