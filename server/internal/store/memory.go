package store

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/livefeed/livefeed/pkg/types"
)

// Memory is a thread-safe in-memory Store.
//
// Records live in a dense slice so a uniform pick is a single random index;
// deletion swaps the last element into the hole and fixes up the index.
type Memory struct {
	mu     sync.RWMutex
	rows   []types.Record
	index  map[int64]int // id -> position in rows
	nextID int64
	rnd    *rand.Rand // guarded by mu (write lock)
}

// NewMemory creates an empty Memory store.
func NewMemory(seed int64) *Memory {
	return &Memory{
		index:  make(map[int64]int),
		nextID: 1,
		rnd:    newRand(seed),
	}
}

func (m *Memory) Insert(_ context.Context, timestamp int64, body string) (types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := types.Record{ID: m.nextID, Timestamp: timestamp, Body: body}
	m.nextID++
	m.index[rec.ID] = len(m.rows)
	m.rows = append(m.rows, rec)
	return rec, nil
}

func (m *Memory) DeleteRandom(_ context.Context) (types.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rows) == 0 {
		return types.Record{}, false, nil
	}

	i := m.rnd.IntN(len(m.rows))
	rec := m.rows[i]

	last := len(m.rows) - 1
	if i != last {
		m.rows[i] = m.rows[last]
		m.index[m.rows[i].ID] = i
	}
	m.rows = m.rows[:last]
	delete(m.index, rec.ID)

	return rec, true, nil
}

func (m *Memory) MutateRandom(_ context.Context, body string) (types.Mutation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rows) == 0 {
		return types.Mutation{}, false, nil
	}

	i := m.rnd.IntN(len(m.rows))
	old := m.rows[i]
	m.rows[i].Body = body
	return types.Mutation{Old: old, New: m.rows[i]}, true, nil
}

func (m *Memory) Query(_ context.Context, r Range) ([]types.Record, error) {
	m.mu.RLock()
	out := make([]types.Record, 0, len(m.rows))
	for _, rec := range m.rows {
		if r.Contains(rec.Timestamp) {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows), nil
}

// Close is a no-op; the records are dropped with the store.
func (m *Memory) Close() error { return nil }

// sortRecords orders rows by timestamp, breaking ties by id.
func sortRecords(rows []types.Record) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].ID < rows[j].ID
	})
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}
