// Package memory provides an in-memory storage.Durable implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/league-engine/storage"
)

// =============================================================================
// MEMORY STORE - In-memory durable store (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[storage.Collection]map[string]storage.Record

	applies  int
	failNext error
}

func New() *Memory {
	return &Memory{
		records: make(map[storage.Collection]map[string]storage.Record),
	}
}

func (m *Memory) Get(_ context.Context, coll storage.Collection, key string) (storage.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[coll][key]
	if !ok {
		return storage.Record{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (m *Memory) List(_ context.Context, coll storage.Collection) ([]storage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]storage.Record, 0, len(m.records[coll]))
	for _, rec := range m.records[coll] {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Apply writes the batch atomically.
// Simulated with a snapshot of the touched collections + restore on error.
func (m *Memory) Apply(_ context.Context, muts []storage.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applies++
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}

	snap := m.snapshot(muts)
	for _, mut := range muts {
		if err := m.applyLocked(mut); err != nil {
			m.restore(snap)
			return err
		}
	}
	return nil
}

func (m *Memory) applyLocked(mut storage.Mutation) error {
	coll := mut.Record.Collection
	if mut.Record.Key == "" {
		return fmt.Errorf("%s: empty key", coll)
	}
	if mut.Op == storage.OpDelete {
		delete(m.records[coll], mut.Record.Key)
		return nil
	}
	if m.records[coll] == nil {
		m.records[coll] = make(map[string]storage.Record)
	}
	m.records[coll][mut.Record.Key] = copyRecord(mut.Record)
	return nil
}

func (m *Memory) SeasonKeys(_ context.Context, coll storage.Collection, maxSeason int, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type indexed struct {
		season int
		key    string
	}
	var hits []indexed
	for k, rec := range m.records[coll] {
		if rec.Season <= maxSeason {
			hits = append(hits, indexed{rec.Season, k})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].season != hits[j].season {
			return hits[i].season < hits[j].season
		}
		return hits[i].key < hits[j].key
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = h.key
	}
	return keys, nil
}

// =============================================================================
// TEST HOOKS
// =============================================================================

// FailNextApply makes the next Apply return err without writing anything.
func (m *Memory) FailNextApply(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Applies counts Apply calls, including failed ones.
func (m *Memory) Applies() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applies
}

// Len returns the number of records in coll.
func (m *Memory) Len(coll storage.Collection) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[coll])
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

type memorySnapshot map[storage.Collection]map[string]storage.Record

func (m *Memory) snapshot(muts []storage.Mutation) memorySnapshot {
	snap := make(memorySnapshot)
	for _, mut := range muts {
		coll := mut.Record.Collection
		if _, ok := snap[coll]; ok {
			continue
		}
		cp := make(map[string]storage.Record, len(m.records[coll]))
		for k, v := range m.records[coll] {
			cp[k] = v
		}
		snap[coll] = cp
	}
	return snap
}

func (m *Memory) restore(s memorySnapshot) {
	for coll, recs := range s {
		m.records[coll] = recs
	}
}

func copyRecord(r storage.Record) storage.Record {
	r.Data = append([]byte(nil), r.Data...)
	return r
}
