/*
coordinator.go - Write-back cache and transaction coordinator

PURPOSE:
  All logic-layer reads and writes go through the Coordinator. It keeps an
  in-memory mirror of the records touched during the active season and
  runs named operations against a set of collections as one unit.

TRANSACTIONS:
  RunTransaction(ctx, collections, mode, flush, fn)
  1. Acquire the collections in sorted order (shared for ReadOnly,
     exclusive for ReadWrite).
  2. Run fn against a staged view: staged writes, then cache, then the
     durable store (misses populate the cache).
  3. fn error: staged writes are dropped. Nothing else changed.
  4. fn success:
     - FlushSync:    Durable.Apply(dirty records of the held collections,
                     then staged), then apply to the cache. A durable
                     failure leaves the cache untouched.
     - FlushBatched: apply to the cache and mark the records dirty.
                     Flush() later writes all dirty records in one Apply.

  Readers never see a partially applied transaction: writers hold the
  exclusive lock of every collection they write until the cache is
  updated.

  A sync commit never reaches the durable store ahead of batched writes
  it read from: records still dirty in its collections go in the same
  Apply.

EVICTION:
  EvictBefore(season) drops clean records of older seasons so the cache
  stays scoped to the current season. Dirty records are never evicted.

CONCURRENCY:
  Each collection has a lock (transaction isolation) and a mutex over its
  entry map, because shared-mode readers still populate the cache on miss.

SEE ALSO:
  - tx.go: The transaction view passed to fn
  - store.go: Durable interface
*/
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Mode is the access mode requested for a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// FlushPolicy decides when committed writes reach the durable store.
type FlushPolicy int

const (
	// FlushSync writes to the durable store before the transaction returns.
	// Used for phase transitions, schedules and aggregates.
	FlushSync FlushPolicy = iota

	// FlushBatched leaves writes dirty in the cache until Flush().
	// Used for frequent writes such as game results.
	FlushBatched
)

// =============================================================================
// CACHE ENTRIES
// =============================================================================

type entry struct {
	rec     Record
	deleted bool // tombstone for a batched delete not yet flushed
	dirty   bool
}

type collectionCache struct {
	lock sync.RWMutex // transaction isolation

	mu      sync.Mutex // guards entries
	entries map[string]*entry
}

func newCollectionCache() *collectionCache {
	return &collectionCache{entries: make(map[string]*entry)}
}

func (cc *collectionCache) lookup(key string) (*entry, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	e, ok := cc.entries[key]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// fill caches a record read from the durable store unless a newer entry
// got there first.
func (cc *collectionCache) fill(rec Record) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if _, ok := cc.entries[rec.Key]; !ok {
		cc.entries[rec.Key] = &entry{rec: rec}
	}
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator is the write-back cache plus transaction coordinator.
type Coordinator struct {
	durable Durable
	log     *logrus.Entry

	mu     sync.Mutex
	caches map[Collection]*collectionCache
}

// NewCoordinator wraps a durable store.
func NewCoordinator(durable Durable, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		durable: durable,
		log:     log.WithField("component", "storage"),
		caches:  make(map[Collection]*collectionCache),
	}
}

// Durable exposes the underlying store, for the retention sweeper.
func (c *Coordinator) Durable() Durable {
	return c.durable
}

func (c *Coordinator) cache(coll Collection) *collectionCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	cc, ok := c.caches[coll]
	if !ok {
		cc = newCollectionCache()
		c.caches[coll] = cc
	}
	return cc
}

// sortedUnique returns the collections deduplicated in lock order.
func sortedUnique(colls []Collection) []Collection {
	seen := make(map[Collection]bool, len(colls))
	out := make([]Collection, 0, len(colls))
	for _, c := range colls {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Coordinator) acquire(colls []Collection, mode Mode) (map[Collection]*collectionCache, func()) {
	held := make(map[Collection]*collectionCache, len(colls))
	order := make([]*collectionCache, 0, len(colls))
	for _, coll := range colls {
		cc := c.cache(coll)
		if mode == ReadWrite {
			cc.lock.Lock()
		} else {
			cc.lock.RLock()
		}
		held[coll] = cc
		order = append(order, cc)
	}
	release := func() {
		for i := len(order) - 1; i >= 0; i-- {
			if mode == ReadWrite {
				order[i].lock.Unlock()
			} else {
				order[i].lock.RUnlock()
			}
		}
	}
	return held, release
}

// RunTransaction executes fn against a consistent view of collections and
// commits its writes atomically when fn returns nil.
func (c *Coordinator) RunTransaction(ctx context.Context, collections []Collection, mode Mode, flush FlushPolicy, fn func(tx *Tx) error) error {
	colls := sortedUnique(collections)
	held, release := c.acquire(colls, mode)
	defer release()

	tx := newTx(ctx, c, mode, held)
	if err := fn(tx); err != nil {
		return err
	}
	if mode == ReadOnly || len(tx.order) == 0 {
		return nil
	}

	muts := tx.mutations()
	if flush == FlushSync {
		pending := dirtyMutations(held, colls)
		if err := c.durable.Apply(ctx, append(pending, muts...)); err != nil {
			c.log.WithError(err).WithField("writes", len(pending)+len(muts)).Warn("transaction rolled back")
			return &StorageError{Op: "commit", Collections: colls, Err: err}
		}
		markFlushed(held, pending)
	}
	c.applyToCache(held, muts, flush == FlushBatched)
	return nil
}

// dirtyMutations lists the dirty records of colls, in key order. The caller
// holds the exclusive lock of every collection.
func dirtyMutations(held map[Collection]*collectionCache, colls []Collection) []Mutation {
	var muts []Mutation
	for _, coll := range colls {
		cc := held[coll]
		cc.mu.Lock()
		keys := make([]string, 0)
		for k, e := range cc.entries {
			if e.dirty {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			e := cc.entries[k]
			op := OpPut
			if e.deleted {
				op = OpDelete
			}
			muts = append(muts, Mutation{Op: op, Record: e.rec})
		}
		cc.mu.Unlock()
	}
	return muts
}

// markFlushed clears the dirty flag of records the durable store now holds.
func markFlushed(held map[Collection]*collectionCache, muts []Mutation) {
	for _, m := range muts {
		cc := held[m.Record.Collection]
		cc.mu.Lock()
		if m.Op == OpDelete {
			delete(cc.entries, m.Record.Key)
		} else if e, ok := cc.entries[m.Record.Key]; ok {
			e.dirty = false
		}
		cc.mu.Unlock()
	}
}

// applyToCache installs committed mutations. The caller holds the exclusive
// lock of every collection in muts.
func (c *Coordinator) applyToCache(held map[Collection]*collectionCache, muts []Mutation, dirty bool) {
	for _, m := range muts {
		cc := held[m.Record.Collection]
		cc.mu.Lock()
		cc.entries[m.Record.Key] = &entry{
			rec:     m.Record,
			deleted: m.Op == OpDelete,
			dirty:   dirty,
		}
		if m.Op == OpDelete && !dirty {
			delete(cc.entries, m.Record.Key)
		}
		cc.mu.Unlock()
	}
}

// Flush writes every dirty record to the durable store in one atomic batch.
// On failure the records stay dirty and the next Flush retries them.
func (c *Coordinator) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	colls := make([]Collection, 0, len(c.caches))
	for coll := range c.caches {
		colls = append(colls, coll)
	}
	c.mu.Unlock()

	colls = sortedUnique(colls)
	held, release := c.acquire(colls, ReadWrite)
	defer release()

	muts := dirtyMutations(held, colls)
	if len(muts) == 0 {
		return 0, nil
	}

	if err := c.durable.Apply(ctx, muts); err != nil {
		c.log.WithError(err).WithField("writes", len(muts)).Warn("flush failed, records stay dirty")
		return 0, &StorageError{Op: "flush", Collections: colls, Err: err}
	}
	markFlushed(held, muts)
	c.log.WithField("writes", len(muts)).Debug("flushed dirty records")
	return len(muts), nil
}

// Dirty reports how many records are waiting for Flush.
func (c *Coordinator) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cc := range c.caches {
		cc.mu.Lock()
		for _, e := range cc.entries {
			if e.dirty {
				n++
			}
		}
		cc.mu.Unlock()
	}
	return n
}

// EvictBefore drops clean cached records of season-scoped collections whose
// season is below season.
func (c *Coordinator) EvictBefore(season int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cc := range c.caches {
		cc.mu.Lock()
		for k, e := range cc.entries {
			if !e.dirty && e.rec.Season != 0 && e.rec.Season < season {
				delete(cc.entries, k)
				n++
			}
		}
		cc.mu.Unlock()
	}
	return n
}

// Forget drops clean cached copies of the given keys. The sweeper calls it
// after deleting records behind the cache's back.
func (c *Coordinator) Forget(coll Collection, keys []string) {
	cc := c.cache(coll)
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for _, k := range keys {
		if e, ok := cc.entries[k]; ok && !e.dirty {
			delete(cc.entries, k)
		}
	}
}

// Purge wipes the durable store with wipe and drops every cached record,
// dirty ones included. Every collection is held exclusively throughout, so
// no transaction can commit old records into the cache or the store in
// between. A wipe error leaves the cache untouched.
func (c *Coordinator) Purge(ctx context.Context, wipe func(ctx context.Context) error) error {
	c.mu.Lock()
	colls := append([]Collection{}, Collections...)
	for coll := range c.caches {
		colls = append(colls, coll)
	}
	c.mu.Unlock()

	colls = sortedUnique(colls)
	held, release := c.acquire(colls, ReadWrite)
	defer release()

	if wipe != nil {
		if err := wipe(ctx); err != nil {
			return &StorageError{Op: "purge", Collections: colls, Err: err}
		}
	}
	for _, cc := range held {
		cc.mu.Lock()
		cc.entries = make(map[string]*entry)
		cc.mu.Unlock()
	}
	c.log.Info("cache purged")
	return nil
}
