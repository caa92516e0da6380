package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

type stagedKey struct {
	coll Collection
	key  string
}

// Tx is the view handed to a transaction body. It is only valid inside
// RunTransaction and must not be shared across goroutines.
type Tx struct {
	ctx    context.Context
	c      *Coordinator
	mode   Mode
	held   map[Collection]*collectionCache
	staged map[stagedKey]Mutation
	order  []stagedKey
}

func newTx(ctx context.Context, c *Coordinator, mode Mode, held map[Collection]*collectionCache) *Tx {
	return &Tx{
		ctx:    ctx,
		c:      c,
		mode:   mode,
		held:   held,
		staged: make(map[stagedKey]Mutation),
	}
}

// Context returns the context the transaction was started with.
func (tx *Tx) Context() context.Context { return tx.ctx }

func (tx *Tx) collection(coll Collection) (*collectionCache, error) {
	cc, ok := tx.held[coll]
	if !ok {
		return nil, &CollectionError{Collection: coll, Err: ErrCollectionNotHeld}
	}
	return cc, nil
}

func (tx *Tx) writable(coll Collection) error {
	if _, err := tx.collection(coll); err != nil {
		return err
	}
	if tx.mode != ReadWrite {
		return &CollectionError{Collection: coll, Err: ErrReadOnly}
	}
	return nil
}

// Get reads staged writes first, then the cache, then the durable store.
func (tx *Tx) Get(coll Collection, key string) (Record, bool, error) {
	cc, err := tx.collection(coll)
	if err != nil {
		return Record{}, false, err
	}
	if m, ok := tx.staged[stagedKey{coll, key}]; ok {
		return m.Record, m.Op == OpPut, nil
	}
	if e, ok := cc.lookup(key); ok {
		return e.rec, !e.deleted, nil
	}

	rec, found, err := tx.c.durable.Get(tx.ctx, coll, key)
	if err != nil {
		return Record{}, false, &StorageError{Op: "get", Collections: []Collection{coll}, Err: err}
	}
	if found {
		cc.fill(rec)
	}
	return rec, found, nil
}

// List returns every live record of coll, ordered by key, as seen by this
// transaction.
func (tx *Tx) List(coll Collection) ([]Record, error) {
	cc, err := tx.collection(coll)
	if err != nil {
		return nil, err
	}

	durable, err := tx.c.durable.List(tx.ctx, coll)
	if err != nil {
		return nil, &StorageError{Op: "list", Collections: []Collection{coll}, Err: err}
	}

	view := make(map[string]Record, len(durable))
	for _, rec := range durable {
		view[rec.Key] = rec
		cc.fill(rec)
	}

	cc.mu.Lock()
	for k, e := range cc.entries {
		if !e.dirty {
			continue
		}
		if e.deleted {
			delete(view, k)
		} else {
			view[k] = e.rec
		}
	}
	cc.mu.Unlock()

	for _, sk := range tx.order {
		if sk.coll != coll {
			continue
		}
		m := tx.staged[sk]
		if m.Op == OpDelete {
			delete(view, sk.key)
		} else {
			view[sk.key] = m.Record
		}
	}

	out := make([]Record, 0, len(view))
	for _, rec := range view {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (tx *Tx) stage(m Mutation) {
	sk := stagedKey{m.Record.Collection, m.Record.Key}
	if _, ok := tx.staged[sk]; !ok {
		tx.order = append(tx.order, sk)
	}
	tx.staged[sk] = m
}

// Put stages a write of rec.
func (tx *Tx) Put(rec Record) error {
	if err := tx.writable(rec.Collection); err != nil {
		return err
	}
	tx.stage(Mutation{Op: OpPut, Record: rec})
	return nil
}

// Delete stages removal of a key. Deleting a missing key is a no-op at
// commit time.
func (tx *Tx) Delete(coll Collection, key string) error {
	if err := tx.writable(coll); err != nil {
		return err
	}
	tx.stage(Mutation{Op: OpDelete, Record: Record{Collection: coll, Key: key}})
	return nil
}

// CreateIfAbsent stages rec only when its key does not exist yet. Because a
// read-write transaction holds the collection exclusively, concurrent
// callers for the same key create exactly one record.
func (tx *Tx) CreateIfAbsent(rec Record) (bool, error) {
	if err := tx.writable(rec.Collection); err != nil {
		return false, err
	}
	_, found, err := tx.Get(rec.Collection, rec.Key)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	tx.stage(Mutation{Op: OpPut, Record: rec})
	return true, nil
}

func (tx *Tx) mutations() []Mutation {
	out := make([]Mutation, 0, len(tx.order))
	for _, sk := range tx.order {
		out = append(out, tx.staged[sk])
	}
	return out
}

// =============================================================================
// TYPED HELPERS
// =============================================================================

// Encode builds a record holding the JSON encoding of v.
func Encode(coll Collection, key string, season int, v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s[%s]: %w", coll, key, err)
	}
	return Record{Collection: coll, Key: key, Season: season, Data: data}, nil
}

// Decode unmarshals a record into T.
func Decode[T any](rec Record) (T, error) {
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s[%s]: %w", rec.Collection, rec.Key, err)
	}
	return v, nil
}

// GetJSON reads and decodes one record.
func GetJSON[T any](tx *Tx, coll Collection, key string) (T, bool, error) {
	var zero T
	rec, found, err := tx.Get(coll, key)
	if err != nil || !found {
		return zero, false, err
	}
	v, err := Decode[T](rec)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// PutJSON encodes v and stages it.
func PutJSON(tx *Tx, coll Collection, key string, season int, v any) error {
	rec, err := Encode(coll, key, season, v)
	if err != nil {
		return err
	}
	return tx.Put(rec)
}

// ListJSON decodes every record of a collection.
func ListJSON[T any](tx *Tx, coll Collection) ([]T, error) {
	recs, err := tx.List(coll)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
