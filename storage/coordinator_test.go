package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/league-engine/storage"
	"github.com/warp/league-engine/storage/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type aggregate struct {
	Season int `json:"season"`
	Games  int `json:"games"`
}

func newTestCoordinator(t *testing.T) (*storage.Coordinator, *memory.Memory) {
	t.Helper()
	durable := memory.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return storage.NewCoordinator(durable, logrus.NewEntry(log)), durable
}

func seed(t *testing.T, durable *memory.Memory, coll storage.Collection, key string, season int, v any) {
	t.Helper()
	rec, err := storage.Encode(coll, key, season, v)
	require.NoError(t, err)
	require.NoError(t, durable.Apply(context.Background(), []storage.Mutation{{Op: storage.OpPut, Record: rec}}))
}

func readAggregate(t *testing.T, c *storage.Coordinator, season int) (aggregate, bool) {
	t.Helper()
	var (
		agg   aggregate
		found bool
	)
	err := c.RunTransaction(context.Background(), []storage.Collection{storage.SeasonAggregates}, storage.ReadOnly, storage.FlushSync,
		func(tx *storage.Tx) error {
			var err error
			agg, found, err = storage.GetJSON[aggregate](tx, storage.SeasonAggregates, storage.SeasonKey(season))
			return err
		})
	require.NoError(t, err)
	return agg, found
}

// =============================================================================
// READ-THROUGH
// =============================================================================

func TestCoordinator_ReadThroughPopulatesCache(t *testing.T) {
	c, durable := newTestCoordinator(t)
	seed(t, durable, storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025, Games: 3})

	agg, found := readAggregate(t, c, 2025)
	require.True(t, found)
	assert.Equal(t, 3, agg.Games)

	// Durable copy changes behind the cache's back; the cache keeps serving
	// its copy until evicted.
	seed(t, durable, storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025, Games: 9})
	agg, _ = readAggregate(t, c, 2025)
	assert.Equal(t, 3, agg.Games)

	assert.Equal(t, 1, c.EvictBefore(2026))
	agg, _ = readAggregate(t, c, 2025)
	assert.Equal(t, 9, agg.Games)
}

// =============================================================================
// COMMIT / ROLLBACK
// =============================================================================

func TestCoordinator_BodyErrorDiscardsWrites(t *testing.T) {
	c, durable := newTestCoordinator(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := c.RunTransaction(ctx, []storage.Collection{storage.SeasonAggregates}, storage.ReadWrite, storage.FlushSync,
		func(tx *storage.Tx) error {
			require.NoError(t, storage.PutJSON(tx, storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025}))
			return boom
		})
	assert.ErrorIs(t, err, boom)

	_, found := readAggregate(t, c, 2025)
	assert.False(t, found)
	assert.Equal(t, 0, durable.Applies())
}

func TestCoordinator_SyncFlushFailureRollsBack(t *testing.T) {
	// GIVEN: A cached aggregate
	// WHEN: A sync transaction updates it and the durable write fails
	// THEN: StorageFailure is returned and the cache still holds the old value
	c, durable := newTestCoordinator(t)
	ctx := context.Background()
	seed(t, durable, storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025, Games: 1})
	readAggregate(t, c, 2025)

	durable.FailNextApply(errors.New("disk full"))
	err := c.RunTransaction(ctx, []storage.Collection{storage.SeasonAggregates}, storage.ReadWrite, storage.FlushSync,
		func(tx *storage.Tx) error {
			return storage.PutJSON(tx, storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025, Games: 2})
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorageFailure)
	var se *storage.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "commit", se.Op)

	agg, _ := readAggregate(t, c, 2025)
	assert.Equal(t, 1, agg.Games)

	// Retry succeeds
	err = c.RunTransaction(ctx, []storage.Collection{storage.SeasonAggregates}, storage.ReadWrite, storage.FlushSync,
		func(tx *storage.Tx) error {
			return storage.PutJSON(tx, storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025, Games: 2})
		})
	require.NoError(t, err)
	rec, _, err := durable.Get(ctx, storage.SeasonAggregates, "2025")
	require.NoError(t, err)
	assert.JSONEq(t, `{"season":2025,"games":2}`, string(rec.Data))
}

func TestCoordinator_BatchedWritesVisibleBeforeFlush(t *testing.T) {
	c, durable := newTestCoordinator(t)
	ctx := context.Background()

	err := c.RunTransaction(ctx, []storage.Collection{storage.Games}, storage.ReadWrite, storage.FlushBatched,
		func(tx *storage.Tx) error {
			return storage.PutJSON(tx, storage.Games, "g1", 2025, map[string]int{"pts": 100})
		})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Dirty())
	assert.Equal(t, 0, durable.Len(storage.Games))

	err = c.RunTransaction(ctx, []storage.Collection{storage.Games}, storage.ReadOnly, storage.FlushSync,
		func(tx *storage.Tx) error {
			recs, err := tx.List(storage.Games)
			require.NoError(t, err)
			assert.Len(t, recs, 1)
			return nil
		})
	require.NoError(t, err)

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, c.Dirty())
	assert.Equal(t, 1, durable.Len(storage.Games))
}

func TestCoordinator_FlushFailureKeepsRecordsDirty(t *testing.T) {
	c, durable := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		gid := fmt.Sprintf("g%d", i)
		err := c.RunTransaction(ctx, []storage.Collection{storage.Games}, storage.ReadWrite, storage.FlushBatched,
			func(tx *storage.Tx) error {
				return storage.PutJSON(tx, storage.Games, gid, 2025, map[string]string{"gid": gid})
			})
		require.NoError(t, err)
	}

	durable.FailNextApply(errors.New("io error"))
	_, err := c.Flush(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageFailure)
	assert.Equal(t, 3, c.Dirty())
	assert.Equal(t, 0, durable.Len(storage.Games))

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, durable.Len(storage.Games))
}

func TestCoordinator_BatchedDeleteHidesRecord(t *testing.T) {
	c, durable := newTestCoordinator(t)
	ctx := context.Background()
	seed(t, durable, storage.Meta, "nagged", 0, 1)

	err := c.RunTransaction(ctx, []storage.Collection{storage.Meta}, storage.ReadWrite, storage.FlushBatched,
		func(tx *storage.Tx) error { return tx.Delete(storage.Meta, "nagged") })
	require.NoError(t, err)

	err = c.RunTransaction(ctx, []storage.Collection{storage.Meta}, storage.ReadOnly, storage.FlushSync,
		func(tx *storage.Tx) error {
			_, found, err := tx.Get(storage.Meta, "nagged")
			assert.False(t, found)
			recs, lerr := tx.List(storage.Meta)
			assert.Empty(t, recs)
			return errors.Join(err, lerr)
		})
	require.NoError(t, err)

	_, err = c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, durable.Len(storage.Meta))
}

// =============================================================================
// ACCESS RULES
// =============================================================================

func TestCoordinator_ReadOnlyRejectsWrites(t *testing.T) {
	c, _ := newTestCoordinator(t)

	err := c.RunTransaction(context.Background(), []storage.Collection{storage.Meta}, storage.ReadOnly, storage.FlushSync,
		func(tx *storage.Tx) error {
			return storage.PutJSON(tx, storage.Meta, "x", 0, 1)
		})
	assert.ErrorIs(t, err, storage.ErrReadOnly)
}

func TestCoordinator_UnheldCollectionRejected(t *testing.T) {
	c, _ := newTestCoordinator(t)

	err := c.RunTransaction(context.Background(), []storage.Collection{storage.Meta}, storage.ReadWrite, storage.FlushSync,
		func(tx *storage.Tx) error {
			_, _, err := tx.Get(storage.Games, "g1")
			return err
		})
	assert.ErrorIs(t, err, storage.ErrCollectionNotHeld)
	var ce *storage.CollectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, storage.Games, ce.Collection)
}

// =============================================================================
// CREATE IF ABSENT
// =============================================================================

func TestCoordinator_CreateIfAbsentUnderRace(t *testing.T) {
	// GIVEN: N goroutines racing to create the same season aggregate
	// THEN: Exactly one creates it; the rest observe it
	c, durable := newTestCoordinator(t)
	ctx := context.Background()

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := c.RunTransaction(ctx, []storage.Collection{storage.SeasonAggregates}, storage.ReadWrite, storage.FlushSync,
				func(tx *storage.Tx) error {
					rec, err := storage.Encode(storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025, Games: i})
					if err != nil {
						return err
					}
					ok, err := tx.CreateIfAbsent(rec)
					if ok {
						mu.Lock()
						created++
						mu.Unlock()
					}
					return err
				})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, durable.Len(storage.SeasonAggregates))
	assert.Equal(t, 1, durable.Applies())
}

func TestCoordinator_CreateIfAbsentSeesStagedWrite(t *testing.T) {
	c, _ := newTestCoordinator(t)

	err := c.RunTransaction(context.Background(), []storage.Collection{storage.SeasonAggregates}, storage.ReadWrite, storage.FlushSync,
		func(tx *storage.Tx) error {
			rec, _ := storage.Encode(storage.SeasonAggregates, "2025", 2025, aggregate{Season: 2025})
			ok, err := tx.CreateIfAbsent(rec)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = tx.CreateIfAbsent(rec)
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
	require.NoError(t, err)
}

// =============================================================================
// SYNC COMMITS OVER BATCHED WRITES
// =============================================================================

func putBatchedGame(t *testing.T, c *storage.Coordinator, gid string) {
	t.Helper()
	err := c.RunTransaction(context.Background(), []storage.Collection{storage.Games}, storage.ReadWrite, storage.FlushBatched,
		func(tx *storage.Tx) error {
			return storage.PutJSON(tx, storage.Games, gid, 2025, map[string]string{"gid": gid})
		})
	require.NoError(t, err)
}

func putSyncSchedule(c *storage.Coordinator, colls []storage.Collection) error {
	return c.RunTransaction(context.Background(), colls, storage.ReadWrite, storage.FlushSync,
		func(tx *storage.Tx) error {
			return storage.PutJSON(tx, storage.Schedules, "2025", 2025, map[string]int{"played": 1})
		})
}

func TestCoordinator_SyncCommitCarriesBatchedWrites(t *testing.T) {
	// GIVEN: A game result still dirty in the cache
	c, durable := newTestCoordinator(t)
	putBatchedGame(t, c, "g1")
	before := durable.Applies()

	// WHEN: A sync commit holding games writes a record derived from it
	err := putSyncSchedule(c, []storage.Collection{storage.Games, storage.Schedules})
	require.NoError(t, err)

	// THEN: Both reach the durable store in the same atomic batch
	assert.Equal(t, before+1, durable.Applies())
	assert.Equal(t, 1, durable.Len(storage.Games))
	assert.Equal(t, 1, durable.Len(storage.Schedules))
	assert.Equal(t, 0, c.Dirty())
}

func TestCoordinator_SyncCommitFailureKeepsBatchedWritesDirty(t *testing.T) {
	c, durable := newTestCoordinator(t)
	putBatchedGame(t, c, "g1")

	durable.FailNextApply(errors.New("disk full"))
	err := putSyncSchedule(c, []storage.Collection{storage.Games, storage.Schedules})

	assert.ErrorIs(t, err, storage.ErrStorageFailure)
	assert.Equal(t, 1, c.Dirty())
	assert.Equal(t, 0, durable.Len(storage.Games))
	assert.Equal(t, 0, durable.Len(storage.Schedules))

	n, err := c.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCoordinator_SyncCommitLeavesUnheldCollectionsBatched(t *testing.T) {
	c, durable := newTestCoordinator(t)
	putBatchedGame(t, c, "g1")

	require.NoError(t, putSyncSchedule(c, []storage.Collection{storage.Schedules}))

	assert.Equal(t, 1, c.Dirty())
	assert.Equal(t, 0, durable.Len(storage.Games))
}

// =============================================================================
// PURGE
// =============================================================================

func TestCoordinator_PurgeDropsDirtyRecords(t *testing.T) {
	c, durable := newTestCoordinator(t)
	ctx := context.Background()
	putBatchedGame(t, c, "g1")
	seed(t, durable, storage.Teams, "0", 0, map[string]int{"tid": 0})
	require.Equal(t, 1, c.Dirty())

	wiped := false
	err := c.Purge(ctx, func(context.Context) error {
		wiped = true
		return nil
	})
	require.NoError(t, err)

	assert.True(t, wiped)
	assert.Equal(t, 0, c.Dirty())
	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, durable.Len(storage.Games))
}

func TestCoordinator_PurgeWipeFailureKeepsCache(t *testing.T) {
	c, _ := newTestCoordinator(t)
	putBatchedGame(t, c, "g1")

	err := c.Purge(context.Background(), func(context.Context) error { return errors.New("locked") })

	assert.ErrorIs(t, err, storage.ErrStorageFailure)
	assert.Equal(t, 1, c.Dirty())
}

func TestCoordinator_PurgeWaitsForRunningTransaction(t *testing.T) {
	// GIVEN: A transaction in progress on games
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	inside := make(chan struct{})
	proceed := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- c.RunTransaction(ctx, []storage.Collection{storage.Games}, storage.ReadWrite, storage.FlushBatched,
			func(tx *storage.Tx) error {
				close(inside)
				<-proceed
				return storage.PutJSON(tx, storage.Games, "old", 2025, map[string]string{"gid": "old"})
			})
	}()
	<-inside

	// WHEN: Purging while it runs
	purged := make(chan error, 1)
	go func() { purged <- c.Purge(ctx, nil) }()

	select {
	case <-purged:
		t.Fatal("purge finished while a transaction held games")
	case <-time.After(20 * time.Millisecond):
	}
	close(proceed)
	require.NoError(t, <-txDone)
	require.NoError(t, <-purged)

	// THEN: The transaction's write did not survive the purge
	assert.Equal(t, 0, c.Dirty())
}
