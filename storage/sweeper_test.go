package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/league-engine/storage"
	"github.com/warp/league-engine/storage/memory"
)

func seedGames(t *testing.T, durable *memory.Memory, seasons []int, perSeason int) {
	t.Helper()
	for _, season := range seasons {
		for i := 0; i < perSeason; i++ {
			seed(t, durable, storage.Games, fmt.Sprintf("%d-%03d", season, i), season, map[string]int{"season": season})
		}
	}
}

func seasonsLeft(t *testing.T, durable *memory.Memory) map[int]int {
	t.Helper()
	recs, err := durable.List(context.Background(), storage.Games)
	require.NoError(t, err)
	out := map[int]int{}
	for _, r := range recs {
		out[r.Season]++
	}
	return out
}

func TestSweeper_DeletesStalePrefixOnly(t *testing.T) {
	// GIVEN: Games for seasons 1..5, current season 5, horizon 2
	// WHEN: Sweeping with cutoff 5-2-1 = 2
	// THEN: Seasons 1,2 are gone and 3,4,5 remain; a second run is a no-op
	c, durable := newTestCoordinator(t)
	seedGames(t, durable, []int{1, 2, 3, 4, 5}, 4)

	sweeper := storage.NewSweeper(c, nil)
	sweeper.BatchSize = 3

	deleted, err := sweeper.Sweep(context.Background(), storage.Games, 2)
	require.NoError(t, err)
	assert.Equal(t, 8, deleted)
	assert.Equal(t, map[int]int{3: 4, 4: 4, 5: 4}, seasonsLeft(t, durable))

	deleted, err = sweeper.Sweep(context.Background(), storage.Games, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, map[int]int{3: 4, 4: 4, 5: 4}, seasonsLeft(t, durable))
}

func TestSweeper_ResumesAfterInterruption(t *testing.T) {
	c, durable := newTestCoordinator(t)
	seedGames(t, durable, []int{1, 2, 3}, 5)

	sweeper := storage.NewSweeper(c, nil)
	sweeper.BatchSize = 2

	// First page succeeds, second page fails mid-sweep.
	calls := 0
	sweeper.Durable = &failingDurable{Durable: durable, failOn: 2, calls: &calls}
	deleted, err := sweeper.Sweep(context.Background(), storage.Games, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorageFailure)
	assert.Equal(t, 2, deleted)

	sweeper.Durable = durable
	deleted, err = sweeper.Sweep(context.Background(), storage.Games, 2)
	require.NoError(t, err)
	assert.Equal(t, 8, deleted)
	assert.Equal(t, map[int]int{3: 5}, seasonsLeft(t, durable))
}

func TestSweeper_ForgetsCachedCopies(t *testing.T) {
	c, durable := newTestCoordinator(t)
	seedGames(t, durable, []int{1}, 1)
	ctx := context.Background()

	read := func() bool {
		var found bool
		err := c.RunTransaction(ctx, []storage.Collection{storage.Games}, storage.ReadOnly, storage.FlushSync,
			func(tx *storage.Tx) error {
				var err error
				_, found, err = tx.Get(storage.Games, "1-000")
				return err
			})
		require.NoError(t, err)
		return found
	}
	require.True(t, read())

	_, err := storage.NewSweeper(c, nil).Sweep(ctx, storage.Games, 1)
	require.NoError(t, err)
	assert.False(t, read())
}

func TestSweeper_StopsOnCanceledContext(t *testing.T) {
	c, durable := newTestCoordinator(t)
	seedGames(t, durable, []int{1}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deleted, err := storage.NewSweeper(c, nil).Sweep(ctx, storage.Games, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, deleted)
}

type failingDurable struct {
	storage.Durable
	failOn int
	calls  *int
}

func (f *failingDurable) Apply(ctx context.Context, muts []storage.Mutation) error {
	*f.calls++
	if *f.calls == f.failOn {
		return errors.New("interrupted")
	}
	return f.Durable.Apply(ctx, muts)
}
