/*
sweeper.go - Retention sweeper for season-indexed collections

PURPOSE:
  Deletes records whose season is at or below a cutoff, walking the
  ordered season index from the lowest season upward.

BOUNDED MEMORY:
  Keys are fetched one page (BatchSize) at a time and each page is deleted
  in its own atomic Apply. The index is sorted, so the range bound stops
  the walk at the first record past the cutoff.

RESUMABLE:
  Every run re-scans from the start of the index. A run interrupted
  between pages leaves only fully deleted pages behind, and deleting an
  already deleted key is a no-op, so the next run simply finishes the job.

CACHE:
  The sweeper talks to the durable store directly. It only touches seasons
  older than the retention horizon, which never receive writes, and it
  tells the Coordinator to forget any clean copies it still holds.
*/
package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultSweepBatch is the page size used when Sweeper.BatchSize is zero.
const DefaultSweepBatch = 500

// Sweeper removes stale season-scoped records.
type Sweeper struct {
	Durable   Durable
	Cache     *Coordinator // optional
	BatchSize int
	Log       *logrus.Entry
}

// NewSweeper builds a sweeper over the coordinator's durable store.
func NewSweeper(c *Coordinator, log *logrus.Entry) *Sweeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		Durable:   c.Durable(),
		Cache:     c,
		BatchSize: DefaultSweepBatch,
		Log:       log.WithField("component", "sweeper"),
	}
}

// Sweep deletes every record of coll with season <= cutoff and returns how
// many keys it deleted.
func (s *Sweeper) Sweep(ctx context.Context, coll Collection, cutoff int) (int, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultSweepBatch
	}

	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		keys, err := s.Durable.SeasonKeys(ctx, coll, cutoff, batch)
		if err != nil {
			return deleted, fmt.Errorf("scan %s up to season %d: %w", coll, cutoff, err)
		}
		if len(keys) == 0 {
			break
		}

		muts := make([]Mutation, len(keys))
		for i, k := range keys {
			muts[i] = Mutation{Op: OpDelete, Record: Record{Collection: coll, Key: k}}
		}
		if err := s.Durable.Apply(ctx, muts); err != nil {
			return deleted, &StorageError{Op: "sweep", Collections: []Collection{coll}, Err: err}
		}
		if s.Cache != nil {
			s.Cache.Forget(coll, keys)
		}
		deleted += len(keys)

		if len(keys) < batch {
			break
		}
	}

	if deleted > 0 && s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"collection": coll,
			"cutoff":     cutoff,
			"deleted":    deleted,
		}).Info("swept stale records")
	}
	return deleted, nil
}
