/*
store.go - Durable record store interface and persisted layout

PURPOSE:
  Defines the boundary between the write-back cache and the durable
  record store. The durable store is the source of truth across restarts;
  the Coordinator (coordinator.go) is the only writer apart from the
  retention sweeper.

PERSISTED LAYOUT:
  teams[tid]                  Team records
  games[gid]                  Game results, indexed by season
  seasonAggregates[season]    HeadToHead aggregate per season
  schedules[season]           Current calendar for a season
  meta[name]                  Small attributes (league state, counters)

ATOMIC APPLY:
  Apply() writes a batch of puts and deletes all-or-nothing. Both the
  synchronous per-transaction flush and the batched flush go through it,
  so a failed write never leaves the durable copy half-updated.

ORDERED SEASON INDEX:
  SeasonKeys() returns keys ordered by (season, key) for records at or
  below a season bound, one page at a time. The retention sweeper pages
  through it instead of loading whole collections.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - storage/memory/memory.go: In-memory (tests, dev)

SEE ALSO:
  - coordinator.go: Write-back cache and transactions
  - sweeper.go: Retention sweeper
*/
package storage

import (
	"context"
	"strconv"
)

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collection names a keyed set of records.
type Collection string

const (
	Teams            Collection = "teams"
	Games            Collection = "games"
	SeasonAggregates Collection = "seasonAggregates"
	Schedules        Collection = "schedules"
	Meta             Collection = "meta"
)

// Collections lists every collection the engine stores.
var Collections = []Collection{Teams, Games, SeasonAggregates, Schedules, Meta}

// SeasonKey formats a season number as a record key.
func SeasonKey(season int) string { return strconv.Itoa(season) }

// =============================================================================
// RECORDS
// =============================================================================

// Record is one stored value. Data is the JSON encoding of the domain type.
// Season feeds the ordered season index; it is zero for records that are
// not season scoped (teams, meta).
type Record struct {
	Collection Collection `json:"collection"`
	Key        string     `json:"key"`
	Season     int        `json:"season"`
	Data       []byte     `json:"data"`
}

type MutationOp int

const (
	OpPut MutationOp = iota
	OpDelete
)

// Mutation is one staged write.
type Mutation struct {
	Op     MutationOp
	Record Record
}

// =============================================================================
// DURABLE STORE
// =============================================================================

// Durable is the persistent record store.
type Durable interface {
	// Get returns the record or false when the key is absent.
	Get(ctx context.Context, coll Collection, key string) (Record, bool, error)

	// List returns every record of a collection, ordered by key.
	List(ctx context.Context, coll Collection) ([]Record, error)

	// Apply writes the batch atomically. Deleting a missing key is a no-op.
	Apply(ctx context.Context, muts []Mutation) error

	// SeasonKeys returns up to limit keys with season <= maxSeason,
	// ordered by season then key.
	SeasonKeys(ctx context.Context, coll Collection, maxSeason int, limit int) ([]string, error)
}
