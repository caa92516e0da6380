/*
Package model holds the league's persisted domain records.

PURPOSE:
  Plain data types shared by the schedule generator, the storage coordinator
  and the phase orchestrator. Nothing in this package touches storage or
  randomness, so every other package can depend on it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Phase:      A stage of one season's lifecycle
  - Team:       Stable identity plus conference/division grouping
  - Matchup:    One scheduled pairing on a day-index
  - Schedule:   Ordered matchups for one season (regular season or playoffs)
  - Game:       A simulated result reported by the external engine
  - HeadToHead: Per-season pairwise results, split regular season / playoffs

SEE ALSO:
  - schedule/generator.go: Produces Schedule values
  - league/orchestrator.go: Owns phase progression
  - storage/store.go: Where each record lives
*/
package model

import (
	"fmt"
)

// =============================================================================
// PHASE
// =============================================================================

// Phase is a named stage of one season.
type Phase string

const (
	PhasePreseason     Phase = "preseason"
	PhaseRegularSeason Phase = "regularSeason"
	PhasePlayoffs      Phase = "playoffs"
	PhaseOffseason     Phase = "offseason"
)

// Next returns the phase that follows p in the cycle. Offseason wraps to
// Preseason of the next season.
func (p Phase) Next() Phase {
	switch p {
	case PhasePreseason:
		return PhaseRegularSeason
	case PhaseRegularSeason:
		return PhasePlayoffs
	case PhasePlayoffs:
		return PhaseOffseason
	default:
		return PhasePreseason
	}
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePreseason, PhaseRegularSeason, PhasePlayoffs, PhaseOffseason:
		return true
	}
	return false
}

// =============================================================================
// TEAMS
// =============================================================================

// TeamID identifies a team for the lifetime of the league.
type TeamID int

// Team is a franchise with its grouping for the current season.
type Team struct {
	TID    TeamID `json:"tid"`
	CID    int    `json:"cid"`
	DID    int    `json:"did"`
	Region string `json:"region,omitempty"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"active"`
}

// =============================================================================
// SCHEDULE
// =============================================================================

type MatchupStatus string

const (
	MatchupPending MatchupStatus = "pending"
	MatchupPlayed  MatchupStatus = "played"
	MatchupSkipped MatchupStatus = "skipped"
)

// Matchup is one scheduled game between two teams.
type Matchup struct {
	ID       int           `json:"id"`
	Day      int           `json:"day"`
	Home     TeamID        `json:"home"`
	Away     TeamID        `json:"away"`
	Playoffs bool          `json:"playoffs"`
	Round    int           `json:"round,omitempty"`
	Status   MatchupStatus `json:"status"`
	GameID   string        `json:"gid,omitempty"`
	Winner   TeamID        `json:"winner,omitempty"`
}

// Resolved reports whether the matchup no longer blocks phase exit.
func (m Matchup) Resolved() bool {
	return m.Status == MatchupPlayed || m.Status == MatchupSkipped
}

// Involves reports whether tid plays in m.
func (m Matchup) Involves(tid TeamID) bool {
	return m.Home == tid || m.Away == tid
}

// Schedule is the ordered calendar for one season. A playoff schedule
// replaces the regular-season one when the playoffs begin.
type Schedule struct {
	Season   int       `json:"season"`
	Playoffs bool      `json:"playoffs"`
	Matchups []Matchup `json:"matchups"`

	// Playoff bookkeeping. Seeds is best-first; Byes skip round 1.
	Seeds []TeamID `json:"seeds,omitempty"`
	Byes  []TeamID `json:"byes,omitempty"`
	Round int      `json:"round,omitempty"`
}

// Pending returns the matchups that are neither played nor skipped.
func (s Schedule) Pending() []Matchup {
	var out []Matchup
	for _, m := range s.Matchups {
		if !m.Resolved() {
			out = append(out, m)
		}
	}
	return out
}

// Find returns the matchup with the given ID.
func (s Schedule) Find(id int) (Matchup, int, bool) {
	for i, m := range s.Matchups {
		if m.ID == id {
			return m, i, true
		}
	}
	return Matchup{}, -1, false
}

// RoundMatchups returns the playoff matchups of one round.
func (s Schedule) RoundMatchups(round int) []Matchup {
	var out []Matchup
	for _, m := range s.Matchups {
		if m.Round == round {
			out = append(out, m)
		}
	}
	return out
}

// GamesPerTeam counts matchups per team.
func (s Schedule) GamesPerTeam() map[TeamID]int {
	counts := make(map[TeamID]int)
	for _, m := range s.Matchups {
		counts[m.Home]++
		counts[m.Away]++
	}
	return counts
}

// =============================================================================
// GAMES
// =============================================================================

// TeamResult is one side of a finished game.
type TeamResult struct {
	TID TeamID `json:"tid"`
	Pts int    `json:"pts"`
}

// Game is a finished game as reported by the simulation engine.
type Game struct {
	GID       string     `json:"gid"`
	Season    int        `json:"season"`
	Playoffs  bool       `json:"playoffs"`
	MatchupID int        `json:"matchupId"`
	Day       int        `json:"day"`
	Home      TeamResult `json:"home"`
	Away      TeamResult `json:"away"`
	Overtimes int        `json:"overtimes,omitempty"`
}

// Winner returns the winning team, or false on a tie.
func (g Game) Winner() (TeamID, bool) {
	switch {
	case g.Home.Pts > g.Away.Pts:
		return g.Home.TID, true
	case g.Away.Pts > g.Home.Pts:
		return g.Away.TID, true
	}
	return 0, false
}

// =============================================================================
// HEAD TO HEAD
// =============================================================================

// PairRecord is the record of the lower tid of a pair against the higher one.
type PairRecord struct {
	Won    int `json:"won"`
	Lost   int `json:"lost"`
	Tied   int `json:"tied"`
	Pts    int `json:"pts"`
	OppPts int `json:"oppPts"`
}

// HeadToHead aggregates pairwise results for one season.
type HeadToHead struct {
	Season        int                   `json:"season"`
	RegularSeason map[string]PairRecord `json:"regularSeason"`
	Playoffs      map[string]PairRecord `json:"playoffs"`
}

// NewHeadToHead returns an empty aggregate for season.
func NewHeadToHead(season int) HeadToHead {
	return HeadToHead{
		Season:        season,
		RegularSeason: map[string]PairRecord{},
		Playoffs:      map[string]PairRecord{},
	}
}

// PairKey is the unordered key for two teams.
func PairKey(a, b TeamID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

// Apply folds g into the matching sub-map.
func (h *HeadToHead) Apply(g Game) {
	target := h.RegularSeason
	if g.Playoffs {
		if h.Playoffs == nil {
			h.Playoffs = map[string]PairRecord{}
		}
		target = h.Playoffs
	} else if h.RegularSeason == nil {
		h.RegularSeason = map[string]PairRecord{}
		target = h.RegularSeason
	}

	lo, hi := g.Home, g.Away
	if hi.TID < lo.TID {
		lo, hi = hi, lo
	}

	key := PairKey(lo.TID, hi.TID)
	rec := target[key]
	switch {
	case lo.Pts > hi.Pts:
		rec.Won++
	case lo.Pts < hi.Pts:
		rec.Lost++
	default:
		rec.Tied++
	}
	rec.Pts += lo.Pts
	rec.OppPts += hi.Pts
	target[key] = rec
}
