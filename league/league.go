/*
Package league drives a season through its phases.

PURPOSE:
  A League is the explicit context every operation receives: current
  season, phase and the configuration fixed at creation. Its state is
  persisted in meta["league"] and only changes through the Orchestrator.

KEY CONCEPTS:
  - League:       In-memory handle for one league, guarded by its own mutex
  - State:        The persisted (season, phase) pair
  - Orchestrator: Validates exit conditions and runs transitions
  - Transition:   Descriptor returned from every successful advance

PHASE CYCLE:
  preseason -> regularSeason -> playoffs -> offseason -> preseason (season+1)

SEE ALSO:
  - orchestrator.go: Phase transitions
  - results.go: Game results feeding the head-to-head aggregate
  - hooks.go: Post-transition side effects
*/
package league

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/schedule"
	"github.com/warp/league-engine/storage"
)

// metaLeagueKey is where the league state lives in the meta collection.
const metaLeagueKey = "league"

// State is the persisted part of a league.
type State struct {
	Season         int         `json:"season"`
	StartingSeason int         `json:"startingSeason"`
	Phase          model.Phase `json:"phase"`
}

// League is one league's context. Transitions on the same league are
// serialized by mu; different leagues never share one.
type League struct {
	mu     sync.Mutex
	state  State
	config Config
}

// State returns a copy of the current season and phase.
func (l *League) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Config returns the configuration the league was created with.
func (l *League) Config() Config {
	return l.config
}

// Open loads the league from storage, creating it (and its teams) on first
// use. An existing league keeps its persisted season and phase.
func Open(ctx context.Context, c *storage.Coordinator, cfg Config) (*League, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("league config: %w", err)
	}

	lg := &League{config: cfg}
	colls := []storage.Collection{storage.Meta, storage.Teams}
	err := c.RunTransaction(ctx, colls, storage.ReadWrite, storage.FlushSync, func(tx *storage.Tx) error {
		st, found, err := storage.GetJSON[State](tx, storage.Meta, metaLeagueKey)
		if err != nil {
			return err
		}
		if found {
			if !st.Phase.Valid() {
				return fmt.Errorf("stored league has unknown phase %q", st.Phase)
			}
			lg.state = st
			return nil
		}

		lg.state = State{
			Season:         cfg.StartingSeason,
			StartingSeason: cfg.StartingSeason,
			Phase:          model.PhasePreseason,
		}
		existing, err := tx.List(storage.Teams)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			for _, team := range DefaultTeams(cfg) {
				if err := storage.PutJSON(tx, storage.Teams, teamKey(team.TID), 0, team); err != nil {
					return err
				}
			}
		}
		return storage.PutJSON(tx, storage.Meta, metaLeagueKey, 0, lg.state)
	})
	if err != nil {
		return nil, err
	}
	return lg, nil
}

// DefaultTeams spreads cfg.NumTeams over the configured divisions,
// round-robin so division sizes differ by at most one.
func DefaultTeams(cfg Config) []model.Team {
	divisions := cfg.Conferences * cfg.DivisionsPerConference
	teams := make([]model.Team, cfg.NumTeams)
	for i := range teams {
		did := i % divisions
		teams[i] = model.Team{
			TID:    model.TeamID(i),
			CID:    did / cfg.DivisionsPerConference,
			DID:    did,
			Name:   fmt.Sprintf("Team %d", i+1),
			Active: true,
		}
	}
	return teams
}

func teamKey(tid model.TeamID) string {
	return fmt.Sprintf("%d", tid)
}

// ValidateSchedule checks that the current teams and config admit a
// schedule, without generating one.
func (o *Orchestrator) ValidateSchedule(ctx context.Context, lg *League) error {
	teams, err := o.ActiveTeams(ctx)
	if err != nil {
		return err
	}
	st := lg.State()
	return schedule.Validate(teams, lg.config.ScheduleConfig(st.Season))
}
