package league

import (
	"context"
	"fmt"

	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/storage"
)

// =============================================================================
// READ PATHS
// =============================================================================

func (o *Orchestrator) read(ctx context.Context, colls []storage.Collection, fn func(tx *storage.Tx) error) error {
	return o.coord.RunTransaction(ctx, colls, storage.ReadOnly, storage.FlushSync, fn)
}

// Teams returns every team, ordered by key.
func (o *Orchestrator) Teams(ctx context.Context) ([]model.Team, error) {
	var teams []model.Team
	err := o.read(ctx, []storage.Collection{storage.Teams}, func(tx *storage.Tx) error {
		var err error
		teams, err = storage.ListJSON[model.Team](tx, storage.Teams)
		return err
	})
	return teams, err
}

// ActiveTeams returns the teams that take part in the next schedule.
func (o *Orchestrator) ActiveTeams(ctx context.Context) ([]model.Team, error) {
	all, err := o.Teams(ctx)
	if err != nil {
		return nil, err
	}
	var active []model.Team
	for _, t := range all {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

// PutTeam creates or replaces a team. Grouping changes apply from the next
// generated schedule.
func (o *Orchestrator) PutTeam(ctx context.Context, team model.Team) error {
	if team.TID < 0 {
		return fmt.Errorf("team id must be non-negative, got %d", team.TID)
	}
	return o.coord.RunTransaction(ctx, []storage.Collection{storage.Teams}, storage.ReadWrite, storage.FlushSync, func(tx *storage.Tx) error {
		return storage.PutJSON(tx, storage.Teams, teamKey(team.TID), 0, team)
	})
}

// Schedule returns the stored schedule of a season.
func (o *Orchestrator) Schedule(ctx context.Context, season int) (model.Schedule, bool, error) {
	var (
		s     model.Schedule
		found bool
	)
	err := o.read(ctx, []storage.Collection{storage.Schedules}, func(tx *storage.Tx) error {
		var err error
		s, found, err = storage.GetJSON[model.Schedule](tx, storage.Schedules, storage.SeasonKey(season))
		return err
	})
	return s, found, err
}

// Game returns a recorded game, including results not yet flushed.
func (o *Orchestrator) Game(ctx context.Context, gid string) (model.Game, bool, error) {
	var (
		g     model.Game
		found bool
	)
	err := o.read(ctx, []storage.Collection{storage.Games}, func(tx *storage.Tx) error {
		var err error
		g, found, err = storage.GetJSON[model.Game](tx, storage.Games, gid)
		return err
	})
	return g, found, err
}

// HeadToHead returns the aggregate of a season.
func (o *Orchestrator) HeadToHead(ctx context.Context, season int) (model.HeadToHead, bool, error) {
	var (
		h     model.HeadToHead
		found bool
	)
	err := o.read(ctx, []storage.Collection{storage.SeasonAggregates}, func(tx *storage.Tx) error {
		var err error
		h, found, err = storage.GetJSON[model.HeadToHead](tx, storage.SeasonAggregates, storage.SeasonKey(season))
		return err
	})
	return h, found, err
}

// Standings derives the regular-season table for a season. Teams that
// played no games are listed only when they are active.
func (o *Orchestrator) Standings(ctx context.Context, season int) ([]model.Standing, error) {
	h, found, err := o.HeadToHead(ctx, season)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &AggregateMissingError{Season: season}
	}
	teams, err := o.ActiveTeams(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]model.TeamID, len(teams))
	for i, t := range teams {
		ids[i] = t.TID
	}
	return h.Standings(ids)
}
