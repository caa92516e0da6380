package league

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/storage"
)

// RecordGameResult stores a finished game, folds it into the season's
// head-to-head aggregate and resolves its matchup. Writes use batched flush;
// the next transition or Flush makes them durable.
//
// The aggregate must already exist. A missing one means results arrived
// before the season started and is reported as ErrAggregateMissing.
func (o *Orchestrator) RecordGameResult(ctx context.Context, g model.Game) error {
	if err := validateGame(g); err != nil {
		return err
	}

	log := o.log.WithFields(logrus.Fields{"season": g.Season, "gid": g.GID, "matchup": g.MatchupID})
	colls := []storage.Collection{storage.Games, storage.Schedules, storage.SeasonAggregates}
	err := o.coord.RunTransaction(ctx, colls, storage.ReadWrite, storage.FlushBatched, func(tx *storage.Tx) error {
		key := storage.SeasonKey(g.Season)

		agg, found, err := storage.GetJSON[model.HeadToHead](tx, storage.SeasonAggregates, key)
		if err != nil {
			return err
		}
		if !found {
			return &AggregateMissingError{Season: g.Season, GID: g.GID}
		}

		if _, dup, err := tx.Get(storage.Games, g.GID); err != nil {
			return err
		} else if dup {
			return fmt.Errorf("%w: %s", ErrDuplicateGame, g.GID)
		}

		sched, found, err := storage.GetJSON[model.Schedule](tx, storage.Schedules, key)
		if err != nil {
			return err
		}
		if !found || sched.Playoffs != g.Playoffs {
			return &MatchupMismatchError{MatchupID: g.MatchupID, Reason: "no open schedule for this season and phase"}
		}
		m, idx, ok := sched.Find(g.MatchupID)
		switch {
		case !ok:
			return &MatchupMismatchError{MatchupID: g.MatchupID, Reason: "not scheduled"}
		case m.Resolved():
			return &MatchupMismatchError{MatchupID: g.MatchupID, Reason: fmt.Sprintf("already %s", m.Status)}
		case m.Home != g.Home.TID || m.Away != g.Away.TID:
			return &MatchupMismatchError{MatchupID: g.MatchupID, Reason: fmt.Sprintf("scheduled %d vs %d, got %d vs %d", m.Home, m.Away, g.Home.TID, g.Away.TID)}
		}

		g.Day = m.Day
		if err := storage.PutJSON(tx, storage.Games, g.GID, g.Season, g); err != nil {
			return err
		}

		agg.Apply(g)
		if err := storage.PutJSON(tx, storage.SeasonAggregates, key, g.Season, agg); err != nil {
			return err
		}

		m.Status = model.MatchupPlayed
		m.GameID = g.GID
		if w, ok := g.Winner(); ok {
			m.Winner = w
		}
		sched.Matchups[idx] = m
		return storage.PutJSON(tx, storage.Schedules, key, g.Season, sched)
	})
	if err != nil {
		if IsClientError(err) {
			log.WithError(err).Debug("game result rejected")
		} else {
			log.WithError(err).Error("game result not recorded")
		}
		return err
	}
	return nil
}

func validateGame(g model.Game) error {
	switch {
	case g.GID == "":
		return fmt.Errorf("%w: missing game id", ErrInvalidGame)
	case g.Home.TID == g.Away.TID:
		return fmt.Errorf("%w: team %d cannot play itself", ErrInvalidGame, g.Home.TID)
	case g.Home.Pts < 0 || g.Away.Pts < 0:
		return fmt.Errorf("%w: negative score", ErrInvalidGame)
	case g.Playoffs && g.Home.Pts == g.Away.Pts:
		return fmt.Errorf("%w: playoff game cannot end tied", ErrInvalidGame)
	}
	return nil
}

// SkipMatchup resolves a matchup of the current season without a game. A
// skipped playoff matchup advances the home side, which is always the
// better seed. It holds the league lock, so a concurrent transition cannot
// change the season underneath it.
func (o *Orchestrator) SkipMatchup(ctx context.Context, lg *League, matchupID int) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	season := lg.state.Season
	return o.coord.RunTransaction(ctx, []storage.Collection{storage.Schedules}, storage.ReadWrite, storage.FlushBatched, func(tx *storage.Tx) error {
		key := storage.SeasonKey(season)
		sched, found, err := storage.GetJSON[model.Schedule](tx, storage.Schedules, key)
		if err != nil {
			return err
		}
		if !found {
			return &MatchupMismatchError{MatchupID: matchupID, Reason: fmt.Sprintf("no schedule for season %d", season)}
		}
		m, idx, ok := sched.Find(matchupID)
		if !ok {
			return &MatchupMismatchError{MatchupID: matchupID, Reason: "not scheduled"}
		}
		if m.Resolved() {
			return &MatchupMismatchError{MatchupID: matchupID, Reason: fmt.Sprintf("already %s", m.Status)}
		}

		m.Status = model.MatchupSkipped
		if m.Playoffs {
			m.Winner = m.Home
		}
		sched.Matchups[idx] = m
		return storage.PutJSON(tx, storage.Schedules, key, season, sched)
	})
}
