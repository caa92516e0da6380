/*
orchestrator.go - Phase transitions

PURPOSE:
  Advances a league one phase at a time. Each transition checks the exit
  conditions of the phase being left and commits all of its writes in one
  read-write transaction with synchronous flush, so a failure leaves the
  league exactly where it was.

EXIT CONDITIONS:
  preseason      none
  regularSeason  every scheduled matchup played or skipped
  playoffs       every playoff matchup resolved and the final decided
  offseason      none

ENTERING REGULAR SEASON:
  1. Load active teams, generate the schedule (before any write)
  2. Commit schedule + empty head-to-head aggregate + league state
  3. If AutoDeleteOldGames: evict and sweep games of seasons older than
     the retention horizon. A sweep failure is logged, never fatal.

SEE ALSO:
  - results.go: What completes a schedule
  - hooks.go: Side effects after a committed transition
  - storage/sweeper.go: Retention deletes
*/
package league

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/schedule"
	"github.com/warp/league-engine/storage"
)

// =============================================================================
// TRANSITION DESCRIPTOR
// =============================================================================

// Update events tell consumers which views to refresh.
const (
	EventPhase          = "phase"
	EventSeason         = "season"
	EventSchedule       = "schedule"
	EventStandings      = "standings"
	EventGames          = "games"
	EventPlayerMovement = "playerMovement"
)

// Transition describes a committed phase change.
type Transition struct {
	From         model.Phase `json:"from"`
	To           model.Phase `json:"to"`
	Season       int         `json:"season"`
	UpdateEvents []string    `json:"updateEvents"`

	// Swept is the number of old games deleted by the retention sweep.
	Swept int `json:"swept,omitempty"`
}

// AdvanceInput carries optional caller choices for a transition.
type AdvanceInput struct {
	// PlayoffSeeds overrides standings-based seeding, best first.
	PlayoffSeeds []model.TeamID `json:"playoffSeeds,omitempty"`
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs transitions and records results for any number of
// leagues sharing one storage coordinator.
type Orchestrator struct {
	coord   *storage.Coordinator
	sweeper *storage.Sweeper
	log     *logrus.Entry

	hooksMu sync.RWMutex
	hooks   []Hook
	hookWG  sync.WaitGroup
}

// NewOrchestrator wires an orchestrator to a coordinator.
func NewOrchestrator(c *storage.Coordinator, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		coord:   c,
		sweeper: storage.NewSweeper(c, log.WithField("component", "sweeper")),
		log:     log.WithField("component", "orchestrator"),
	}
}

// Coordinator exposes the storage coordinator for read paths and flushing.
func (o *Orchestrator) Coordinator() *storage.Coordinator {
	return o.coord
}

// Advance moves lg to the next phase. On any error nothing is mutated and
// the league stays in its current phase.
func (o *Orchestrator) Advance(ctx context.Context, lg *League, in AdvanceInput) (Transition, error) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	from := lg.state.Phase
	next := lg.state
	next.Phase = from.Next()
	if next.Phase == model.PhasePreseason {
		next.Season++
	}

	log := o.log.WithFields(logrus.Fields{
		"season": lg.state.Season,
		"from":   from,
		"to":     next.Phase,
	})

	// Batched results must be durable before the phase they complete ends.
	// Results recorded after this flush are written by the commit below,
	// which holds games.
	if _, err := o.coord.Flush(ctx); err != nil {
		log.WithError(err).Error("flush before transition failed")
		return Transition{}, err
	}

	var generated model.Schedule
	if next.Phase == model.PhaseRegularSeason {
		teams, err := o.ActiveTeams(ctx)
		if err != nil {
			return Transition{}, err
		}
		generated, err = schedule.Generate(teams, lg.config.ScheduleConfig(next.Season))
		if err != nil {
			log.WithError(err).Warn("schedule generation failed")
			return Transition{}, fmt.Errorf("season %d schedule: %w", next.Season, err)
		}
	}

	t := Transition{From: from, To: next.Phase, Season: next.Season}
	colls := []storage.Collection{storage.Meta, storage.Games, storage.Schedules, storage.SeasonAggregates}
	err := o.coord.RunTransaction(ctx, colls, storage.ReadWrite, storage.FlushSync, func(tx *storage.Tx) error {
		current, found, err := storage.GetJSON[model.Schedule](tx, storage.Schedules, storage.SeasonKey(lg.state.Season))
		if err != nil {
			return err
		}
		if err := checkExit(from, next.Phase, current, found); err != nil {
			return err
		}

		switch next.Phase {
		case model.PhaseRegularSeason:
			if err := enterRegularSeason(tx, generated); err != nil {
				return err
			}
			t.UpdateEvents = []string{EventPhase, EventSchedule, EventStandings, EventPlayerMovement}
		case model.PhasePlayoffs:
			if err := enterPlayoffs(tx, lg.config, current, in.PlayoffSeeds); err != nil {
				return err
			}
			t.UpdateEvents = []string{EventPhase, EventSchedule, EventStandings}
		case model.PhaseOffseason:
			t.UpdateEvents = []string{EventPhase}
		case model.PhasePreseason:
			t.UpdateEvents = []string{EventPhase, EventSeason}
		}
		return storage.PutJSON(tx, storage.Meta, metaLeagueKey, 0, next)
	})
	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			log.WithError(err).Info("transition refused")
		} else {
			log.WithError(err).Error("transition failed")
		}
		return Transition{}, err
	}
	lg.state = next
	log.Info("phase advanced")

	if next.Phase == model.PhaseRegularSeason && lg.config.AutoDeleteOldGames {
		t.Swept = o.sweepOldGames(ctx, lg.config, next.Season, log)
		if t.Swept > 0 {
			t.UpdateEvents = append(t.UpdateEvents, EventGames)
		}
	}

	o.fireHooks(ctx, next, t)
	return t, nil
}

// =============================================================================
// EXIT CONDITIONS
// =============================================================================

func checkExit(from, to model.Phase, current model.Schedule, found bool) error {
	refuse := func(reason string, pending int) error {
		return &IllegalTransitionError{From: from, To: to, Reason: reason, Pending: pending}
	}

	switch from {
	case model.PhaseRegularSeason:
		if !found || current.Playoffs {
			return refuse("no regular-season schedule", 0)
		}
		if n := len(current.Pending()); n > 0 {
			return refuse("regular season incomplete", n)
		}
	case model.PhasePlayoffs:
		if !found || !current.Playoffs {
			return refuse("no playoff schedule", 0)
		}
		if n := len(current.Pending()); n > 0 {
			return refuse("playoffs incomplete", n)
		}
		if len(current.Matchups) > 0 && !finalRound(current) {
			return refuse("playoff final not reached", 0)
		}
	}
	return nil
}

// finalRound reports whether the current round is a single matchup with
// no teams waiting on a bye.
func finalRound(s model.Schedule) bool {
	current := s.RoundMatchups(s.Round)
	return len(current) == 1 && (s.Round > 1 || len(s.Byes) == 0)
}

// =============================================================================
// PHASE ENTRY
// =============================================================================

func enterRegularSeason(tx *storage.Tx, generated model.Schedule) error {
	season := generated.Season
	if err := storage.PutJSON(tx, storage.Schedules, storage.SeasonKey(season), season, generated); err != nil {
		return err
	}
	agg, err := storage.Encode(storage.SeasonAggregates, storage.SeasonKey(season), season, model.NewHeadToHead(season))
	if err != nil {
		return err
	}
	_, err = tx.CreateIfAbsent(agg)
	return err
}

func enterPlayoffs(tx *storage.Tx, cfg Config, regular model.Schedule, requested []model.TeamID) error {
	season := regular.Season
	key := storage.SeasonKey(season)

	agg, found, err := storage.GetJSON[model.HeadToHead](tx, storage.SeasonAggregates, key)
	if err != nil {
		return err
	}
	if !found {
		agg = model.NewHeadToHead(season)
	}
	if agg.Playoffs == nil {
		agg.Playoffs = map[string]model.PairRecord{}
	}

	participants := scheduledTeams(regular)
	seeds := requested
	if len(seeds) > 0 {
		if err := validateSeeds(seeds, participants); err != nil {
			return err
		}
	} else {
		table, err := agg.Standings(participants)
		if err != nil {
			return err
		}
		for _, s := range table {
			seeds = append(seeds, s.TID)
		}
	}
	if n := cfg.NumPlayoffTeams; n > 0 && len(seeds) > n {
		seeds = seeds[:n]
	}

	bracket := model.Schedule{Season: season, Playoffs: true, Seeds: seeds, Round: 1, Matchups: []model.Matchup{}}
	if len(seeds) >= 2 {
		bracket.Matchups, bracket.Byes = schedule.PlayoffRound(seeds, seeds, 1, 0, 0)
	}

	if err := storage.PutJSON(tx, storage.Schedules, key, season, bracket); err != nil {
		return err
	}
	return storage.PutJSON(tx, storage.SeasonAggregates, key, season, agg)
}

// scheduledTeams returns every team in the schedule, ascending.
func scheduledTeams(s model.Schedule) []model.TeamID {
	seen := map[model.TeamID]bool{}
	var out []model.TeamID
	for _, m := range s.Matchups {
		for _, tid := range []model.TeamID{m.Home, m.Away} {
			if !seen[tid] {
				seen[tid] = true
				out = append(out, tid)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func validateSeeds(seeds, teams []model.TeamID) error {
	known := make(map[model.TeamID]bool, len(teams))
	for _, tid := range teams {
		known[tid] = true
	}
	seen := map[model.TeamID]bool{}
	for _, tid := range seeds {
		if seen[tid] {
			return fmt.Errorf("%w: team %d seeded twice", ErrInvalidSeeds, tid)
		}
		if len(known) > 0 && !known[tid] {
			return fmt.Errorf("%w: team %d did not play this season", ErrInvalidSeeds, tid)
		}
		seen[tid] = true
	}
	return nil
}

// =============================================================================
// PLAYOFF ROUNDS
// =============================================================================

// AdvancePlayoffRound builds the next round from the winners of the current
// one. The phase stays playoffs.
func (o *Orchestrator) AdvancePlayoffRound(ctx context.Context, lg *League) (Transition, error) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	st := lg.state
	refuse := func(reason string, pending int) error {
		return &IllegalTransitionError{From: st.Phase, To: st.Phase, Reason: reason, Pending: pending}
	}
	if st.Phase != model.PhasePlayoffs {
		return Transition{}, refuse("not in playoffs", 0)
	}
	if _, err := o.coord.Flush(ctx); err != nil {
		return Transition{}, err
	}

	var round int
	colls := []storage.Collection{storage.Games, storage.Schedules, storage.SeasonAggregates}
	err := o.coord.RunTransaction(ctx, colls, storage.ReadWrite, storage.FlushSync, func(tx *storage.Tx) error {
		key := storage.SeasonKey(st.Season)
		bracket, found, err := storage.GetJSON[model.Schedule](tx, storage.Schedules, key)
		if err != nil {
			return err
		}
		if !found || !bracket.Playoffs {
			return refuse("no playoff schedule", 0)
		}

		current := bracket.RoundMatchups(bracket.Round)
		pending := 0
		for _, m := range current {
			if !m.Resolved() {
				pending++
			}
		}
		if pending > 0 {
			return refuse("round incomplete", pending)
		}
		if len(current) == 0 || finalRound(bracket) {
			return refuse("bracket complete", 0)
		}

		var participants []model.TeamID
		if bracket.Round == 1 {
			participants = append(participants, bracket.Byes...)
		}
		lastDay := 0
		for _, m := range current {
			participants = append(participants, m.Winner)
			if m.Day > lastDay {
				lastDay = m.Day
			}
		}

		next, _ := schedule.PlayoffRound(bracket.Seeds, participants, bracket.Round+1, lastDay+1, len(bracket.Matchups))
		bracket.Matchups = append(bracket.Matchups, next...)
		bracket.Round++
		round = bracket.Round
		return storage.PutJSON(tx, storage.Schedules, key, st.Season, bracket)
	})
	if err != nil {
		return Transition{}, err
	}

	o.log.WithFields(logrus.Fields{"season": st.Season, "round": round}).Info("playoff round started")
	return Transition{From: st.Phase, To: st.Phase, Season: st.Season, UpdateEvents: []string{EventSchedule}}, nil
}

// =============================================================================
// RETENTION
// =============================================================================

func (o *Orchestrator) sweepOldGames(ctx context.Context, cfg Config, season int, log *logrus.Entry) int {
	cutoff, ok := cfg.RetentionCutoff(season)
	if !ok {
		return 0
	}
	n, err := o.Sweep(ctx, cutoff)
	if err != nil {
		log.WithError(err).WithField("cutoff", cutoff).Warn("retention sweep stopped early, resumes next season")
	}
	return n
}

// Sweep deletes every game with season <= cutoff. Cached copies are
// evicted first so the cache never serves a swept game.
func (o *Orchestrator) Sweep(ctx context.Context, cutoff int) (int, error) {
	o.coord.EvictBefore(cutoff + 1)
	return o.sweeper.Sweep(ctx, storage.Games, cutoff)
}
