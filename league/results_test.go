package league_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/league-engine/league"
	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/storage"
	"github.com/warp/league-engine/storage/memory"
)

// =============================================================================
// RECORDING RESULTS
// =============================================================================

func TestRecordGameResult_UpdatesAggregateAndMatchup(t *testing.T) {
	e := newEnv(t, memory.New(), testConfig())
	e.advance(t)
	m := e.schedule(t).Matchups[0]

	require.NoError(t, e.orch.RecordGameResult(context.Background(), gameFor(2025, m)))

	agg, found, err := e.orch.HeadToHead(context.Background(), 2025)
	require.NoError(t, err)
	require.True(t, found)
	rec := agg.RegularSeason[model.PairKey(m.Home, m.Away)]
	assert.Equal(t, 1, rec.Won+rec.Lost)
	assert.Empty(t, agg.Playoffs)

	played, _, ok := e.schedule(t).Find(m.ID)
	require.True(t, ok)
	assert.Equal(t, model.MatchupPlayed, played.Status)
	assert.Equal(t, gameFor(2025, m).GID, played.GameID)
	assert.Equal(t, m.Home, played.Winner)
}

func TestRecordGameResult_BatchedUntilFlush(t *testing.T) {
	// GIVEN: A recorded game
	durable := memory.New()
	e := newEnv(t, durable, testConfig())
	e.advance(t)
	g := gameFor(2025, e.schedule(t).Matchups[0])
	require.NoError(t, e.orch.RecordGameResult(context.Background(), g))

	// THEN: It is visible through the cache but not yet durable
	assert.Zero(t, durable.Len(storage.Games))
	cached, found, err := e.orch.Game(context.Background(), g.GID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, e.coord.Dirty())

	// WHEN: Flushing
	n, err := e.coord.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// THEN: A fresh coordinator reads back the identical game
	reopened := newEnv(t, durable, testConfig())
	stored, found, err := reopened.orch.Game(context.Background(), g.GID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cached, stored)
}

func TestRecordGameResult_AggregateMissing(t *testing.T) {
	// GIVEN: A league still in the preseason, so no aggregate exists
	e := newEnv(t, memory.New(), testConfig())

	g := model.Game{
		GID: "early", Season: 2025, MatchupID: 0,
		Home: model.TeamResult{TID: 0, Pts: 1}, Away: model.TeamResult{TID: 1},
	}
	err := e.orch.RecordGameResult(context.Background(), g)

	require.Error(t, err)
	assert.ErrorIs(t, err, league.ErrAggregateMissing)
	var ame *league.AggregateMissingError
	require.ErrorAs(t, err, &ame)
	assert.Equal(t, 2025, ame.Season)

	_, found, err := e.orch.Game(context.Background(), "early")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecordGameResult_Rejections(t *testing.T) {
	e := newEnv(t, memory.New(), testConfig())
	e.advance(t)
	m := e.schedule(t).Matchups[0]
	require.NoError(t, e.orch.RecordGameResult(context.Background(), gameFor(2025, m)))

	other := e.schedule(t).Matchups[1]
	swapped := gameFor(2025, other)
	swapped.GID = "swapped"
	swapped.Home, swapped.Away = swapped.Away, swapped.Home

	unknown := gameFor(2025, other)
	unknown.GID = "unknown"
	unknown.MatchupID = 999

	replay := gameFor(2025, m)
	replay.GID = "replay"

	wrongPhase := gameFor(2025, other)
	wrongPhase.GID = "wrong-phase"
	wrongPhase.Playoffs = true

	tied := gameFor(2025, other)
	tied.Playoffs = true
	tied.Away.Pts = tied.Home.Pts

	cases := []struct {
		name string
		game model.Game
		want error
	}{
		{"duplicate id", gameFor(2025, m), league.ErrDuplicateGame},
		{"teams swapped", swapped, league.ErrMatchupMismatch},
		{"unknown matchup", unknown, league.ErrMatchupMismatch},
		{"matchup already played", replay, league.ErrMatchupMismatch},
		{"playoff game in regular season", wrongPhase, league.ErrMatchupMismatch},
		{"missing id", model.Game{Season: 2025, Home: model.TeamResult{TID: 0}, Away: model.TeamResult{TID: 1}}, league.ErrInvalidGame},
		{"same team", model.Game{GID: "x", Season: 2025, Home: model.TeamResult{TID: 1}, Away: model.TeamResult{TID: 1}}, league.ErrInvalidGame},
		{"tied playoff game", tied, league.ErrInvalidGame},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := e.orch.RecordGameResult(context.Background(), tc.game)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, league.IsClientError(err))
		})
	}

	// Only the first game counted
	agg, _, err := e.orch.HeadToHead(context.Background(), 2025)
	require.NoError(t, err)
	total := 0
	for _, rec := range agg.RegularSeason {
		total += rec.Won + rec.Lost + rec.Tied
	}
	assert.Equal(t, 1, total)
}

func TestRecordGameResult_ConcurrentResults(t *testing.T) {
	// GIVEN: Every matchup of the season reported at once
	e := newEnv(t, memory.New(), testConfig())
	e.advance(t)
	matchups := e.schedule(t).Matchups

	var wg sync.WaitGroup
	errs := make(chan error, len(matchups))
	for _, m := range matchups {
		wg.Add(1)
		go func(m model.Matchup) {
			defer wg.Done()
			errs <- e.orch.RecordGameResult(context.Background(), gameFor(2025, m))
		}(m)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// THEN: No update to the aggregate or schedule was lost
	agg, _, err := e.orch.HeadToHead(context.Background(), 2025)
	require.NoError(t, err)
	total := 0
	for _, rec := range agg.RegularSeason {
		total += rec.Won + rec.Lost + rec.Tied
	}
	assert.Equal(t, len(matchups), total)
	assert.Empty(t, e.schedule(t).Pending())
}

func TestRecordGameResult_TieInRegularSeason(t *testing.T) {
	e := newEnv(t, memory.New(), testConfig())
	e.advance(t)
	m := e.schedule(t).Matchups[0]
	g := gameFor(2025, m)
	g.Away.Pts = g.Home.Pts

	require.NoError(t, e.orch.RecordGameResult(context.Background(), g))

	played, _, _ := e.schedule(t).Find(m.ID)
	assert.Equal(t, model.MatchupPlayed, played.Status)
	assert.Zero(t, played.Winner)

	agg, _, err := e.orch.HeadToHead(context.Background(), 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.RegularSeason[model.PairKey(m.Home, m.Away)].Tied)
}

// =============================================================================
// SKIPPING
// =============================================================================

func TestSkipMatchup(t *testing.T) {
	e := newEnv(t, memory.New(), testConfig())
	ctx := context.Background()

	// No schedule yet
	err := e.orch.SkipMatchup(ctx, e.lg, 0)
	assert.ErrorIs(t, err, league.ErrMatchupMismatch)

	e.advance(t)
	require.NoError(t, e.orch.SkipMatchup(ctx, e.lg, 3))

	skipped, _, _ := e.schedule(t).Find(3)
	assert.Equal(t, model.MatchupSkipped, skipped.Status)

	assert.ErrorIs(t, e.orch.SkipMatchup(ctx, e.lg, 3), league.ErrMatchupMismatch)
	assert.ErrorIs(t, e.orch.SkipMatchup(ctx, e.lg, 999), league.ErrMatchupMismatch)

	// A skipped matchup no longer accepts a result
	m, _, _ := e.schedule(t).Find(3)
	assert.ErrorIs(t, e.orch.RecordGameResult(ctx, gameFor(2025, m)), league.ErrMatchupMismatch)
}

func TestSkipMatchup_PlayoffsAdvanceBetterSeed(t *testing.T) {
	e := newEnv(t, memory.New(), testConfig())
	ctx := context.Background()
	e.advance(t)
	e.playPending(t)
	e.advance(t)

	bracket := e.schedule(t)
	require.NoError(t, e.orch.SkipMatchup(ctx, e.lg, bracket.Matchups[0].ID))

	skipped, _, _ := e.schedule(t).Find(bracket.Matchups[0].ID)
	assert.Equal(t, bracket.Seeds[0], skipped.Winner)
}

func TestSkipMatchup_WaitsForRunningTransition(t *testing.T) {
	// GIVEN: An offseason league whose finished schedule still lists a
	// pending matchup
	durable := newGatedStore()
	seedRecord(t, durable, storage.Meta, "league", 0, league.State{Season: 2025, StartingSeason: 2025, Phase: model.PhaseOffseason})
	for _, team := range league.DefaultTeams(testConfig()) {
		seedRecord(t, durable, storage.Teams, storage.SeasonKey(int(team.TID)), 0, team)
	}
	seedRecord(t, durable, storage.Schedules, "2025", 2025, model.Schedule{
		Season:   2025,
		Matchups: []model.Matchup{{ID: 0, Day: 0, Home: 0, Away: 1, Status: model.MatchupPending}},
	})
	e := newEnv(t, durable, testConfig())
	ctx := context.Background()

	// WHEN: A skip arrives while the move to the next season commits
	entered, release := durable.arm()
	advanced := make(chan error, 1)
	go func() {
		_, err := e.orch.Advance(ctx, e.lg, league.AdvanceInput{})
		advanced <- err
	}()
	<-entered

	skipped := make(chan error, 1)
	go func() { skipped <- e.orch.SkipMatchup(ctx, e.lg, 0) }()
	time.Sleep(10 * time.Millisecond)
	close(release)
	require.NoError(t, <-advanced)

	// THEN: The skip targets the new season, which has no schedule yet,
	// and the previous season is untouched
	assert.ErrorIs(t, <-skipped, league.ErrMatchupMismatch)
	assert.Equal(t, 2026, e.lg.State().Season)
	old, _, err := e.orch.Schedule(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, model.MatchupPending, old.Matchups[0].Status)
}
