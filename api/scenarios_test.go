/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- The league lands in the expected season and phase
	- Simulated games are flushed to the durable store
	- Old seasons are swept once the retention horizon passes

These tests double as integration tests of the whole phase cycle.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/league-engine/storage"
)

func (s *testServer) load(t *testing.T, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) games(t *testing.T) int {
	t.Helper()
	n, err := s.store.Count(context.Background(), storage.Games)
	require.NoError(t, err)
	return n
}

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	list := decode[[]ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))

	assert.Len(t, list, 4)
}

func TestScenario_PlayoffReady(t *testing.T) {
	// GIVEN: The playoff-ready scenario
	s := newTestServer(t)

	// WHEN: Loading it
	s.load(t, "playoff-ready")

	// THEN: Every regular-season game is played and durable
	st := decode[LeagueDTO](t, s.do(t, http.MethodGet, "/api/league", nil))
	assert.Equal(t, "regularSeason", st.Phase)
	assert.Equal(t, "playoff-ready", st.Scenario)

	sched := decode[ScheduleDTO](t, s.do(t, http.MethodGet, "/api/schedule", nil))
	assert.Zero(t, sched.Pending)
	assert.Equal(t, 12, s.games(t))

	current := decode[ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "playoff-ready", current.ID)

	// AND: The playoffs can start
	rec := s.do(t, http.MethodPost, "/api/league/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "playoffs", decode[TransitionDTO](t, rec).To)
}

func TestScenario_VeteranSweepsOldSeason(t *testing.T) {
	// GIVEN: Three complete seasons of 12 regular-season and 3 playoff games
	s := newTestServer(t)
	s.load(t, "veteran")

	st := decode[LeagueDTO](t, s.do(t, http.MethodGet, "/api/league", nil))
	require.Equal(t, 2028, st.Season)
	require.Equal(t, "preseason", st.Phase)
	require.Equal(t, 45, s.games(t))

	// WHEN: The fourth regular season starts
	rec := s.do(t, http.MethodPost, "/api/league/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: 2025 falls outside the two-season horizon and is deleted
	tr := decode[TransitionDTO](t, rec)
	assert.Equal(t, 15, tr.Swept)
	assert.Contains(t, tr.UpdateEvents, "games")
	assert.Equal(t, 30, s.games(t))

	rec = s.do(t, http.MethodGet, "/api/games/2025-rs-0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/games/2026-rs-0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScenario_ResetDiscardsCache(t *testing.T) {
	// GIVEN: Batched results that were never flushed
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/league/advance", nil)
	s.playAll(t)

	// WHEN: Resetting
	rec := s.do(t, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Nothing survives, in the cache or on disk
	assert.Zero(t, s.h.Orch.Coordinator().Dirty())
	assert.Zero(t, s.games(t))
	st := decode[LeagueDTO](t, s.do(t, http.MethodGet, "/api/league", nil))
	assert.Equal(t, "preseason", st.Phase)
	assert.Equal(t, 2025, st.Season)
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
