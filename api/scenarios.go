/*
scenarios.go - Demo league presets for testing and demonstrations

PURPOSE:

	Provides pre-built leagues that exercise specific parts of the engine.
	Each scenario wipes storage, opens a league with its own configuration
	and optionally plays simulated seasons.

AVAILABLE SCENARIOS:

	standard:       30 teams, 2 conferences x 3 divisions, 82 games
	small:          4 teams in 2 divisions, 6 games, fixed seed
	playoff-ready:  small league with the regular season fully played
	veteran:        small league entering its fourth regular season, so
	                the retention sweep has old games to delete

HOW SCENARIOS WORK:
 1. Reset database and purge the cache
 2. Open the league with the scenario's config
 3. Play seasons with seeded random scores

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "playoff-ready"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - league/orchestrator.go: The transitions being driven
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/warp/league-engine/league"
	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/schedule"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard",
		Name:        "Standard League",
		Description: "30 teams in 2 conferences of 3 divisions, 82 games, 16 playoff teams",
	},
	{
		ID:          "small",
		Name:        "Small League",
		Description: "4 teams in 2 divisions, 6 games, fixed seed",
	},
	{
		ID:          "playoff-ready",
		Name:        "Playoff Ready",
		Description: "Small league with every regular-season game played",
	},
	{
		ID:          "veteran",
		Name:        "Veteran League",
		Description: "Small league three seasons in, with old games to sweep",
	},
}

const scenarioSeed = 2025

func smallLeague(base league.Config) league.Config {
	seed := int64(scenarioSeed)
	cfg := base
	cfg.NumTeams = 4
	cfg.Conferences = 1
	cfg.DivisionsPerConference = 2
	cfg.GamesPerSeason = 6
	cfg.DivisionWeight, cfg.ConferenceWeight, cfg.InterConferenceWeight = schedule.DefaultWeights()
	cfg.NumPlayoffTeams = 4
	cfg.MaxScheduleDays = 0
	cfg.Seed = &seed
	return cfg
}

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets storage and loads a predefined league.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		cfg     league.Config
		seasons int
		play    bool
	)
	switch req.ScenarioID {
	case "standard":
		cfg = league.DefaultConfig()
		cfg.AutoDeleteOldGames = h.base.AutoDeleteOldGames
		cfg.RetentionHorizon = h.base.RetentionHorizon
	case "small":
		cfg = smallLeague(h.base)
	case "playoff-ready":
		cfg, play = smallLeague(h.base), true
	case "veteran":
		cfg, seasons = smallLeague(h.base), 3
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	lg, err := h.reset(ctx, cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.league = lg
	h.currentScenario = ""

	rng := rand.New(rand.NewSource(scenarioSeed))
	for i := 0; i < seasons; i++ {
		if err := playSeason(ctx, h.Orch, lg, rng); err != nil {
			writeDomainError(w, "Failed to load scenario", err)
			return
		}
	}
	if play {
		if err := startAndPlayRegularSeason(ctx, h.Orch, lg, rng); err != nil {
			writeDomainError(w, "Failed to load scenario", err)
			return
		}
	}
	if _, err := h.Orch.Coordinator().Flush(ctx); err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.log.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SIMULATION
// =============================================================================

func simulatedGame(season int, m model.Matchup, rng *rand.Rand) model.Game {
	home := 85 + rng.Intn(40)
	away := 85 + rng.Intn(40)
	if m.Playoffs && home == away {
		home++
	}
	kind := "rs"
	if m.Playoffs {
		kind = "po"
	}
	return model.Game{
		GID:       fmt.Sprintf("%d-%s-%d", season, kind, m.ID),
		Season:    season,
		Playoffs:  m.Playoffs,
		MatchupID: m.ID,
		Home:      model.TeamResult{TID: m.Home, Pts: home},
		Away:      model.TeamResult{TID: m.Away, Pts: away},
	}
}

func playPending(ctx context.Context, orch *league.Orchestrator, lg *league.League, rng *rand.Rand) error {
	season := lg.State().Season
	s, _, err := orch.Schedule(ctx, season)
	if err != nil {
		return err
	}
	for _, m := range s.Pending() {
		if err := orch.RecordGameResult(ctx, simulatedGame(season, m, rng)); err != nil {
			return err
		}
	}
	return nil
}

func startAndPlayRegularSeason(ctx context.Context, orch *league.Orchestrator, lg *league.League, rng *rand.Rand) error {
	if _, err := orch.Advance(ctx, lg, league.AdvanceInput{}); err != nil {
		return err
	}
	return playPending(ctx, orch, lg, rng)
}

// playSeason runs a league from preseason to the next preseason.
func playSeason(ctx context.Context, orch *league.Orchestrator, lg *league.League, rng *rand.Rand) error {
	if err := startAndPlayRegularSeason(ctx, orch, lg, rng); err != nil {
		return err
	}
	if _, err := orch.Advance(ctx, lg, league.AdvanceInput{}); err != nil {
		return err
	}
	for {
		if err := playPending(ctx, orch, lg, rng); err != nil {
			return err
		}
		_, err := orch.AdvancePlayoffRound(ctx, lg)
		if errors.Is(err, league.ErrIllegalTransition) {
			break
		}
		if err != nil {
			return err
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := orch.Advance(ctx, lg, league.AdvanceInput{}); err != nil {
			return err
		}
	}
	return nil
}
