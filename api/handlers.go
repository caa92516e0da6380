/*
handlers.go - HTTP API handlers for the league engine

PURPOSE:
  Exposes phase progression, schedules, results and retention via REST.
  Handles HTTP request/response and JSON serialization, and delegates to
  the league package.

ENDPOINTS:
  League:
    GET    /api/league                        Current season and phase
    POST   /api/league/advance                Advance one phase
    POST   /api/league/playoffs/next-round    Start the next playoff round

  Schedule:
    GET    /api/schedule?season=N             Season calendar (default current)
    POST   /api/schedule/{id}/skip            Resolve a matchup without a game

  Games:
    POST   /api/games                         Report a finished game
    GET    /api/games/{id}                    Read a recorded game

  Teams:
    GET    /api/teams                         List teams
    POST   /api/teams                         Create or replace a team

  Standings:
    GET    /api/standings?season=N            Regular-season table
    GET    /api/head-to-head/{season}         Raw season aggregate

  Admin:
    POST   /api/admin/flush                   Write batched results now
    POST   /api/admin/sweep                   Delete games up to a season

ERROR HANDLING:
  Errors are returned as JSON with a machine-readable code:
  - 400: Malformed body or invalid game/seeds
  - 404: Resource not found
  - 409: Illegal transition, duplicate game, matchup mismatch
  - 422: Schedule cannot be generated from the configuration
  - 503: Durable store failure
  - 500: Anything else

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo league presets
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/league-engine/league"
	"github.com/warp/league-engine/model"
	"github.com/warp/league-engine/schedule"
	"github.com/warp/league-engine/storage"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes the durable store. Implemented by store/sqlite.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Orch  *league.Orchestrator
	Store Resetter
	log   *logrus.Entry

	// Config new leagues are created with on reset.
	base league.Config

	mu              sync.RWMutex
	league          *league.League
	currentScenario string
}

// NewHandler creates a new handler serving lg.
func NewHandler(orch *league.Orchestrator, lg *league.League, store Resetter, log *logrus.Entry) *Handler {
	return &Handler{
		Orch:   orch,
		Store:  store,
		log:    log.WithField("component", "api"),
		base:   lg.Config(),
		league: lg,
	}
}

func (h *Handler) current() *league.League {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.league
}

// =============================================================================
// LEAGUE HANDLERS
// =============================================================================

// GetLeague returns the current season and phase.
func (h *Handler) GetLeague(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	st := h.league.State()
	scenario := h.currentScenario
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, LeagueDTO{
		Season:         st.Season,
		StartingSeason: st.StartingSeason,
		Phase:          string(st.Phase),
		Scenario:       scenario,
	})
}

// AdvancePhase moves the league to its next phase.
// POST /api/league/advance
func (h *Handler) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	in := league.AdvanceInput{}
	for _, tid := range req.PlayoffSeeds {
		in.PlayoffSeeds = append(in.PlayoffSeeds, model.TeamID(tid))
	}

	t, err := h.Orch.Advance(r.Context(), h.current(), in)
	if err != nil {
		writeDomainError(w, "Failed to advance phase", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionDTO(t))
}

// AdvancePlayoffRound starts the next playoff round.
// POST /api/league/playoffs/next-round
func (h *Handler) AdvancePlayoffRound(w http.ResponseWriter, r *http.Request) {
	t, err := h.Orch.AdvancePlayoffRound(r.Context(), h.current())
	if err != nil {
		writeDomainError(w, "Failed to start next round", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionDTO(t))
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// GetSchedule returns a season's calendar.
// GET /api/schedule?season=2025
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	season, err := seasonQuery(r, h.current())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	s, found, err := h.Orch.Schedule(r.Context(), season)
	if err != nil {
		writeDomainError(w, "Failed to load schedule", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Schedule not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(s))
}

// SkipMatchup resolves a matchup of the current season without a game.
// POST /api/schedule/{id}/skip
func (h *Handler) SkipMatchup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid matchup id", err)
		return
	}
	if err := h.Orch.SkipMatchup(r.Context(), h.current(), id); err != nil {
		writeDomainError(w, "Failed to skip matchup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}

// =============================================================================
// GAME HANDLERS
// =============================================================================

// RecordGame stores a finished game reported by the simulation engine.
// POST /api/games
func (h *Handler) RecordGame(w http.ResponseWriter, r *http.Request) {
	var req GameDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	g := req.toModel()
	if err := h.Orch.RecordGameResult(r.Context(), g); err != nil {
		writeDomainError(w, "Failed to record game", err)
		return
	}

	stored, _, err := h.Orch.Game(r.Context(), g.GID)
	if err != nil {
		writeDomainError(w, "Game recorded but could not be read back", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGameDTO(stored))
}

// GetGame returns a recorded game.
// GET /api/games/{id}
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	g, found, err := h.Orch.Game(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to load game", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Game not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toGameDTO(g))
}

// =============================================================================
// TEAM HANDLERS
// =============================================================================

// ListTeams returns all teams.
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.Orch.Teams(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list teams", err)
		return
	}

	dtos := make([]TeamDTO, len(teams))
	for i, t := range teams {
		dtos[i] = toTeamDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutTeam creates or replaces a team. Takes effect from the next schedule.
// POST /api/teams
func (h *Handler) PutTeam(w http.ResponseWriter, r *http.Request) {
	var req TeamDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Orch.PutTeam(r.Context(), req.toModel()); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to save team", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// STANDINGS HANDLERS
// =============================================================================

// GetStandings returns the regular-season table.
// GET /api/standings?season=2025
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	season, err := seasonQuery(r, h.current())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	table, err := h.Orch.Standings(r.Context(), season)
	if errors.Is(err, league.ErrAggregateMissing) {
		writeError(w, http.StatusNotFound, "No standings for season", err)
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to compute standings", err)
		return
	}

	dtos := make([]StandingDTO, len(table))
	for i, s := range table {
		dtos[i] = StandingDTO{
			Rank:   i + 1,
			TID:    int(s.TID),
			Won:    s.Won,
			Lost:   s.Lost,
			Tied:   s.Tied,
			WinPct: s.WinPct,
			Diff:   s.Diff(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetHeadToHead returns the season aggregate.
// GET /api/head-to-head/{season}
func (h *Handler) GetHeadToHead(w http.ResponseWriter, r *http.Request) {
	season, err := strconv.Atoi(chi.URLParam(r, "season"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	agg, found, err := h.Orch.HeadToHead(r.Context(), season)
	if err != nil {
		writeDomainError(w, "Failed to load head-to-head", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Head-to-head not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, HeadToHeadDTO{
		Season:        agg.Season,
		RegularSeason: agg.RegularSeason,
		Playoffs:      agg.Playoffs,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Flush writes every batched result to the durable store.
// POST /api/admin/flush
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	n, err := h.Orch.Coordinator().Flush(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to flush", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"written": n})
}

// Sweep deletes every game with season <= cutoff.
// POST /api/admin/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if st := h.current().State(); req.Cutoff >= st.Season {
		writeError(w, http.StatusBadRequest, "Cutoff must be before the current season", nil)
		return
	}

	n, err := h.Orch.Sweep(r.Context(), req.Cutoff)
	if err != nil {
		// Partial progress is kept; report how far it got.
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "Sweep stopped early",
			Code:    "storage_failure",
			Details: map[string]any{"deleted": n, "cause": err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// ResetDatabase wipes all data and recreates the league from the base
// configuration.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lg, err := h.reset(r.Context(), h.base)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.league = lg
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reset wipes storage and opens a fresh league. Caller holds h.mu.
func (h *Handler) reset(ctx context.Context, cfg league.Config) (*league.League, error) {
	if h.Store == nil {
		return nil, errors.New("store does not support reset")
	}
	if err := h.Orch.Coordinator().Purge(ctx, h.Store.Reset); err != nil {
		return nil, err
	}
	return league.Open(ctx, h.Orch.Coordinator(), cfg)
}

// =============================================================================
// HELPERS
// =============================================================================

func seasonQuery(r *http.Request, lg *league.League) (int, error) {
	raw := r.URL.Query().Get("season")
	if raw == "" {
		return lg.State().Season, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps league, schedule and storage errors to a status
// and code.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, league.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, league.ErrDuplicateGame):
		return http.StatusConflict, "duplicate_game"
	case errors.Is(err, league.ErrMatchupMismatch):
		return http.StatusConflict, "matchup_mismatch"
	case errors.Is(err, league.ErrAggregateMissing):
		return http.StatusConflict, "aggregate_missing"
	case errors.Is(err, league.ErrInvalidGame), errors.Is(err, league.ErrInvalidSeeds):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, schedule.ErrInvalidScheduleConfig):
		return http.StatusUnprocessableEntity, "invalid_schedule_config"
	case errors.Is(err, schedule.ErrScheduleUnsatisfiable):
		return http.StatusUnprocessableEntity, "schedule_unsatisfiable"
	case errors.Is(err, storage.ErrStorageFailure):
		return http.StatusServiceUnavailable, "storage_failure"
	}
	return http.StatusInternalServerError, "internal"
}
