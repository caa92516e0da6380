/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the persisted records in model/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done by the league package, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - model/types.go: The records they mirror
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/league-engine/league"
	"github.com/warp/league-engine/model"
)

// =============================================================================
// LEAGUE
// =============================================================================

// LeagueDTO is the current league state.
type LeagueDTO struct {
	Season         int    `json:"season"`
	StartingSeason int    `json:"starting_season"`
	Phase          string `json:"phase"`
	Scenario       string `json:"scenario,omitempty"`
}

// AdvanceRequest is the optional body of POST /api/league/advance.
type AdvanceRequest struct {
	PlayoffSeeds []int `json:"playoff_seeds,omitempty"`
}

// TransitionDTO describes a committed phase change.
type TransitionDTO struct {
	From         string   `json:"from"`
	To           string   `json:"to"`
	Season       int      `json:"season"`
	UpdateEvents []string `json:"update_events"`
	Swept        int      `json:"swept"`
}

func toTransitionDTO(t league.Transition) TransitionDTO {
	events := t.UpdateEvents
	if events == nil {
		events = []string{}
	}
	return TransitionDTO{
		From:         string(t.From),
		To:           string(t.To),
		Season:       t.Season,
		UpdateEvents: events,
		Swept:        t.Swept,
	}
}

// =============================================================================
// TEAMS
// =============================================================================

// TeamDTO represents a team in API requests and responses.
type TeamDTO struct {
	TID        int    `json:"tid"`
	Conference int    `json:"cid"`
	Division   int    `json:"did"`
	Region     string `json:"region,omitempty"`
	Name       string `json:"name,omitempty"`
	Active     bool   `json:"active"`
}

func toTeamDTO(t model.Team) TeamDTO {
	return TeamDTO{
		TID:        int(t.TID),
		Conference: t.CID,
		Division:   t.DID,
		Region:     t.Region,
		Name:       t.Name,
		Active:     t.Active,
	}
}

func (d TeamDTO) toModel() model.Team {
	return model.Team{
		TID:    model.TeamID(d.TID),
		CID:    d.Conference,
		DID:    d.Division,
		Region: d.Region,
		Name:   d.Name,
		Active: d.Active,
	}
}

// =============================================================================
// SCHEDULE
// =============================================================================

// MatchupDTO is one scheduled pairing.
type MatchupDTO struct {
	ID       int    `json:"id"`
	Day      int    `json:"day"`
	Home     int    `json:"home"`
	Away     int    `json:"away"`
	Playoffs bool   `json:"playoffs"`
	Round    int    `json:"round,omitempty"`
	Status   string `json:"status"`
	GameID   string `json:"gid,omitempty"`
	Winner   *int   `json:"winner,omitempty"`
}

// ScheduleDTO is a season calendar.
type ScheduleDTO struct {
	Season   int          `json:"season"`
	Playoffs bool         `json:"playoffs"`
	Round    int          `json:"round,omitempty"`
	Seeds    []int        `json:"seeds,omitempty"`
	Byes     []int        `json:"byes,omitempty"`
	Pending  int          `json:"pending"`
	Matchups []MatchupDTO `json:"matchups"`
}

func toScheduleDTO(s model.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		Season:   s.Season,
		Playoffs: s.Playoffs,
		Round:    s.Round,
		Seeds:    toInts(s.Seeds),
		Byes:     toInts(s.Byes),
		Pending:  len(s.Pending()),
		Matchups: make([]MatchupDTO, len(s.Matchups)),
	}
	for i, m := range s.Matchups {
		md := MatchupDTO{
			ID:       m.ID,
			Day:      m.Day,
			Home:     int(m.Home),
			Away:     int(m.Away),
			Playoffs: m.Playoffs,
			Round:    m.Round,
			Status:   string(m.Status),
			GameID:   m.GameID,
		}
		if m.Playoffs && m.Resolved() {
			w := int(m.Winner)
			md.Winner = &w
		}
		dto.Matchups[i] = md
	}
	return dto
}

func toInts(ids []model.TeamID) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

// =============================================================================
// GAMES
// =============================================================================

// TeamScoreDTO is one side of a game.
type TeamScoreDTO struct {
	TID int `json:"tid"`
	Pts int `json:"pts"`
}

// GameDTO is a finished game, used both to report and to read results.
type GameDTO struct {
	GID       string       `json:"gid"`
	Season    int          `json:"season"`
	Playoffs  bool         `json:"playoffs"`
	MatchupID int          `json:"matchup_id"`
	Day       int          `json:"day"`
	Home      TeamScoreDTO `json:"home"`
	Away      TeamScoreDTO `json:"away"`
	Overtimes int          `json:"overtimes,omitempty"`
}

func toGameDTO(g model.Game) GameDTO {
	return GameDTO{
		GID:       g.GID,
		Season:    g.Season,
		Playoffs:  g.Playoffs,
		MatchupID: g.MatchupID,
		Day:       g.Day,
		Home:      TeamScoreDTO{TID: int(g.Home.TID), Pts: g.Home.Pts},
		Away:      TeamScoreDTO{TID: int(g.Away.TID), Pts: g.Away.Pts},
		Overtimes: g.Overtimes,
	}
}

func (d GameDTO) toModel() model.Game {
	return model.Game{
		GID:       d.GID,
		Season:    d.Season,
		Playoffs:  d.Playoffs,
		MatchupID: d.MatchupID,
		Day:       d.Day,
		Home:      model.TeamResult{TID: model.TeamID(d.Home.TID), Pts: d.Home.Pts},
		Away:      model.TeamResult{TID: model.TeamID(d.Away.TID), Pts: d.Away.Pts},
		Overtimes: d.Overtimes,
	}
}

// =============================================================================
// STANDINGS / HEAD TO HEAD
// =============================================================================

// StandingDTO is one line of the table.
type StandingDTO struct {
	Rank   int             `json:"rank"`
	TID    int             `json:"tid"`
	Won    int             `json:"won"`
	Lost   int             `json:"lost"`
	Tied   int             `json:"tied"`
	WinPct decimal.Decimal `json:"win_pct"`
	Diff   int             `json:"diff"`
}

// HeadToHeadDTO is the season aggregate keyed by "lo-hi" team pairs.
type HeadToHeadDTO struct {
	Season        int                         `json:"season"`
	RegularSeason map[string]model.PairRecord `json:"regular_season"`
	Playoffs      map[string]model.PairRecord `json:"playoffs"`
}

// =============================================================================
// ADMIN / SCENARIOS
// =============================================================================

// SweepRequest is the body of POST /api/admin/sweep.
type SweepRequest struct {
	Cutoff int `json:"cutoff"`
}

// ScenarioDTO represents a demo league preset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
