package league

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/league-engine/schedule"
)

// Config is fixed when the league is created. The orchestrator, the
// schedule generator and the retention sweeper read it but never change it.
type Config struct {
	NumTeams               int
	Conferences            int
	DivisionsPerConference int

	GamesPerSeason        int
	DivisionWeight        decimal.Decimal
	ConferenceWeight      decimal.Decimal
	InterConferenceWeight decimal.Decimal
	MaxScheduleDays       int

	// NumPlayoffTeams caps the playoff field. Zero means every team.
	NumPlayoffTeams int

	// RetentionHorizon is how many seasons before the current one keep
	// their games: seasons <= current-horizon-1 are swept.
	RetentionHorizon   int
	AutoDeleteOldGames bool

	StartingSeason int

	// Seed makes every season's schedule reproducible. Nil uses entropy.
	Seed *int64
}

// DefaultConfig is a 30-team, 82-game league.
func DefaultConfig() Config {
	div, conf, inter := schedule.DefaultWeights()
	return Config{
		NumTeams:               30,
		Conferences:            2,
		DivisionsPerConference: 3,
		GamesPerSeason:         82,
		DivisionWeight:         div,
		ConferenceWeight:       conf,
		InterConferenceWeight:  inter,
		NumPlayoffTeams:        16,
		RetentionHorizon:       2,
		AutoDeleteOldGames:     true,
		StartingSeason:         2025,
	}
}

// Validate rejects values no league can run with.
func (c Config) Validate() error {
	switch {
	case c.NumTeams < 2:
		return fmt.Errorf("num teams must be at least 2, got %d", c.NumTeams)
	case c.Conferences < 1:
		return fmt.Errorf("conferences must be at least 1, got %d", c.Conferences)
	case c.DivisionsPerConference < 1:
		return fmt.Errorf("divisions per conference must be at least 1, got %d", c.DivisionsPerConference)
	case c.GamesPerSeason < 0:
		return fmt.Errorf("games per season must be non-negative, got %d", c.GamesPerSeason)
	case c.RetentionHorizon < 0:
		return fmt.Errorf("retention horizon must be non-negative, got %d", c.RetentionHorizon)
	case c.NumPlayoffTeams < 0:
		return fmt.Errorf("playoff teams must be non-negative, got %d", c.NumPlayoffTeams)
	}
	return nil
}

// ScheduleConfig derives the generator input for one season. With a fixed
// seed every season still gets its own, reproducible calendar.
func (c Config) ScheduleConfig(season int) schedule.Config {
	sc := schedule.Config{
		Season:                season,
		GamesPerSeason:        c.GamesPerSeason,
		DivisionWeight:        c.DivisionWeight,
		ConferenceWeight:      c.ConferenceWeight,
		InterConferenceWeight: c.InterConferenceWeight,
		MaxDays:               c.MaxScheduleDays,
	}
	if c.Seed != nil {
		s := *c.Seed + int64(season)
		sc.Seed = &s
	}
	return sc
}

// RetentionCutoff is the newest season whose games are swept when season
// starts, or false when nothing is old enough.
func (c Config) RetentionCutoff(season int) (int, bool) {
	cutoff := season - c.RetentionHorizon - 1
	return cutoff, cutoff >= c.StartingSeason
}
