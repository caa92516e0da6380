/*
Package config loads server and league settings.

PURPOSE:
  One Config value built in three layers, later layers winning:
    1. Default()            built-in values
    2. YAML file            strict: unknown keys are errors
    3. LEAGUE_* env vars    for container deployments

EXAMPLE FILE:
  server:
    port: 8080
    db_path: league.db
    log_level: info
    flush_interval: 5s
    mailing_list_subscribed: false
  league:
    teams: 30
    conferences: 2
    divisions_per_conference: 3
    games_per_season: 82
    division_weight: 4
    conference_weight: 1
    inter_conference_weight: 1
    retention_horizon: 2
    auto_delete_old_games: true
    playoff_teams: 16
    starting_season: 2025
    seed: 42

SEE ALSO:
  - league/config.go: The league settings consumed at creation
  - cmd/server/main.go: Flags that override the file
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/league-engine/league"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	League LeagueConfig `yaml:"league"`
}

// ServerConfig covers the HTTP process and its storage.
type ServerConfig struct {
	Port     int    `yaml:"port" env:"LEAGUE_PORT"`
	DBPath   string `yaml:"db_path" env:"LEAGUE_DB_PATH"`
	LogLevel string `yaml:"log_level" env:"LEAGUE_LOG_LEVEL"`

	// FlushInterval is how often batched game results are written out.
	FlushInterval time.Duration `yaml:"flush_interval" env:"LEAGUE_FLUSH_INTERVAL"`

	// MailingListSubscribed silences the mailing-list nudge.
	MailingListSubscribed bool `yaml:"mailing_list_subscribed" env:"LEAGUE_MAILING_LIST_SUBSCRIBED"`
}

// LeagueConfig mirrors league.Config in file/env form.
type LeagueConfig struct {
	Teams                  int `yaml:"teams" env:"LEAGUE_TEAMS"`
	Conferences            int `yaml:"conferences" env:"LEAGUE_CONFERENCES"`
	DivisionsPerConference int `yaml:"divisions_per_conference" env:"LEAGUE_DIVISIONS_PER_CONFERENCE"`

	GamesPerSeason        int             `yaml:"games_per_season" env:"LEAGUE_GAMES_PER_SEASON"`
	DivisionWeight        decimal.Decimal `yaml:"division_weight" env:"LEAGUE_DIVISION_WEIGHT"`
	ConferenceWeight      decimal.Decimal `yaml:"conference_weight" env:"LEAGUE_CONFERENCE_WEIGHT"`
	InterConferenceWeight decimal.Decimal `yaml:"inter_conference_weight" env:"LEAGUE_INTER_CONFERENCE_WEIGHT"`
	MaxScheduleDays       int             `yaml:"max_schedule_days" env:"LEAGUE_MAX_SCHEDULE_DAYS"`

	RetentionHorizon   int  `yaml:"retention_horizon" env:"LEAGUE_RETENTION_HORIZON"`
	AutoDeleteOldGames bool `yaml:"auto_delete_old_games" env:"LEAGUE_AUTO_DELETE_OLD_GAMES"`
	PlayoffTeams       int  `yaml:"playoff_teams" env:"LEAGUE_PLAYOFF_TEAMS"`
	StartingSeason     int  `yaml:"starting_season" env:"LEAGUE_STARTING_SEASON"`

	// Seed is file-only; nil means a fresh schedule every run.
	Seed *int64 `yaml:"seed"`
}

// Default returns the built-in configuration.
func Default() Config {
	lc := league.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:          8080,
			DBPath:        "league.db",
			LogLevel:      "info",
			FlushInterval: 5 * time.Second,
		},
		League: LeagueConfig{
			Teams:                  lc.NumTeams,
			Conferences:            lc.Conferences,
			DivisionsPerConference: lc.DivisionsPerConference,
			GamesPerSeason:         lc.GamesPerSeason,
			DivisionWeight:         lc.DivisionWeight,
			ConferenceWeight:       lc.ConferenceWeight,
			InterConferenceWeight:  lc.InterConferenceWeight,
			MaxScheduleDays:        lc.MaxScheduleDays,
			RetentionHorizon:       lc.RetentionHorizon,
			AutoDeleteOldGames:     lc.AutoDeleteOldGames,
			PlayoffTeams:           lc.NumPlayoffTeams,
			StartingSeason:         lc.StartingSeason,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, then the environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode applies a YAML document on top of cfg. Unknown keys are rejected
// so typos fail loudly.
func Decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks server fields and the league section.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 0-65535, got %d", c.Server.Port)
	}
	if c.Server.DBPath == "" {
		return errors.New("server db_path is required")
	}
	if _, err := logrus.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("server log_level: %w", err)
	}
	if c.Server.FlushInterval < 0 {
		return fmt.Errorf("server flush_interval must be non-negative, got %s", c.Server.FlushInterval)
	}
	for name, w := range map[string]decimal.Decimal{
		"division_weight":         c.League.DivisionWeight,
		"conference_weight":       c.League.ConferenceWeight,
		"inter_conference_weight": c.League.InterConferenceWeight,
	} {
		if w.IsNegative() {
			return fmt.Errorf("league %s must be non-negative, got %s", name, w)
		}
	}
	if err := c.League.ToLeague().Validate(); err != nil {
		return fmt.Errorf("league: %w", err)
	}
	return nil
}

// ToLeague converts the file form into the league's own config.
func (c LeagueConfig) ToLeague() league.Config {
	return league.Config{
		NumTeams:               c.Teams,
		Conferences:            c.Conferences,
		DivisionsPerConference: c.DivisionsPerConference,
		GamesPerSeason:         c.GamesPerSeason,
		DivisionWeight:         c.DivisionWeight,
		ConferenceWeight:       c.ConferenceWeight,
		InterConferenceWeight:  c.InterConferenceWeight,
		MaxScheduleDays:        c.MaxScheduleDays,
		NumPlayoffTeams:        c.PlayoffTeams,
		RetentionHorizon:       c.RetentionHorizon,
		AutoDeleteOldGames:     c.AutoDeleteOldGames,
		StartingSeason:         c.StartingSeason,
		Seed:                   c.Seed,
	}
}
