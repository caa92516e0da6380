package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "league.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30, cfg.League.ToLeague().NumTeams)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  flush_interval: 2s
league:
  teams: 4
  conferences: 1
  divisions_per_conference: 2
  games_per_season: 6
  division_weight: 4
  conference_weight: 1
  inter_conference_weight: 0.5
  seed: 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.FlushInterval)
	assert.Equal(t, "league.db", cfg.Server.DBPath, "untouched keys keep defaults")

	lc := cfg.League.ToLeague()
	assert.Equal(t, 4, lc.NumTeams)
	assert.True(t, decimal.NewFromFloat(0.5).Equal(lc.InterConferenceWeight))
	require.NotNil(t, lc.Seed)
	assert.Equal(t, int64(42), *lc.Seed)
	assert.Equal(t, 2, lc.RetentionHorizon)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
league:
  games_per_seasn: 10
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)
	t.Setenv("LEAGUE_PORT", "7070")
	t.Setenv("LEAGUE_RETENTION_HORIZON", "5")
	t.Setenv("LEAGUE_DIVISION_WEIGHT", "3")
	t.Setenv("LEAGUE_AUTO_DELETE_OLD_GAMES", "false")
	t.Setenv("LEAGUE_MAILING_LIST_SUBSCRIBED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5, cfg.League.RetentionHorizon)
	assert.True(t, decimal.NewFromInt(3).Equal(cfg.League.DivisionWeight))
	assert.False(t, cfg.League.AutoDeleteOldGames)
	assert.True(t, cfg.Server.MailingListSubscribed)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("LEAGUE_TEAMS", "not-an-int")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"empty db path", func(c *Config) { c.Server.DBPath = "" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }},
		{"negative flush interval", func(c *Config) { c.Server.FlushInterval = -time.Second }},
		{"negative weight", func(c *Config) { c.League.ConferenceWeight = decimal.NewFromInt(-1) }},
		{"one team", func(c *Config) { c.League.Teams = 1 }},
		{"negative horizon", func(c *Config) { c.League.RetentionHorizon = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
