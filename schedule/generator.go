/*
generator.go - Regular-season schedule generator

PURPOSE:
  Maps a set of teams (with conference/division grouping) and a seed to a
  full season calendar. Pure: no storage, no clock apart from the entropy
  fallback when no seed is given.

ALGORITHM:
  1. Classify every opponent of every team into a tier:
       division         same conference, same division
       conference       same conference, other division
       interconference  other conference
  2. Per-opponent target for team t in tier k:
       G * w_k / sum over t's opponents of w_tier(opponent)
     computed with decimal.Decimal. Targets must be integers and agree
     from both sides of a pair, otherwise ErrInvalidScheduleConfig.
     A tier with no opponents simply contributes nothing.
  3. Expand pair counts into a flat matchup list.
  4. Home/away alternates from a per-pair coin flip, then matchups are
     flipped until every team is within one home game of half.
  5. Days are filled greedily: teams with the most remaining matchups
     pick first, each taking the free opponent with the most remaining
     matchups. Teams with no free opponent sit the day out.
  6. Past MaxDays the generator gives up with ErrScheduleUnsatisfiable.

DETERMINISM:
  Same teams + same Config (including Seed) => identical Schedule.

SEE ALSO:
  - playoffs.go: Playoff bracket rounds
  - league/orchestrator.go: Caller
*/
package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/league-engine/model"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config controls one run of the generator.
type Config struct {
	Season         int
	GamesPerSeason int

	DivisionWeight        decimal.Decimal
	ConferenceWeight      decimal.Decimal
	InterConferenceWeight decimal.Decimal

	// MaxDays bounds day assignment. Zero means 4*GamesPerSeason + teams.
	MaxDays int

	// Seed makes the output reproducible. Nil uses process entropy.
	Seed *int64
}

// DefaultWeights returns the 4/1/1 tier weights.
func DefaultWeights() (division, conference, interConference decimal.Decimal) {
	return decimal.NewFromInt(4), decimal.NewFromInt(1), decimal.NewFromInt(1)
}

func (c Config) rng() *rand.Rand {
	if c.Seed != nil {
		return rand.New(rand.NewSource(*c.Seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// =============================================================================
// TIERS
// =============================================================================

type tier int

const (
	tierDivision tier = iota
	tierConference
	tierInterConference
)

func tierOf(a, b model.Team) tier {
	switch {
	case a.CID != b.CID:
		return tierInterConference
	case a.DID != b.DID:
		return tierConference
	default:
		return tierDivision
	}
}

func (c Config) weight(t tier) decimal.Decimal {
	switch t {
	case tierDivision:
		return c.DivisionWeight
	case tierConference:
		return c.ConferenceWeight
	default:
		return c.InterConferenceWeight
	}
}

type pair struct {
	a, b model.TeamID // a < b
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate builds the regular-season schedule.
func Generate(teams []model.Team, cfg Config) (model.Schedule, error) {
	sorted, err := validateTeams(teams, cfg)
	if err != nil {
		return model.Schedule{}, err
	}

	counts, err := pairTargets(sorted, cfg)
	if err != nil {
		return model.Schedule{}, err
	}

	rng := cfg.rng()
	matchups := expand(sorted, counts, rng)
	balanceHomeAway(matchups)

	maxDays := cfg.MaxDays
	if maxDays <= 0 {
		maxDays = 4*cfg.GamesPerSeason + len(sorted)
	}
	if err := assignDays(sorted, matchups, maxDays, rng); err != nil {
		return model.Schedule{}, err
	}

	sort.SliceStable(matchups, func(i, j int) bool {
		if matchups[i].Day != matchups[j].Day {
			return matchups[i].Day < matchups[j].Day
		}
		if matchups[i].Home != matchups[j].Home {
			return matchups[i].Home < matchups[j].Home
		}
		return matchups[i].Away < matchups[j].Away
	})
	for i := range matchups {
		matchups[i].ID = i
	}

	return model.Schedule{Season: cfg.Season, Matchups: matchups}, nil
}

func validateTeams(teams []model.Team, cfg Config) ([]model.Team, error) {
	if len(teams) < 2 {
		return nil, invalid("need at least 2 teams, got %d", len(teams))
	}
	if cfg.GamesPerSeason < 0 {
		return nil, invalid("games per season must be non-negative, got %d", cfg.GamesPerSeason)
	}
	for _, w := range []decimal.Decimal{cfg.DivisionWeight, cfg.ConferenceWeight, cfg.InterConferenceWeight} {
		if w.IsNegative() {
			return nil, invalid("tier weights must be non-negative")
		}
	}

	sorted := append([]model.Team(nil), teams...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TID < sorted[j].TID })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].TID == sorted[i-1].TID {
			return nil, &ConfigError{TID: sorted[i].TID, Reason: "duplicate team id"}
		}
	}
	return sorted, nil
}

// Validate checks teams and cfg without placing anything.
func Validate(teams []model.Team, cfg Config) error {
	sorted, err := validateTeams(teams, cfg)
	if err != nil {
		return err
	}
	_, err = pairTargets(sorted, cfg)
	return err
}

// pairTargets computes how many times each pair of teams meets.
func pairTargets(teams []model.Team, cfg Config) (map[pair]int, error) {
	games := decimal.NewFromInt(int64(cfg.GamesPerSeason))
	perTeam := make(map[model.TeamID]map[model.TeamID]int, len(teams))

	for _, t := range teams {
		denom := decimal.Zero
		for _, o := range teams {
			if o.TID != t.TID {
				denom = denom.Add(cfg.weight(tierOf(t, o)))
			}
		}

		targets := make(map[model.TeamID]int, len(teams)-1)
		perTeam[t.TID] = targets
		if cfg.GamesPerSeason == 0 {
			continue
		}
		if denom.IsZero() {
			return nil, &ConfigError{TID: t.TID, Reason: "every opponent tier has zero weight"}
		}

		for _, o := range teams {
			if o.TID == t.TID {
				continue
			}
			n := games.Mul(cfg.weight(tierOf(t, o))).Div(denom)
			if !n.IsInteger() {
				return nil, &ConfigError{
					TID:    t.TID,
					Reason: fmt.Sprintf("games against team %d is not integral (%s)", o.TID, n.StringFixed(3)),
				}
			}
			targets[o.TID] = int(n.IntPart())
		}
	}

	counts := make(map[pair]int)
	for i, a := range teams {
		for _, b := range teams[i+1:] {
			ab, ba := perTeam[a.TID][b.TID], perTeam[b.TID][a.TID]
			if ab != ba {
				return nil, &ConfigError{
					TID:    a.TID,
					Reason: fmt.Sprintf("asymmetric pair count with team %d (%d vs %d)", b.TID, ab, ba),
				}
			}
			if ab > 0 {
				counts[pair{a.TID, b.TID}] = ab
			}
		}
	}
	return counts, nil
}

// expand turns pair counts into matchups with alternating home sides.
func expand(teams []model.Team, counts map[pair]int, rng *rand.Rand) []model.Matchup {
	var out []model.Matchup
	for i, a := range teams {
		for _, b := range teams[i+1:] {
			k := counts[pair{a.TID, b.TID}]
			if k == 0 {
				continue
			}
			flip := rng.Intn(2)
			for g := 0; g < k; g++ {
				home, away := a.TID, b.TID
				if (g+flip)%2 == 1 {
					home, away = away, home
				}
				out = append(out, model.Matchup{Home: home, Away: away, Day: -1, Status: model.MatchupPending})
			}
		}
	}
	return out
}

// balanceHomeAway flips matchups between a home-heavy and an away-heavy team
// until no flip brings anyone closer to half. excess = 2*home - total, so
// "within one game of half" is |excess| <= 2.
func balanceHomeAway(matchups []model.Matchup) {
	home := map[model.TeamID]int{}
	total := map[model.TeamID]int{}
	for _, m := range matchups {
		home[m.Home]++
		total[m.Home]++
		total[m.Away]++
	}
	excess := func(t model.TeamID) int { return 2*home[t] - total[t] }

	for changed := true; changed; {
		changed = false
		for i := range matchups {
			h, a := matchups[i].Home, matchups[i].Away
			eh, ea := excess(h), excess(a)
			if eh > 0 && ea < 0 && (eh > 2 || ea < -2) {
				matchups[i].Home, matchups[i].Away = a, h
				home[h]--
				home[a]++
				changed = true
			}
		}
	}
}

// assignDays places every matchup on a day with no team playing twice.
func assignDays(teams []model.Team, matchups []model.Matchup, maxDays int, rng *rand.Rand) error {
	remaining := make(map[model.TeamID]int, len(teams))
	for _, m := range matchups {
		remaining[m.Home]++
		remaining[m.Away]++
	}

	unplaced := rng.Perm(len(matchups))
	order := make([]model.TeamID, len(teams))
	rank := make(map[model.TeamID]int, len(teams))

	for day := 0; len(unplaced) > 0; day++ {
		if day >= maxDays {
			return &UnsatisfiableError{MaxDays: maxDays, Remaining: len(unplaced)}
		}

		for i, p := range rng.Perm(len(teams)) {
			order[i] = teams[p].TID
			rank[teams[p].TID] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			if remaining[order[i]] != remaining[order[j]] {
				return remaining[order[i]] > remaining[order[j]]
			}
			return rank[order[i]] < rank[order[j]]
		})

		busy := make(map[model.TeamID]bool, len(teams))
		placed := make(map[int]bool)
		for _, t := range order {
			if busy[t] || remaining[t] == 0 {
				continue
			}
			best, bestOpp := -1, model.TeamID(0)
			for _, idx := range unplaced {
				if placed[idx] || !matchups[idx].Involves(t) {
					continue
				}
				opp := matchups[idx].Home
				if opp == t {
					opp = matchups[idx].Away
				}
				if busy[opp] {
					continue
				}
				if best == -1 || remaining[opp] > remaining[bestOpp] {
					best, bestOpp = idx, opp
				}
			}
			if best == -1 {
				continue // idle today
			}
			matchups[best].Day = day
			placed[best] = true
			busy[t], busy[bestOpp] = true, true
			remaining[t]--
			remaining[bestOpp]--
		}

		next := unplaced[:0]
		for _, idx := range unplaced {
			if !placed[idx] {
				next = append(next, idx)
			}
		}
		unplaced = next
	}
	return nil
}
