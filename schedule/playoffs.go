package schedule

import (
	"sort"

	"github.com/warp/league-engine/model"
)

// BracketSize is the smallest power of two holding n teams.
func BracketSize(n int) int {
	size := 1
	for size < n {
		size *= 2
	}
	return size
}

// PlayoffRound pairs participants best seed against worst seed, better seed
// at home. In round 1 a field that is not a power of two gives byes to the
// top seeds; the byes are returned so the caller can add them to round 2.
// Matchup IDs start at firstID.
func PlayoffRound(seeds, participants []model.TeamID, round, day, firstID int) ([]model.Matchup, []model.TeamID) {
	rank := make(map[model.TeamID]int, len(seeds))
	for i, tid := range seeds {
		rank[tid] = i
	}

	field := append([]model.TeamID(nil), participants...)
	sort.SliceStable(field, func(i, j int) bool { return rank[field[i]] < rank[field[j]] })

	var byes []model.TeamID
	if round == 1 {
		n := BracketSize(len(field)) - len(field)
		byes = append(byes, field[:n]...)
		field = field[n:]
	}

	var out []model.Matchup
	for i, j := 0, len(field)-1; i < j; i, j = i+1, j-1 {
		out = append(out, model.Matchup{
			ID:       firstID + len(out),
			Day:      day,
			Home:     field[i],
			Away:     field[j],
			Playoffs: true,
			Round:    round,
			Status:   model.MatchupPending,
		})
	}
	return out, byes
}
