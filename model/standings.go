package model

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Standing is one team's line in the regular-season table.
type Standing struct {
	TID    TeamID          `json:"tid"`
	Won    int             `json:"won"`
	Lost   int             `json:"lost"`
	Tied   int             `json:"tied"`
	Pts    int             `json:"pts"`
	OppPts int             `json:"oppPts"`
	WinPct decimal.Decimal `json:"winPct"`
}

// Diff is the point differential.
func (s Standing) Diff() int { return s.Pts - s.OppPts }

// Standings derives the regular-season table from the aggregate. Teams with
// no games still get a zero line. Order: win percentage, point differential,
// then lower tid. Ties count as half a win.
func (h HeadToHead) Standings(teams []TeamID) ([]Standing, error) {
	lines := make(map[TeamID]*Standing, len(teams))
	for _, tid := range teams {
		lines[tid] = &Standing{TID: tid}
	}
	line := func(tid TeamID) *Standing {
		if s, ok := lines[tid]; ok {
			return s
		}
		s := &Standing{TID: tid}
		lines[tid] = s
		return s
	}

	for key, rec := range h.RegularSeason {
		var lo, hi TeamID
		if _, err := fmt.Sscanf(key, "%d-%d", &lo, &hi); err != nil {
			return nil, fmt.Errorf("malformed pair key %q: %w", key, err)
		}
		a, b := line(lo), line(hi)
		a.Won += rec.Won
		a.Lost += rec.Lost
		a.Tied += rec.Tied
		a.Pts += rec.Pts
		a.OppPts += rec.OppPts
		b.Won += rec.Lost
		b.Lost += rec.Won
		b.Tied += rec.Tied
		b.Pts += rec.OppPts
		b.OppPts += rec.Pts
	}

	half := decimal.NewFromFloat(0.5)
	out := make([]Standing, 0, len(lines))
	for _, s := range lines {
		played := s.Won + s.Lost + s.Tied
		s.WinPct = decimal.Zero
		if played > 0 {
			wins := decimal.NewFromInt(int64(s.Won)).Add(half.Mul(decimal.NewFromInt(int64(s.Tied))))
			s.WinPct = wins.Div(decimal.NewFromInt(int64(played))).Round(3)
		}
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].WinPct.Cmp(out[j].WinPct); c != 0 {
			return c > 0
		}
		if out[i].Diff() != out[j].Diff() {
			return out[i].Diff() > out[j].Diff()
		}
		return out[i].TID < out[j].TID
	})
	return out, nil
}
